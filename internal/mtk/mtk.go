// Package mtk holds the PMTK/PQ command catalog of MediaTek based receivers
// (Quectel L86 and friends) and frames commands for the wire.
package mtk

import (
	"fmt"
	"strings"
)

// Command is an unframed command payload such as "PMTK103".
type Command struct {
	Payload     string
	Description string
}

// Framed returns the command ready to be written to the receiver.
func (c Command) Framed() string {
	return Frame(c.Payload)
}

func (c Command) String() string {
	return c.Payload
}

var (
	// Coldstart resets the receiver to factory defaults and drops all
	// ephemeris and almanac data.
	Coldstart = Command{Payload: "PMTK103", Description: "full coldstart"}

	// QueryCatalog is issued in order by a configuration dump.
	QueryCatalog = []Command{
		{Payload: "PMTK605", Description: "firmware release"},
		{Payload: "PMTK401", Description: "DGPS mode"},
		{Payload: "PMTK413", Description: "SBAS enabled"},
		{Payload: "PQGLP,R", Description: "GLP mode"},
		{Payload: "PQVERNO,R", Description: "firmware version"},
		{Payload: "PQVERNO,R,SUB", Description: "firmware sub version"},
		{Payload: "PQFLP,R", Description: "FLP mode"},
	}
)

// Accepted response prefixes.
const (
	PrefixMTK = "$PMTK"
	PrefixPQ  = "$PQ"
)

// Checksum is the XOR of every byte of payload.
func Checksum(payload string) byte {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	return sum
}

// Frame wraps payload as "$<payload>*<xx>" where xx is the lowercase two
// digit hex checksum.
func Frame(payload string) string {
	return fmt.Sprintf("$%s*%02x", payload, Checksum(payload))
}

// Payload strips the framing added by Frame. Lines that are not framed are
// returned unchanged.
func Payload(framed string) string {
	s := strings.TrimPrefix(framed, "$")
	if star := strings.LastIndexByte(s, '*'); star != -1 {
		s = s[:star]
	}
	return s
}
