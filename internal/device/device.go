package device

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Fishwaldo/GnssTester/internal/channel"
	"github.com/Fishwaldo/GnssTester/internal/mtk"
	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"
)

// Controller runs the coldstart and configuration dump sequences.
type Controller struct {
	Sync    *Synchronizer
	Catalog []mtk.Command
	Logger  logr.Logger
}

func NewController(sync *Synchronizer, log logr.Logger) *Controller {
	return &Controller{Sync: sync, Catalog: mtk.QueryCatalog, Logger: log}
}

// ForceColdstart resets the receiver and waits for the acknowledgement.
func (c *Controller) ForceColdstart() (string, error) {
	c.Logger.Info("Forcing Module Coldstart")
	resp, err := c.Sync.SendAndAwait(mtk.Coldstart.Payload, mtk.PrefixMTK)
	if err != nil {
		return "", fmt.Errorf("coldstart: %w", err)
	}
	return resp, nil
}

// QueryResult is one catalog entry and what the receiver answered.
type QueryResult struct {
	Command     string `yaml:"command"`
	Description string `yaml:"description"`
	Response    string `yaml:"response"`
}

// Report is the outcome of a configuration dump.
type Report struct {
	Port    string        `yaml:"port,omitempty"`
	Host    string        `yaml:"host,omitempty"`
	Time    time.Time     `yaml:"time"`
	Results []QueryResult `yaml:"results"`
}

// DumpConfiguration issues every catalog query in order. The first failing
// query stops the dump; its error is returned along with the results
// gathered until then.
func (c *Controller) DumpConfiguration() (*Report, error) {
	report := &Report{Time: time.Now().UTC()}
	for _, cmd := range c.Catalog {
		c.Logger.V(1).Info("Checking", "command", cmd.Framed(), "description", cmd.Description)

		// drop one stale line so it isn't taken as the answer
		if _, err := c.Sync.Channel.ReadLine(c.Sync.Timeout); err != nil && !errors.Is(err, channel.ErrReadTimeout) {
			return report, fmt.Errorf("query %s: %w", cmd.Payload, err)
		}

		resp, err := c.Sync.SendAndAwait(cmd.Payload, mtk.PrefixMTK, mtk.PrefixPQ)
		if err != nil {
			return report, fmt.Errorf("query %s: %w", cmd.Payload, err)
		}
		report.Results = append(report.Results, QueryResult{
			Command:     cmd.Payload,
			Description: cmd.Description,
			Response:    resp,
		})
	}
	return report, nil
}

// WriteConfiguration is not implemented and never writes to the receiver.
func (c *Controller) WriteConfiguration() error {
	return ErrUnsupported
}

// WriteYAML saves the report to path.
func (r *Report) WriteYAML(path string) error {
	out, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
