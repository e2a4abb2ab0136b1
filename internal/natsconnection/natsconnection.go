package natsconnection

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Fishwaldo/GnssTester/internal"
	"github.com/Fishwaldo/GnssTester/internal/track"
	"github.com/go-logr/logr"
	"github.com/nats-io/nats.go"
	"github.com/sasha-s/go-deadlock"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("nats.enable", false)
	viper.SetDefault("nats.host", "nats.example.com")
	viper.SetDefault("nats.port", 4222)
	viper.SetDefault("nats.credfile", "config/nats.creds")
	viper.SetDefault("nats.jetstream", false)
	internal.RegisterSink("nats", &Nats)
}

// NatsConnS publishes fixes to report.gnss.<name>.fix and answers requests
// for the latest fix on cmd.gnss.<name>.
type NatsConnS struct {
	conn              *nats.Conn
	js                nats.JetStreamContext
	logger            logr.Logger
	inCMDSubject      string
	inCmdSubscription *nats.Subscription
	outCMDPrefix      string
	last              *track.Position
	mx                deadlock.Mutex
}

var Nats NatsConnS

func (nc *NatsConnS) Enabled() bool {
	return viper.GetBool("nats.enable")
}

func (nc *NatsConnS) Start(log logr.Logger) error {
	nc.mx.Lock()
	defer nc.mx.Unlock()
	nc.logger = log

	url := fmt.Sprintf("%s:%d", viper.GetString("nats.host"), viper.GetInt("nats.port"))
	var err error
	var options []nats.Option

	if _, err := os.Stat(viper.GetString("nats.credfile")); os.IsNotExist(err) {
		nc.logger.Info("Credential File Does not Exist, connecting without", "file", viper.GetString("nats.credfile"))
	} else {
		options = append(options, nats.UserCredentials(viper.GetString("nats.credfile")))
	}
	options = append(options, nats.RetryOnFailedConnect(true))
	options = append(options, nats.Name(viper.GetString("name")))
	options = append(options, nats.DisconnectErrHandler(nc.serverDisconnect))
	options = append(options, nats.ReconnectHandler(nc.serverReconnected))
	options = append(options, nats.ReconnectBufSize(8*1024*1024))

	if nc.conn, err = nats.Connect(url, options...); err != nil {
		return fmt.Errorf("connect to NATS server %s: %w", url, err)
	}
	nc.logger.Info("Connected to NATS Server", "name", nc.conn.ConnectedServerName(), "cluster", nc.conn.ConnectedClusterName())

	if viper.GetBool("nats.jetstream") {
		if nc.js, err = nc.conn.JetStream(); err != nil {
			nc.logger.Error(err, "Can't Create JetStream Context, using core NATS")
		}
	}

	nc.inCMDSubject, nc.outCMDPrefix = subjects(viper.GetString("name"))
	if nc.inCmdSubscription, err = nc.conn.Subscribe(nc.inCMDSubject, nc.gotMessage); err != nil {
		nc.logger.Error(err, "Can't Subscribe to subject", "subject", nc.inCMDSubject)
	}
	if err = nc.conn.Flush(); err != nil {
		nc.logger.Error(err, "Can't Flush NATS Connection")
	}
	return nil
}

func (nc *NatsConnS) Stop() {
	nc.mx.Lock()
	defer nc.mx.Unlock()
	if nc.conn == nil {
		return
	}
	if nc.inCmdSubscription != nil {
		if err := nc.inCmdSubscription.Unsubscribe(); err != nil {
			nc.logger.Error(err, "Can't Unsubscribe", "subject", nc.inCMDSubject)
		}
	}
	if err := nc.conn.Drain(); err != nil {
		nc.logger.Error(err, "Can't Drain NATS Connection")
		nc.conn.Close()
	}
	nc.conn = nil
}

func subjects(name string) (in, out string) {
	return fmt.Sprintf("cmd.gnss.%s", name), fmt.Sprintf("report.gnss.%s", name)
}

func newFixMsg(subject string, p track.Position, now time.Time) (*nats.Msg, error) {
	msg := nats.NewMsg(subject)
	msg.Header.Add("X-Msg-Time", now.Format(time.RFC3339))
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	msg.Data = data
	return msg, nil
}

func (nc *NatsConnS) Publish(p track.Position) {
	nc.mx.Lock()
	defer nc.mx.Unlock()
	nc.last = &p
	if nc.conn == nil {
		return
	}
	msg, err := newFixMsg(nc.outCMDPrefix+".fix", p, time.Now())
	if err != nil {
		nc.logger.Error(err, "Can't Encode Fix")
		return
	}
	if nc.js != nil {
		_, err = nc.js.PublishMsg(msg)
	} else {
		err = nc.conn.PublishMsg(msg)
	}
	if err != nil {
		nc.logger.Error(err, "Can't Publish Messages", "subject", msg.Subject)
	}
}

// gotMessage answers a request with the most recent fix, or an empty
// object before the first fix.
func (nc *NatsConnS) gotMessage(m *nats.Msg) {
	nc.logger.V(1).Info("Got Message from Subject", "subject", m.Subject, "data", string(m.Data))
	if m.Reply == "" {
		return
	}
	nc.mx.Lock()
	reply := []byte("{}")
	if nc.last != nil {
		reply, _ = json.Marshal(nc.last)
	}
	nc.mx.Unlock()
	if err := m.Respond(reply); err != nil {
		nc.logger.Error(err, "Can't Respond", "subject", m.Subject)
	}
}

func (nc *NatsConnS) serverDisconnect(c *nats.Conn, err error) {
	nc.logger.Error(err, "Nats Server Disconnected")
}
func (nc *NatsConnS) serverReconnected(c *nats.Conn) {
	nc.logger.Info("Nats Server Reconnected", "name", c.ConnectedServerName(), "cluster", c.ConnectedClusterName())
}
