// Package mqtt publishes fixes to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Fishwaldo/GnssTester/internal"
	"github.com/Fishwaldo/GnssTester/internal/track"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.qos", 0)
	viper.SetDefault("mqtt.retain", true)
	viper.SetDefault("mqtt.timeout", 5*time.Second)
	internal.RegisterSink("mqtt", &MQTT)
}

type MQTTS struct {
	client  paho.Client
	topic   string
	qos     byte
	retain  bool
	timeout time.Duration
	log     logr.Logger
}

var MQTT MQTTS

func (m *MQTTS) Enabled() bool {
	return viper.GetBool("mqtt.enable")
}

func topic(name string) string {
	return fmt.Sprintf("gnss/%s/fix", name)
}

func (m *MQTTS) Start(log logr.Logger) error {
	m.log = log
	m.topic = topic(viper.GetString("name"))
	m.qos = byte(viper.GetInt("mqtt.qos"))
	m.retain = viper.GetBool("mqtt.retain")
	m.timeout = viper.GetDuration("mqtt.timeout")

	opts := paho.NewClientOptions().
		AddBroker(viper.GetString("mqtt.broker")).
		SetClientID(fmt.Sprintf("gnsstester-%s", viper.GetString("name"))).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			m.log.Error(err, "MQTT Connection Lost")
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("connect to MQTT broker %s: timed out", viper.GetString("mqtt.broker"))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to MQTT broker %s: %w", viper.GetString("mqtt.broker"), err)
	}
	m.client = client
	m.log.Info("Connected to MQTT Broker", "broker", viper.GetString("mqtt.broker"), "topic", m.topic)
	return nil
}

func (m *MQTTS) Stop() {
	if m.client == nil {
		return
	}
	m.client.Disconnect(250)
	m.client = nil
}

func (m *MQTTS) Publish(p track.Position) {
	if m.client == nil {
		return
	}
	payload, err := json.Marshal(p)
	if err != nil {
		m.log.Error(err, "Can't Encode Fix")
		return
	}
	token := m.client.Publish(m.topic, m.qos, m.retain, payload)
	if !token.WaitTimeout(m.timeout) {
		m.log.Error(nil, "MQTT Publish Timed Out", "topic", m.topic)
		return
	}
	if err := token.Error(); err != nil {
		m.log.Error(err, "MQTT Publish Failed", "topic", m.topic)
	}
}
