package mqtt

import (
	"testing"

	"github.com/Fishwaldo/GnssTester/internal/track"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "gnss/L86/fix", topic("L86"))
}

func TestDisabledByDefault(t *testing.T) {
	assert.False(t, viper.GetBool("mqtt.enable"))
	assert.False(t, MQTT.Enabled())
}

func TestPublishBeforeStart(t *testing.T) {
	m := &MQTTS{}
	m.Publish(track.Position{Fix: track.Fix{Latitude: 1}})
	m.Stop()
}
