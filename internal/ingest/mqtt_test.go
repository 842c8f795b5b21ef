package ingest

import (
	"context"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var _ mqtt.Message = fakeMessage{}

func TestDeviceFromTopic(t *testing.T) {
	cases := map[string]string{
		"swing/W1/imu":     "W1",
		"swing/W1/status":  "",
		"other/W1/imu":     "",
		"swing/a/b/imu":    "",
		"swing//imu":       "",
		"swing/racket/imu": "racket",
	}
	for topic, want := range cases {
		if got := DeviceFromTopic(topic); got != want {
			t.Errorf("DeviceFromTopic(%q) = %q, want %q", topic, got, want)
		}
	}
}

func TestMQTTSubscriber_HandleMessage(t *testing.T) {
	in, sink, _, _ := newTestIngester(t)
	s := NewMQTTSubscriber("tcp://localhost:1883", in)
	s.ctx = context.Background()

	// packet without a device code takes the topic's
	s.handleMessage(nil, fakeMessage{
		topic:   "swing/node-7/imu",
		payload: []byte(`{"sensor_type":"shoulder","timestamp":"100000000","acc":[0,0,1],"gyro":[0,0,0],"angle":[0,0,0]}`),
	})
	// an explicit device code wins
	s.handleMessage(nil, fakeMessage{topic: "swing/node-8/imu", payload: []byte(wristLine)})
	s.handleMessage(nil, fakeMessage{topic: "swing/node-9/imu", payload: []byte(`{`)})

	got := sink.readings()
	require.Len(t, got, 2)
	assert.Equal(t, "node-7", got[0].Device)
	assert.Equal(t, "A1", got[1].Device)

	stats := in.Stats()
	assert.Equal(t, int64(3), stats.Received)
	assert.Equal(t, int64(2), stats.Recorded)
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestMQTTSubscriber_StartFailsWithoutBroker(t *testing.T) {
	in, _, _, _ := newTestIngester(t)
	s := NewMQTTSubscriber("tcp://127.0.0.1:1", in)
	s.ClientID = "swing-report-test"

	err := s.Start(context.Background())
	require.Error(t, err)
	s.Stop()
}
