package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultMQTTTopic matches swing/<device>/imu.
const DefaultMQTTTopic = "swing/+/imu"

// MQTTSubscriber feeds packets published by Wi-Fi sensor nodes into an
// Ingester.
type MQTTSubscriber struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Ingester *Ingester

	client mqtt.Client
	ctx    context.Context
}

func NewMQTTSubscriber(broker string, in *Ingester) *MQTTSubscriber {
	return &MQTTSubscriber{
		Broker:   broker,
		Topic:    DefaultMQTTTopic,
		ClientID: "swing-report-ingest",
		Ingester: in,
	}
}

// Start connects to the broker and subscribes. The subscription stays
// active until Stop; ctx is passed to the sink for every message.
func (s *MQTTSubscriber) Start(ctx context.Context) error {
	s.ctx = ctx
	opts := mqtt.NewClientOptions().
		AddBroker(s.Broker).
		SetClientID(s.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			// resubscribe after reconnects
			if token := c.Subscribe(s.Topic, s.QoS, s.handleMessage); token.Wait() && token.Error() != nil {
				logf("mqtt subscribe %s: %v", s.Topic, token.Error())
				return
			}
			logf("mqtt subscribed to %s", s.Topic)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logf("mqtt connection lost: %v", err)
		})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", s.Broker, token.Error())
	}
	logf("mqtt connected to %s", s.Broker)
	return nil
}

// Stop disconnects from the broker.
func (s *MQTTSubscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func (s *MQTTSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := s.Ingester.Decoder.Decode(msg.Payload())
	if err != nil {
		s.Ingester.received.Add(1)
		s.Ingester.reject(err)
		logf("mqtt packet on %s rejected: %v", msg.Topic(), err)
		return
	}
	if dev := DeviceFromTopic(msg.Topic()); dev != "" && env.Device == string(env.Reading.Role) {
		env.Device = dev
	}
	if err := s.Ingester.Record(ctx, env); err != nil {
		logf("mqtt packet on %s rejected: %v", msg.Topic(), err)
	}
}

// DeviceFromTopic returns the device segment of swing/<device>/imu.
func DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "swing" || parts[2] != "imu" {
		return ""
	}
	return parts[1]
}
