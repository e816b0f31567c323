package mqtt

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/vcnl4020-stream/pkg/config"
	"github.com/ericogr/vcnl4020-stream/pkg/output"
)

const (
	// defaults
	DefaultServer   = "tcp://localhost:1883"
	DefaultClientID = "vcnl4020-stream"
	DefaultTopic    = "vcnl4020/proximity"

	disconnectQuiesceMs = 250
)

// MQTTOutput publishes every frame as one message. Write starts the publish
// and Flush waits until the broker flow completes.
type MQTTOutput struct {
	client   mqtt.Client
	topic    string
	qos      byte
	retained bool
	pending  mqtt.Token
}

func NewMQTT(cfg config.MQTTConfig) (output.Sink, error) {
	server := cfg.Server
	if server == "" {
		server = DefaultServer
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(server).SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newWithClient(client, cfg), nil
}

func newWithClient(client mqtt.Client, cfg config.MQTTConfig) *MQTTOutput {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTOutput{client: client, topic: topic, qos: cfg.QoS, retained: cfg.Retained}
}

func (m *MQTTOutput) Write(p []byte) (int, error) {
	if err := m.Flush(); err != nil {
		return 0, err
	}
	payload := append([]byte(nil), p...)
	m.pending = m.client.Publish(m.topic, m.qos, m.retained, payload)
	return len(p), nil
}

func (m *MQTTOutput) Flush() error {
	if m.pending == nil {
		return nil
	}
	token := m.pending
	m.pending = nil
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", m.topic, err)
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	err := m.Flush()
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesceMs)
	}
	return err
}
