package requester

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ssd532/pummel"
	"github.com/ssd532/pummel/internal/config"
)

// MQTTRequesterFactory implements RequesterFactory by creating a Requester
// which publishes messages to an MQTT broker at the mqtt.qos property's QoS
// (default 1).
type MQTTRequesterFactory struct {
	URLs  []string
	Props map[string]string
}

// GetRequester returns a new Requester.
func (m *MQTTRequesterFactory) GetRequester() pummel.Requester {
	return &mqttRequester{urls: m.URLs, props: m.Props}
}

type mqttRequester struct {
	urls   []string
	props  map[string]string
	qos    byte
	client mqtt.Client
}

// Setup prepares the Requester for sending.
func (m *mqttRequester) Setup() error {
	qos, err := intProp(m.props, "mqtt.qos", 1)
	if err != nil {
		return err
	}
	if qos < 0 || qos > 2 {
		return fmt.Errorf("requester: mqtt.qos: invalid value %d", qos)
	}

	opts := mqtt.NewClientOptions().SetClientID(clientID(m.props))
	for _, u := range m.urls {
		opts.AddBroker(u)
	}
	if user := m.props[config.KeySASLUsername]; user != "" {
		opts.SetUsername(user)
		opts.SetPassword(m.props[config.KeySASLPassword])
	}

	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return tok.Error()
	}
	m.qos = byte(qos)
	m.client = client
	return nil
}

// Send publishes msg and waits for the QoS handshake. MQTT has no key.
func (m *mqttRequester) Send(ctx context.Context, msg pummel.Message) (pummel.Metadata, error) {
	tok := m.client.Publish(msg.Topic, m.qos, false, msg.Payload)
	if !tok.WaitTimeout(waitFor(ctx)) {
		if err := ctx.Err(); err != nil {
			return pummel.Metadata{}, err
		}
		return pummel.Metadata{}, context.DeadlineExceeded
	}
	if err := tok.Error(); err != nil {
		return pummel.Metadata{}, err
	}
	return pummel.Metadata{Detail: "topic=" + msg.Topic}, nil
}

// Teardown is called upon job completion.
func (m *mqttRequester) Teardown() error {
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}
	return nil
}
