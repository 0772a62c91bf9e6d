package requester

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/ssd532/pummel"
	"github.com/ssd532/pummel/internal/config"
)

// keyHeader carries the message key on brokers with headers.
const keyHeader = "Pummel-Key"

// NATSRequesterFactory implements RequesterFactory by creating a Requester
// which publishes messages to core NATS.
type NATSRequesterFactory struct {
	URLs  []string
	Props map[string]string
}

// GetRequester returns a new Requester.
func (n *NATSRequesterFactory) GetRequester() pummel.Requester {
	return &natsRequester{urls: n.URLs, props: n.Props}
}

// natsRequester implements Requester by publishing to a subject and
// flushing, so a send completes once the server has processed it.
type natsRequester struct {
	urls  []string
	props map[string]string
	conn  *nats.Conn
}

// Setup prepares the Requester for sending.
func (n *natsRequester) Setup() error {
	conn, err := natsConnect(n.urls, n.props)
	if err != nil {
		return err
	}
	n.conn = conn
	return nil
}

// Send publishes msg on the subject named by its topic.
func (n *natsRequester) Send(ctx context.Context, msg pummel.Message) (pummel.Metadata, error) {
	m := newNATSMsg(msg)
	if err := n.conn.PublishMsg(m); err != nil {
		return pummel.Metadata{}, err
	}
	if err := n.conn.FlushTimeout(waitFor(ctx)); err != nil {
		return pummel.Metadata{}, err
	}
	return pummel.Metadata{Detail: "subject=" + msg.Topic}, nil
}

// Teardown is called upon job completion.
func (n *natsRequester) Teardown() error {
	if n.conn == nil {
		return nil
	}
	err := n.conn.Drain()
	n.conn = nil
	return err
}

func natsConnect(urls []string, props map[string]string) (*nats.Conn, error) {
	opts := []nats.Option{nats.Name(prop(props, "client.id", "pummel"))}
	if user := props[config.KeySASLUsername]; user != "" {
		opts = append(opts, nats.UserInfo(user, props[config.KeySASLPassword]))
	}
	return nats.Connect(strings.Join(urls, ","), opts...)
}

func newNATSMsg(msg pummel.Message) *nats.Msg {
	m := nats.NewMsg(msg.Topic)
	m.Data = msg.Payload
	if msg.Key != "" {
		m.Header.Set(keyHeader, msg.Key)
	}
	return m
}
