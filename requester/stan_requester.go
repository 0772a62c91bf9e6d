package requester

import (
	"context"
	"strings"

	"github.com/nats-io/stan.go"

	"github.com/ssd532/pummel"
)

// STANRequesterFactory implements RequesterFactory by creating a Requester
// which publishes messages to NATS Streaming. The cluster id comes from the
// stan.cluster.id property.
type STANRequesterFactory struct {
	URLs  []string
	Props map[string]string
}

// GetRequester returns a new Requester.
func (s *STANRequesterFactory) GetRequester() pummel.Requester {
	return &stanRequester{
		urls:      s.URLs,
		clusterID: prop(s.Props, "stan.cluster.id", "test-cluster"),
		clientID:  clientID(s.Props),
	}
}

type stanRequester struct {
	urls      []string
	clusterID string
	clientID  string
	conn      stan.Conn
}

// Setup prepares the Requester for sending.
func (s *stanRequester) Setup() error {
	conn, err := stan.Connect(s.clusterID, s.clientID, stan.NatsURL(strings.Join(s.urls, ",")))
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Send publishes msg and waits for the server ack. STAN has no key.
func (s *stanRequester) Send(ctx context.Context, msg pummel.Message) (pummel.Metadata, error) {
	return withContext(ctx, func() (pummel.Metadata, error) {
		if err := s.conn.Publish(msg.Topic, msg.Payload); err != nil {
			return pummel.Metadata{}, err
		}
		return pummel.Metadata{Detail: "channel=" + msg.Topic}, nil
	})
}

// Teardown is called upon job completion.
func (s *stanRequester) Teardown() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
