package requester

import (
	"context"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/ssd532/pummel"
)

// JetStreamRequesterFactory implements RequesterFactory by creating a
// Requester which publishes messages to NATS JetStream and waits for the
// stream's acknowledgement.
//
// When the jetstream.stream property is set, Setup creates that stream
// over the jetstream.subjects property (default: the stream name).
type JetStreamRequesterFactory struct {
	URLs  []string
	Props map[string]string
}

// GetRequester returns a new Requester.
func (j *JetStreamRequesterFactory) GetRequester() pummel.Requester {
	return &jetstreamRequester{
		urls:     j.URLs,
		props:    j.Props,
		stream:   prop(j.Props, "jetstream.stream", ""),
		subjects: prop(j.Props, "jetstream.subjects", prop(j.Props, "jetstream.stream", "")),
	}
}

type jetstreamRequester struct {
	urls     []string
	props    map[string]string
	stream   string
	subjects string
	conn     *nats.Conn
	js       nats.JetStreamContext
}

// Setup prepares the Requester for sending.
func (j *jetstreamRequester) Setup() error {
	conn, err := natsConnect(j.urls, j.props)
	if err != nil {
		return err
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return err
	}

	if j.stream != "" {
		_, err = js.AddStream(&nats.StreamConfig{Name: j.stream, Subjects: []string{j.subjects}})
		if err != nil {
			conn.Close()
			return err
		}
	}

	j.conn = conn
	j.js = js
	return nil
}

// Send publishes msg and reports the stream sequence it was stored at.
func (j *jetstreamRequester) Send(ctx context.Context, msg pummel.Message) (pummel.Metadata, error) {
	var opts []nats.PubOpt
	if _, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Context(ctx))
	}
	ack, err := j.js.PublishMsg(newNATSMsg(msg), opts...)
	if err != nil {
		return pummel.Metadata{}, err
	}
	return pummel.Metadata{
		Offset: int64(ack.Sequence),
		Detail: "stream=" + ack.Stream + " duplicate=" + strconv.FormatBool(ack.Duplicate),
	}, nil
}

// Teardown is called upon job completion. Streams are left in place.
func (j *jetstreamRequester) Teardown() error {
	if j.conn == nil {
		return nil
	}
	j.conn.Close()
	j.conn = nil
	j.js = nil
	return nil
}
