package requester

import (
	"context"
	"time"

	"github.com/garyburd/redigo/redis"

	"github.com/ssd532/pummel"
	"github.com/ssd532/pummel/internal/config"
)

// RedisRequesterFactory implements RequesterFactory by creating a Requester
// which appends messages to a Redis stream with XADD. A redis.maxlen
// property caps the stream approximately.
type RedisRequesterFactory struct {
	URLs  []string
	Props map[string]string
}

// GetRequester returns a new Requester.
func (r *RedisRequesterFactory) GetRequester() pummel.Requester {
	return &redisRequester{addr: r.URLs[0], props: r.Props}
}

type redisRequester struct {
	addr   string
	props  map[string]string
	maxLen int
	pool   *redis.Pool
}

// Setup prepares the Requester for sending.
func (r *redisRequester) Setup() error {
	maxLen, err := intProp(r.props, "redis.maxlen", 0)
	if err != nil {
		return err
	}
	password := r.props[config.KeySASLPassword]

	pool := &redis.Pool{
		MaxIdle:     64,
		IdleTimeout: time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", r.addr, redis.DialPassword(password))
		},
	}
	conn := pool.Get()
	_, err = conn.Do("PING")
	conn.Close()
	if err != nil {
		pool.Close()
		return err
	}

	r.maxLen = maxLen
	r.pool = pool
	return nil
}

// Send appends msg to the stream named by its topic and reports the entry id.
func (r *redisRequester) Send(ctx context.Context, msg pummel.Message) (pummel.Metadata, error) {
	args := redis.Args{}.Add(msg.Topic)
	if r.maxLen > 0 {
		args = args.Add("MAXLEN", "~", r.maxLen)
	}
	args = args.Add("*", "key", msg.Key, "payload", msg.Payload)

	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return pummel.Metadata{}, err
	}
	defer conn.Close()
	id, err := redis.String(redis.DoWithTimeout(conn, waitFor(ctx), "XADD", args...))
	if err != nil {
		return pummel.Metadata{}, err
	}
	return pummel.Metadata{Detail: "id=" + id}, nil
}

// Teardown is called upon job completion.
func (r *redisRequester) Teardown() error {
	if r.pool == nil {
		return nil
	}
	err := r.pool.Close()
	r.pool = nil
	return err
}
