package requester

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gocql/gocql"

	"github.com/ssd532/pummel"
	"github.com/ssd532/pummel/internal/config"
)

var cqlIdentifier = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

// CassandraRequesterFactory implements RequesterFactory by creating a
// Requester which inserts each message as a row of the table named by the
// topic, in the cassandra.keyspace keyspace. The table is expected to be
//
//	CREATE TABLE <topic> (key text, id timeuuid, payload blob, PRIMARY KEY (key, id))
type CassandraRequesterFactory struct {
	URLs  []string
	Props map[string]string
}

// GetRequester returns a new Requester.
func (c *CassandraRequesterFactory) GetRequester() pummel.Requester {
	return &cassandraRequester{urls: c.URLs, props: c.Props}
}

type cassandraRequester struct {
	urls    []string
	props   map[string]string
	session *gocql.Session
}

// Setup prepares the Requester for sending.
func (c *cassandraRequester) Setup() error {
	cluster := gocql.NewCluster(c.urls...)
	cluster.Keyspace = prop(c.props, "cassandra.keyspace", "pummel")
	consistency, err := parseConsistency(prop(c.props, "cassandra.consistency", "QUORUM"))
	if err != nil {
		return err
	}
	cluster.Consistency = consistency
	if user := c.props[config.KeySASLUsername]; user != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: user,
			Password: c.props[config.KeySASLPassword],
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return err
	}
	c.session = session
	return nil
}

// Send inserts msg into the table named by its topic.
func (c *cassandraRequester) Send(ctx context.Context, msg pummel.Message) (pummel.Metadata, error) {
	if !cqlIdentifier.MatchString(msg.Topic) {
		return pummel.Metadata{}, fmt.Errorf("requester: %q is not a valid table name", msg.Topic)
	}
	stmt := "INSERT INTO " + msg.Topic + " (key, id, payload) VALUES (?, ?, ?)"
	id := gocql.TimeUUID()
	if err := c.session.Query(stmt, msg.Key, id, msg.Payload).WithContext(ctx).Exec(); err != nil {
		return pummel.Metadata{}, err
	}
	return pummel.Metadata{Detail: "table=" + msg.Topic + " id=" + id.String()}, nil
}

// Teardown is called upon job completion.
func (c *cassandraRequester) Teardown() error {
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
	return nil
}

func parseConsistency(s string) (gocql.Consistency, error) {
	switch strings.ToUpper(s) {
	case "ONE":
		return gocql.One, nil
	case "TWO":
		return gocql.Two, nil
	case "QUORUM":
		return gocql.Quorum, nil
	case "ALL":
		return gocql.All, nil
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum, nil
	case "LOCAL_ONE":
		return gocql.LocalOne, nil
	default:
		return 0, fmt.Errorf("requester: cassandra.consistency: invalid value %q", s)
	}
}
