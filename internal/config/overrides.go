package config

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSecurityProtocol = errors.New("config: invalid security protocol")

// SecurityProtocol is the transport security used to reach brokers.
type SecurityProtocol string

const (
	Plaintext     SecurityProtocol = "PLAINTEXT"
	SSL           SecurityProtocol = "SSL"
	SASLPlaintext SecurityProtocol = "SASL_PLAINTEXT"
	SASLSSL       SecurityProtocol = "SASL_SSL"
)

// ParseSecurityProtocol accepts the four names brokers understand.
func ParseSecurityProtocol(s string) (SecurityProtocol, error) {
	switch p := SecurityProtocol(strings.TrimSpace(s)); p {
	case Plaintext, SSL, SASLPlaintext, SASLSSL:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidSecurityProtocol, s)
	}
}

// Set implements pflag.Value.
func (p *SecurityProtocol) Set(s string) error {
	v, err := ParseSecurityProtocol(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p *SecurityProtocol) String() string { return string(*p) }

// Type implements pflag.Value.
func (p *SecurityProtocol) Type() string { return "protocol" }

// Overrides are connection settings given on the command line. They win
// over the config file.
type Overrides struct {
	SecurityProtocol SecurityProtocol
	SASLUsername     string
	SASLPassword     string
	SASLMechanism    string
}

// Map returns only the overrides that were set.
func (o Overrides) Map() map[string]string {
	m := map[string]string{}
	if o.SASLUsername != "" {
		m[KeySASLUsername] = o.SASLUsername
	}
	if o.SASLPassword != "" {
		m[KeySASLPassword] = o.SASLPassword
	}
	if o.SASLMechanism != "" {
		m[KeySASLMechanism] = o.SASLMechanism
	}
	if o.SecurityProtocol != "" {
		m[KeySecurityProtocol] = string(o.SecurityProtocol)
	}
	return m
}
