// Command pummel sends a payload to a message broker many times and reports
// progress, an ETA and a latency summary.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Shopify/sarama"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ssd532/pummel/internal/config"
	"github.com/ssd532/pummel/internal/logx"
	"github.com/ssd532/pummel/requester"
)

// kafkaDebugLogLevel is the syslog-style level from which sarama's own
// logging is forwarded.
const kafkaDebugLogLevel = 7

// globalOptions holds the flags shared by every subcommand.
type globalOptions struct {
	brokers       []string
	kind          string
	config        string
	kafkaLogLevel uint8
	logLevel      string
	debug         bool
	overrides     config.Overrides
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "pummel",
		Short:         "Exercise a message broker producer under repeated load",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringSliceVar(&opts.brokers, "brokers", []string{"localhost:9092"}, "Broker addresses, used when creating the config file")
	f.StringVar(&opts.kind, "kind", "kafka", "Broker kind: "+strings.Join(requester.Kinds(), ", "))
	f.StringVar(&opts.config, "config", config.DefaultFile, "Connection config file (yaml or json), created when missing")
	f.Uint8Var(&opts.kafkaLogLevel, "kafka-log-level", 6, "Kafka client log level; 7 forwards client debug logs")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error (env: "+logx.EnvLevel+")")
	f.BoolVar(&opts.debug, "debug", false, "Include callers in log lines")
	f.Var(&opts.overrides.SecurityProtocol, "security-protocol", "PLAINTEXT, SSL, SASL_PLAINTEXT or SASL_SSL")
	f.StringVar(&opts.overrides.SASLUsername, "sasl-username", "", "SASL username")
	f.StringVar(&opts.overrides.SASLPassword, "sasl-password", "", "SASL password")
	f.StringVar(&opts.overrides.SASLMechanism, "sasl-mechanism", "", "SASL mechanism for kafka (PLAIN, SCRAM-SHA-256, SCRAM-SHA-512)")

	cmd.AddCommand(newProduceCmd(opts), newListenCmd(opts))
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup builds the logger and loads the connection config shared by every
// subcommand.
func (o *globalOptions) setup() (zerolog.Logger, *config.Config, error) {
	logger := logx.New(logx.Options{Level: o.logLevel, Debug: o.debug})

	if o.kafkaLogLevel >= kafkaDebugLogLevel {
		sarama.Logger = log.New(logx.Writer(logger.With().Str("component", "sarama").Logger(), zerolog.DebugLevel), "", 0)
	}

	cfg, created, err := config.LoadOrCreate(o.config, o.brokers, logger)
	if err != nil {
		return logger, nil, err
	}
	logger.Debug().
		Str("path", o.config).
		Bool("created", created).
		Strs("connection", config.Keys(cfg.Connection)).
		Msg("config ready")
	return logger, cfg, nil
}
