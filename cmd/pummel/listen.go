package main

import (
	"github.com/spf13/cobra"

	"github.com/ssd532/pummel"
	"github.com/ssd532/pummel/internal/config"
)

type listenOptions struct {
	topic   string
	groupID string
	json    bool
}

func newListenCmd(g *globalOptions) *cobra.Command {
	o := &listenOptions{}
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Consume messages from a topic (not supported yet)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListen(cmd, g, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.topic, "topic", "", "Topic to consume from")
	f.StringVar(&o.groupID, "group-id", "", "Consumer group id")
	f.BoolVar(&o.json, "json", false, "Try to parse JSON to pretty print")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func runListen(cmd *cobra.Command, g *globalOptions, o *listenOptions) error {
	logger, cfg, err := g.setup()
	if err != nil {
		return err
	}
	props := cfg.ConsumerProps(o.groupID, g.overrides.Map())
	logger.Debug().
		Strs("props", config.Keys(props)).
		Bool("json", o.json).
		Msg("consumer config ready")

	var l pummel.Listener = pummel.UnsupportedListener{}
	return l.Listen(cmd.Context(), o.topic, o.groupID)
}
