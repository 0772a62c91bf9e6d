package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ssd532/pummel"
	"github.com/ssd532/pummel/internal/config"
	"github.com/ssd532/pummel/internal/metrics"
	"github.com/ssd532/pummel/requester"
)

type produceOptions struct {
	file         string
	topic        string
	iterations   int
	concurrency  int
	rate         float64
	burst        int
	timeout      time.Duration
	metricsAddr  string
	histogramOut string
}

func newProduceCmd(g *globalOptions) *cobra.Command {
	o := &produceOptions{}
	cmd := &cobra.Command{
		Use:   "produce [key]",
		Short: "Send the contents of a file to a topic, repeatedly",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProduce(cmd, args, g, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.file, "file", "", "Payload file, read fully before sending")
	f.StringVar(&o.topic, "topic", "", "Topic to send to")
	f.IntVar(&o.iterations, "iterations", 1, "Number of times to send the payload")
	f.IntVar(&o.concurrency, "concurrency", pummel.DefaultConcurrency, "Maximum sends in flight")
	f.Float64Var(&o.rate, "rate", 0, "Maximum sends started per second (0 = unpaced)")
	f.IntVar(&o.burst, "burst", 1, "Sends allowed to start at once when --rate is set")
	f.DurationVar(&o.timeout, "timeout", 0, "Per-send timeout (0 = client default)")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	f.StringVar(&o.histogramOut, "histogram-out", "", "Write the latency distribution to this file")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func runProduce(cmd *cobra.Command, args []string, g *globalOptions, o *produceOptions) error {
	logger, cfg, err := g.setup()
	if err != nil {
		return err
	}
	logger = logger.With().Str("run_id", uuid.NewString()).Logger()

	key := ""
	if len(args) == 1 {
		key = args[0]
	}
	job, err := pummel.NewJob(o.file, o.topic, key, o.iterations)
	if err != nil {
		return err
	}
	job.Timeout = o.timeout

	props := cfg.ProducerProps(g.overrides.Map())
	factory, err := requester.New(g.kind, props)
	if err != nil {
		return err
	}
	r := factory.GetRequester()
	if err := r.Setup(); err != nil {
		return err
	}
	defer func() {
		if err := r.Teardown(); err != nil {
			logger.Warn().Err(err).Msg("teardown failed")
		}
	}()
	logger.Debug().
		Str("kind", g.kind).
		Strs("brokers", config.Brokers(props)).
		Strs("props", config.Keys(props)).
		Msg("producer ready")

	dcfg := pummel.Config{
		Concurrency: o.concurrency,
		Rate:        o.rate,
		Burst:       o.burst,
		Progress:    os.Stdout,
		Logger:      logger,
	}
	if o.metricsAddr != "" {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		m := metrics.New()
		m.Serve(ctx, o.metricsAddr, logger)
		dcfg.Observer = m
	}

	summary := pummel.NewDispatcher(r, dcfg).Run(job)
	logger.Debug().Stringer("summary", summary).Msg("job completed")

	if o.histogramOut != "" {
		if err := summary.GenerateLatencyDistribution(nil, o.histogramOut); err != nil {
			return err
		}
	}
	return nil
}
