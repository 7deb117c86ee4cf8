package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/topicrelay/internal/config"
	"github.com/jmylchreest/topicrelay/internal/metrics"
	"github.com/jmylchreest/topicrelay/internal/relay"
	"github.com/jmylchreest/topicrelay/internal/transport"
)

func newReceiveCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Accept relayed topics and deliver them locally",
		Long: `Listen for senders and deliver every received message.

Topic names are prefixed with topic_prefix. When tf_prefix is set, every
frame id inside a message is prefixed too, using a rewriter compiled for
the message type on first use.

Messages are logged unless --output is given, in which case they are
written as a CBOR stream ("-" for stdout) that "topicrelay send" can read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger(cmd)

			cfg, err := opts.loadConfig(logger, func(c *config.Config) {
				stringFlag(cmd.Flags(), "listen", &c.Listen)
				stringFlag(cmd.Flags(), "topic-prefix", &c.TopicPrefix)
				stringFlag(cmd.Flags(), "tf-prefix", &c.FramePrefix)
				stringFlag(cmd.Flags(), "metrics-addr", &c.MetricsAddr)
			})
			if err != nil {
				return err
			}
			if err := cfg.ValidateRewriter(); err != nil {
				return err
			}

			m := metrics.New()
			cache, err := newCache(cfg, logger, m)
			if err != nil {
				return err
			}
			defer func() {
				if err := cache.Close(); err != nil {
					logger.Warn("failed to unload rewriters", "error", err)
				}
			}()

			var sink relay.Sink = &relay.LogSink{Logger: logger.Named("sink")}
			switch output {
			case "":
			case "-":
				sink = relay.NewWriterSink(cmd.OutOrStdout())
			default:
				f, err := os.Create(output) // #nosec G304 -- path given on the command line
				if err != nil {
					return fmt.Errorf("failed to create output: %w", err)
				}
				defer f.Close()
				sink = relay.NewWriterSink(f)
			}

			receiver, err := relay.NewReceiver(relay.ReceiverOptions{
				Cache:          cache,
				Sink:           sink,
				RenameTopic:    cfg.RewriteTopicName,
				MaxMessageSize: cfg.MaxMessageSize,
				Logger:         logger,
				Metrics:        m,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := transport.Listen(ctx, cfg.Listen)
			if err != nil {
				return err
			}
			logger.Info("listening", "addr", ln.Addr().String(), "topic_prefix", cfg.TopicPrefix, "tf_prefix", cfg.FramePrefix)

			g, gctx := errgroup.WithContext(ctx)
			if cfg.MetricsAddr != "" {
				g.Go(func() error { return m.Serve(gctx, cfg.MetricsAddr) })
			}
			g.Go(func() error { return receiver.Serve(gctx, ln) })

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("shutting down", "rewriters", cache.Stats().Entries)
			return nil
		},
	}

	cmd.Flags().String("listen", config.DefaultListen, "address to accept senders on")
	cmd.Flags().String("topic-prefix", "", "prefix for received topic names")
	cmd.Flags().String("tf-prefix", "", "prefix for frame ids; empty disables rewriting")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write received messages as CBOR to this file")

	return cmd
}
