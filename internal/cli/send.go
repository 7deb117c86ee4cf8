package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/topicrelay/internal/compression"
	"github.com/jmylchreest/topicrelay/internal/config"
	"github.com/jmylchreest/topicrelay/internal/metrics"
	"github.com/jmylchreest/topicrelay/internal/relay"
	"github.com/jmylchreest/topicrelay/internal/security"
	"github.com/jmylchreest/topicrelay/internal/transport"
	"github.com/jmylchreest/topicrelay/pkg/rosmsg"
)

type sendOptions struct {
	input    string
	topic    string
	msgType  string
	md5      string
	compress string
}

func newSendCmd(opts *globalOptions) *cobra.Command {
	so := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish messages to a receiver",
		Long: `Connect to a receiver and publish messages.

With --topic the whole input is sent as one serialised message of that
topic. Otherwise the input is a CBOR message stream as written by
"topicrelay receive --output", and each message is republished on its
topic. Topics must be configured unless given with --topic; missing md5
sums are computed from the local message definitions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger(cmd)

			cfg, err := opts.loadConfig(logger, func(c *config.Config) {
				stringFlag(cmd.Flags(), "connect", &c.Connect)
				if so.topic != "" {
					c.Topics = append(c.Topics, config.TopicConfig{
						Name:     so.topic,
						Type:     so.msgType,
						MD5:      so.md5,
						Compress: so.compress,
					})
				}
			})
			if err != nil {
				return err
			}
			if cfg.Connect == "" {
				return &config.ConfigurationError{Field: "connect", Reason: "no receiver address configured"}
			}
			if err := cfg.ValidateSender(); err != nil {
				return err
			}

			topics, err := relayTopics(cfg, rosmsg.NewRegistry(cfg.SchemaPaths...))
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if so.input != "" && so.input != "-" {
				f, err := os.Open(so.input) // #nosec G304 -- path given on the command line
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			conn, err := transport.Dial(cmd.Context(), cfg.Connect, int(cfg.MaxMessageSize))
			if err != nil {
				return err
			}
			defer conn.Close()

			sender, err := relay.NewSender(conn, topics, logger, metrics.New())
			if err != nil {
				return err
			}

			sent := 0
			publish := func(topic string, payload []byte) error {
				ok, err := sender.Publish(cmd.Context(), topic, payload)
				if err != nil {
					return err
				}
				if ok {
					sent++
				}
				return nil
			}

			if so.topic != "" {
				payload, err := io.ReadAll(security.NewLimitedReader(in, cfg.MaxMessageSize))
				if err != nil {
					return fmt.Errorf("failed to read message: %w", err)
				}
				err = publish(so.topic, payload)
				if err != nil {
					return err
				}
			} else {
				err = relay.ReadMessages(in, func(msg *relay.Message) error {
					payload, err := compression.Decompress(msg.Codec, msg.Payload, cfg.MaxMessageSize)
					if err != nil {
						return fmt.Errorf("topic %s: %w", msg.Topic, err)
					}
					return publish(msg.Topic, payload)
				})
				if err != nil {
					return err
				}
			}

			logger.Info("done", "sent", sent, "receiver", cfg.Connect)
			return nil
		},
	}

	cmd.Flags().String("connect", "", "receiver address")
	cmd.Flags().StringVarP(&so.input, "input", "i", "-", "read messages from this file")
	cmd.Flags().StringVarP(&so.topic, "topic", "t", "", "send the input as one message on this topic")
	cmd.Flags().StringVar(&so.msgType, "type", "", "message type for --topic")
	cmd.Flags().StringVar(&so.md5, "md5", "", "message md5 for --topic (computed when empty)")
	cmd.Flags().StringVar(&so.compress, "compress", "", fmt.Sprintf("payload compression for --topic %v", compression.Codecs))

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		if so.topic != "" && so.msgType == "" {
			return errors.New("--type is required with --topic")
		}
		return nil
	}

	return cmd
}
