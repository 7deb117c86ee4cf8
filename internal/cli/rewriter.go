package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/topicrelay/internal/config"
	"github.com/jmylchreest/topicrelay/internal/rewriter"
	"github.com/jmylchreest/topicrelay/internal/security"
	"github.com/jmylchreest/topicrelay/pkg/rosmsg"
)

func newRewriterCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewriter",
		Short: "Build and run frame id rewriters",
	}
	cmd.AddCommand(newRewriterBuildCmd(opts))
	cmd.AddCommand(newRewriterInstallCmd(opts))
	return cmd
}

func newRewriterInstallCmd(opts *globalOptions) *cobra.Command {
	var source, moduleRoot string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the rewriter template into the share directory",
		Long: `Copy the rewriter template into <share-root>/rewriter, point its module
file at the topicrelay source tree with an absolute replace directive and run
"go mod tidy" there to write go.sum. Packages run this once after placing the
source tree; the relay refuses to start while the template cannot resolve
its imports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger(cmd)

			cfg, err := opts.loadConfig(logger, func(c *config.Config) {
				stringFlag(cmd.Flags(), "share-root", &c.ShareRoot)
			})
			if err != nil {
				return err
			}
			if cfg.ShareRoot == "" {
				return &config.ConfigurationError{Field: "share_root", Reason: "not configured; pass --share-root"}
			}
			if source == "" {
				source = filepath.Join(moduleRoot, "contrib", "rewriter")
			}

			dir, err := rewriter.Install(cmd.Context(), rewriter.InstallOptions{
				Source:     source,
				ModuleRoot: moduleRoot,
				ShareRoot:  cfg.ShareRoot,
				Compiler:   cfg.Compiler,
			})
			if err != nil {
				return err
			}

			logger.Info("installed rewriter template", "dir", dir, "module_root", moduleRoot)
			return nil
		},
	}

	cmd.Flags().StringVar(&moduleRoot, "module-root", ".", "topicrelay source tree the template builds against")
	cmd.Flags().StringVar(&source, "source", "", "template directory (default <module-root>/contrib/rewriter)")
	cmd.Flags().String("share-root", "", "share directory to install into")

	return cmd
}

func newRewriterBuildCmd(opts *globalOptions) *cobra.Command {
	var rewrite bool

	cmd := &cobra.Command{
		Use:   "build <package/Type> [md5]",
		Short: "Build or load the rewriter for a message type",
		Long: `Build the rewriter for a message type, or load it from the cache if an
up to date one exists. The md5 defaults to the hash of the local message
definition.

With --rewrite a serialised message is read from stdin and written to
stdout with every frame id prefixed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd)

			cfg, err := opts.loadConfig(logger, func(c *config.Config) {
				stringFlag(cmd.Flags(), "tf-prefix", &c.FramePrefix)
			})
			if err != nil {
				return err
			}
			if err := cfg.ValidateRewriter(); err != nil {
				return err
			}
			if cfg.FramePrefix == "" {
				return &config.ConfigurationError{Field: "tf_prefix", Reason: "rewriting is disabled"}
			}

			schema := args[0]
			var hash string
			if len(args) > 1 {
				hash = args[1]
			} else if hash, err = rosmsg.NewRegistry(cfg.SchemaPaths...).MD5(schema); err != nil {
				return err
			}

			cache, err := newCache(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer cache.Close()

			start := time.Now()
			h, err := cache.Open(schema, hash).Wait(cmd.Context())
			if err != nil {
				return err
			}
			if !h.Usable() {
				return fmt.Errorf("rewriter for %s unavailable: %w", schema, h.Reason())
			}
			logger.Info("rewriter ready", "schema", schema, "md5", hash, "elapsed", time.Since(start).Round(time.Millisecond))

			if !rewrite {
				return nil
			}

			data, err := io.ReadAll(security.NewLimitedReader(cmd.InOrStdin(), cfg.MaxMessageSize))
			if err != nil {
				return fmt.Errorf("failed to read message: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(h.Rewrite(data))
			return err
		},
	}

	cmd.Flags().String("tf-prefix", "", "prefix for frame ids")
	cmd.Flags().BoolVar(&rewrite, "rewrite", false, "rewrite a message read from stdin")

	return cmd
}
