// Package cli provides the command-line interface for topicrelay.
package cli

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/topicrelay/internal/config"
	"github.com/jmylchreest/topicrelay/internal/logging"
	"github.com/jmylchreest/topicrelay/internal/version"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	verbose    bool
	quiet      bool
	configPath string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "topicrelay",
		Short: "Relay ROS topics between hosts",
		Long: `topicrelay forwards ROS topics between hosts over a framed TCP link.

The receiving side can prefix topic names and coordinate frame ids so that
several robots publishing the same frames can share one ROS master. Frame
ids are rewritten by per-schema plugins that are compiled on first use and
cached on disk.`,
		Version:      version.Short(),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.SetVersionTemplate(version.String() + "\n")

	rootCmd.AddCommand(
		newVersionCmd(),
		newReceiveCmd(opts),
		newSendCmd(opts),
		newRewriterCmd(opts),
		newSchemaCmd(opts),
		newCacheCmd(opts),
	)

	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// logger creates the root logger for a command. Output goes to the
// command's error stream so tests can capture it.
func (o *globalOptions) logger(cmd *cobra.Command) hclog.Logger {
	out := cmd.ErrOrStderr()
	if out == os.Stderr {
		out = nil
	}
	return logging.New(logging.Options{
		Level:  logging.LevelFromFlags(o.verbose, o.quiet),
		Output: out,
	})
}

// loadConfig resolves the configuration file, the environment and the
// given flag overrides.
func (o *globalOptions) loadConfig(logger hclog.Logger, overrides ...func(*config.Config)) (*config.Config, error) {
	b := config.NewBuilder().
		WithFile(o.configPath).
		WithEnv().
		WithLogger(logger)
	for _, fn := range overrides {
		b = b.WithOverrides(fn)
	}
	return b.Build()
}

// stringFlag copies a flag into dst if it was set on the command line.
func stringFlag(fs *pflag.FlagSet, name string, dst *string) {
	if !fs.Changed(name) {
		return
	}
	if v, err := fs.GetString(name); err == nil {
		*dst = v
	}
}

func newVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print detailed version information including build date, commit hash, and Go version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), version.GetInfo())
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")
	return cmd
}
