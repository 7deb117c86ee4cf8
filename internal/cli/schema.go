package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/topicrelay/internal/config"
	"github.com/jmylchreest/topicrelay/pkg/rosmsg"
)

func newSchemaCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect local message definitions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "hash <package/Type>...",
			Short: "Print the md5 sum of message types",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				registry, err := opts.registry(cmd)
				if err != nil {
					return err
				}
				for _, name := range args {
					sum, err := registry.MD5(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <package/Type>",
			Short: "Print the text a message type's md5 sum is computed over",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				registry, err := opts.registry(cmd)
				if err != nil {
					return err
				}
				text, err := registry.Text(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			},
		},
	)
	return cmd
}

// registry opens the configured message definition search paths.
func (o *globalOptions) registry(cmd *cobra.Command) (*rosmsg.Registry, error) {
	cfg, err := o.loadConfig(o.logger(cmd))
	if err != nil {
		return nil, err
	}
	if len(cfg.SchemaPaths) == 0 {
		return nil, &config.ConfigurationError{Field: config.EnvCMakePrefixPath, Reason: "not defined and no schema_paths configured"}
	}
	return rosmsg.NewRegistry(cfg.SchemaPaths...), nil
}
