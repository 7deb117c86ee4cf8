package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-ps"
	"github.com/spf13/cobra"
	"github.com/zeebo/blake3"

	"github.com/jmylchreest/topicrelay/internal/plugin/protocol"
	"github.com/jmylchreest/topicrelay/internal/rewriter"
	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage compiled rewriters",
	}
	cmd.AddCommand(newCacheListCmd(opts), newCacheCleanCmd(opts))
	return cmd
}

func newCacheListCmd(opts *globalOptions) *cobra.Command {
	var showProtocol bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached rewriters",
		Long: `List the rewriters in the cache root with their freshness and content
digest. With --protocol each artifact is asked for its protocol version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(opts.logger(cmd))
			if err != nil {
				return err
			}

			infos, err := rewriter.Inventory(cfg.CacheRoot, cfg.TemplatePath(), cfg.HeaderPath())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No rewriters cached in %s\n", cfg.CacheRoot)
				return nil
			}

			headers := []string{"SCHEMA", "MD5", "STATUS", "DIGEST"}
			if showProtocol {
				headers = append(headers, "PROTOCOL")
			}
			table := NewTable(headers)

			for _, info := range infos {
				row := []string{info.Fingerprint.Schema, info.Fingerprint.Hash, artifactStatus(info), "-"}
				if info.Path != "" {
					if digest, err := artifactDigest(info.Path); err == nil {
						row[3] = digest[:16]
					}
				}
				if showProtocol {
					row = append(row, artifactProtocol(cmd.Context(), info))
				}
				table.AddRow(row)
			}

			out := cmd.OutOrStdout()
			table.Render(out)

			if pids, err := rewriterProcesses(); err == nil && len(pids) > 0 {
				fmt.Fprintf(out, "\n%d rewriter process(es) running\n", len(pids))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showProtocol, "protocol", false, "query each artifact for its protocol version")
	return cmd
}

func newCacheCleanCmd(opts *globalOptions) *cobra.Command {
	var all, force bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover staging files, or every cached rewriter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger(cmd)
			cfg, err := opts.loadConfig(logger)
			if err != nil {
				return err
			}

			if all && !force {
				pids, err := rewriterProcesses()
				if err != nil {
					return err
				}
				if len(pids) > 0 {
					return fmt.Errorf("%d rewriter process(es) are running (pids %v), use --force to remove anyway", len(pids), pids)
				}
			}

			infos, err := rewriter.Inventory(cfg.CacheRoot, cfg.TemplatePath(), cfg.HeaderPath())
			if err != nil {
				return err
			}

			removed := 0
			for _, info := range infos {
				if all {
					if err := os.RemoveAll(info.Dir); err != nil {
						return fmt.Errorf("failed to remove %s: %w", info.Dir, err)
					}
					logger.Debug("removed rewriter", "dir", info.Dir)
					removed++
					continue
				}
				for _, path := range info.Staging {
					if err := os.Remove(path); err != nil {
						return fmt.Errorf("failed to remove %s: %w", path, err)
					}
					logger.Debug("removed staging file", "path", path)
					removed++
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d item(s) from %s\n", removed, cfg.CacheRoot)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove every cached rewriter")
	cmd.Flags().BoolVar(&force, "force", false, "remove even while rewriters are running")
	return cmd
}

func artifactStatus(info rewriter.ArtifactInfo) string {
	status := "missing"
	if info.Path != "" {
		status = "stale"
		if info.Fresh {
			status = "fresh"
		}
	}
	if n := len(info.Staging); n > 0 {
		status += fmt.Sprintf(" (%d staging)", n)
	}
	return status
}

// artifactDigest returns the hex BLAKE3 digest of a file.
func artifactDigest(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the cache inventory
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func artifactProtocol(ctx context.Context, info rewriter.ArtifactInfo) string {
	if info.Path == "" {
		return "-"
	}
	result, err := protocol.DetectArtifact(ctx, info.Path)
	if err != nil {
		return "error"
	}
	if !result.Compatible {
		return result.PluginInfo.ProtocolVersion + " (incompatible)"
	}
	return result.PluginInfo.ProtocolVersion
}

// rewriterProcesses returns the pids of running rewriter artifacts.
func rewriterProcesses() ([]int, error) {
	processes, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to get process list: %w", err)
	}

	var pids []int
	for _, p := range processes {
		if p.Executable() == plugin.ArtifactName {
			pids = append(pids, p.Pid())
		}
	}
	return pids, nil
}
