// Package config resolves process configuration from a YAML file, the
// environment and command line overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jmylchreest/topicrelay/internal/rewriter"
)

// Environment variables read by Builder.WithEnv.
const (
	EnvTopicPrefix     = "TOPICRELAY_TOPIC_PREFIX"
	EnvFramePrefix     = "TOPICRELAY_TF_PREFIX"
	EnvCacheRoot       = "TOPICRELAY_CACHE_ROOT"
	EnvShareRoot       = "TOPICRELAY_SHARE_ROOT"
	EnvCompiler        = "TOPICRELAY_COMPILER"
	EnvCMakePrefixPath = "CMAKE_PREFIX_PATH"
)

// Defaults.
const (
	DefaultListen         = ":17001"
	DefaultMaxMessageSize = 100 * 1024 * 1024
)

// ConfigurationError reports configuration that prevents startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// TopicConfig describes one topic relayed by the sender.
type TopicConfig struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	MD5      string  `yaml:"md5"`
	Rate     float64 `yaml:"rate"`
	Compress string  `yaml:"compress"`
}

// Config is the resolved process configuration. It is not modified after
// Build returns.
type Config struct {
	// TopicPrefix is prepended to every received topic name.
	TopicPrefix string

	// FramePrefix is prepended to every frame id. Empty disables rewriting.
	FramePrefix string

	// CacheRoot holds compiled rewriters.
	CacheRoot string

	// ShareRoot holds the rewriter template directory.
	ShareRoot string

	// SchemaPaths are searched for message definitions.
	SchemaPaths []string

	Compiler          string
	MaxParallelBuilds int
	CompileTimeout    time.Duration

	Listen         string
	Connect        string
	MetricsAddr    string
	MaxMessageSize int64

	Topics []TopicConfig
}

// TemplatePath returns the template source compiled for every schema.
func (c *Config) TemplatePath() string {
	return filepath.Join(c.ShareRoot, "rewriter", "main.go")
}

// HeaderPath returns the module file the template is compiled against.
func (c *Config) HeaderPath() string {
	return filepath.Join(c.ShareRoot, "rewriter", "go.mod")
}

// RewriteTopicName prepends the topic prefix.
func (c *Config) RewriteTopicName(name string) string {
	return c.TopicPrefix + name
}

// ValidateRewriter checks everything the receiving side needs to build
// rewriters. Rewriting may still be disabled by an empty FramePrefix; the
// environment must be complete regardless.
func (c *Config) ValidateRewriter() error {
	if len(c.SchemaPaths) == 0 {
		return &ConfigurationError{Field: EnvCMakePrefixPath, Reason: "not defined and no schema_paths configured"}
	}
	if c.ShareRoot == "" {
		return &ConfigurationError{Field: "share_root", Reason: "could not find the topicrelay share directory"}
	}
	for _, path := range []string{c.TemplatePath(), c.HeaderPath()} {
		if _, err := os.Stat(path); err != nil {
			return &ConfigurationError{Field: "share_root", Reason: fmt.Sprintf("rewriter template not found: %v", err)}
		}
	}
	if err := rewriter.CheckModule(c.HeaderPath()); err != nil {
		return &ConfigurationError{Field: "share_root", Reason: fmt.Sprintf("%v; run topicrelay rewriter install", err)}
	}
	if c.CacheRoot == "" {
		return &ConfigurationError{Field: "cache_root", Reason: "could not determine a cache directory"}
	}
	return nil
}

// ValidateSender checks the topic list.
func (c *Config) ValidateSender() error {
	if len(c.Topics) == 0 {
		return &ConfigurationError{Field: "topics", Reason: "no topics configured"}
	}
	seen := make(map[string]bool, len(c.Topics))
	for i, t := range c.Topics {
		if t.Name == "" || t.Type == "" {
			return &ConfigurationError{Field: fmt.Sprintf("topics[%d]", i), Reason: "name and type are required"}
		}
		if seen[t.Name] {
			return &ConfigurationError{Field: fmt.Sprintf("topics[%d]", i), Reason: fmt.Sprintf("topic %s configured twice", t.Name)}
		}
		seen[t.Name] = true
	}
	return nil
}

// schemaPathsFromPrefixes maps CMAKE_PREFIX_PATH entries to their share
// directories.
func schemaPathsFromPrefixes(value string) []string {
	var paths []string
	for _, prefix := range filepath.SplitList(value) {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		path := filepath.Join(prefix, "share")
		if !slices.Contains(paths, path) {
			paths = append(paths, path)
		}
	}
	return paths
}
