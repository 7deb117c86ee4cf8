package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML file layout.
type fileConfig struct {
	// Prefix is deprecated: it sets both TopicPrefix and FramePrefix.
	Prefix *string `yaml:"prefix"`

	TopicPrefix       *string       `yaml:"topic_prefix"`
	FramePrefix       *string       `yaml:"tf_prefix"`
	CacheRoot         string        `yaml:"cache_root"`
	ShareRoot         string        `yaml:"share_root"`
	SchemaPaths       []string      `yaml:"schema_paths"`
	Compiler          string        `yaml:"compiler"`
	MaxParallelBuilds int           `yaml:"max_parallel_builds"`
	CompileTimeout    time.Duration `yaml:"compile_timeout"`
	Listen            string        `yaml:"listen"`
	Connect           string        `yaml:"connect"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	MaxMessageSize    int64         `yaml:"max_message_size"`
	Topics            []TopicConfig `yaml:"topics"`
}

// Builder provides a fluent interface for resolving a Config.
type Builder struct {
	filePath  string
	useEnv    bool
	overrides []func(*Config)
	logger    hclog.Logger
}

// NewBuilder creates a builder with default settings.
func NewBuilder() *Builder {
	return &Builder{logger: hclog.NewNullLogger()}
}

// WithFile loads a YAML configuration file. An empty path is ignored.
func (b *Builder) WithFile(path string) *Builder {
	b.filePath = path
	return b
}

// WithEnv applies TOPICRELAY_* variables and derives schema paths from
// CMAKE_PREFIX_PATH.
func (b *Builder) WithEnv() *Builder {
	b.useEnv = true
	return b
}

// WithOverrides applies fn last, typically to copy command line flags.
func (b *Builder) WithOverrides(fn func(*Config)) *Builder {
	b.overrides = append(b.overrides, fn)
	return b
}

// WithLogger sets the logger deprecation warnings go to.
func (b *Builder) WithLogger(logger hclog.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Build resolves the configuration.
func (b *Builder) Build() (*Config, error) {
	cfg := &Config{
		Compiler:       "go",
		Listen:         DefaultListen,
		MaxMessageSize: DefaultMaxMessageSize,
	}

	if b.filePath != "" {
		if err := b.applyFile(cfg); err != nil {
			return nil, err
		}
	}

	if b.useEnv {
		b.applyEnv(cfg)
	}

	for _, fn := range b.overrides {
		fn(cfg)
	}

	if cfg.CacheRoot == "" {
		cfg.CacheRoot = defaultCacheRoot()
	}
	if cfg.ShareRoot == "" {
		cfg.ShareRoot = defaultShareRoot()
	}

	if cfg.MaxParallelBuilds < 0 {
		return nil, &ConfigurationError{Field: "max_parallel_builds", Reason: "must not be negative"}
	}
	if cfg.MaxMessageSize <= 0 {
		return nil, &ConfigurationError{Field: "max_message_size", Reason: "must be positive"}
	}

	return cfg, nil
}

func (b *Builder) applyFile(cfg *Config) error {
	data, err := os.ReadFile(b.filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", b.filePath, err)
	}

	if fc.Prefix != nil {
		b.logger.Warn("the 'prefix' setting is deprecated, set topic_prefix and tf_prefix separately")
		cfg.TopicPrefix = *fc.Prefix
		cfg.FramePrefix = *fc.Prefix
	}
	if fc.TopicPrefix != nil {
		cfg.TopicPrefix = *fc.TopicPrefix
	}
	if fc.FramePrefix != nil {
		cfg.FramePrefix = *fc.FramePrefix
	}

	setString(&cfg.CacheRoot, fc.CacheRoot)
	setString(&cfg.ShareRoot, fc.ShareRoot)
	setString(&cfg.Compiler, fc.Compiler)
	setString(&cfg.Listen, fc.Listen)
	setString(&cfg.Connect, fc.Connect)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)

	if len(fc.SchemaPaths) > 0 {
		cfg.SchemaPaths = append([]string(nil), fc.SchemaPaths...)
	}
	if fc.MaxParallelBuilds != 0 {
		cfg.MaxParallelBuilds = fc.MaxParallelBuilds
	}
	if fc.CompileTimeout != 0 {
		cfg.CompileTimeout = fc.CompileTimeout
	}
	if fc.MaxMessageSize != 0 {
		cfg.MaxMessageSize = fc.MaxMessageSize
	}
	cfg.Topics = append(cfg.Topics, fc.Topics...)

	return nil
}

func (b *Builder) applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvTopicPrefix); ok {
		cfg.TopicPrefix = v
	}
	if v, ok := os.LookupEnv(EnvFramePrefix); ok {
		cfg.FramePrefix = v
	}
	setString(&cfg.CacheRoot, os.Getenv(EnvCacheRoot))
	setString(&cfg.ShareRoot, os.Getenv(EnvShareRoot))
	setString(&cfg.Compiler, os.Getenv(EnvCompiler))

	if len(cfg.SchemaPaths) == 0 {
		cfg.SchemaPaths = schemaPathsFromPrefixes(os.Getenv(EnvCMakePrefixPath))
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// defaultCacheRoot returns ~/.ros/topicrelay, or "" if there is no home.
func defaultCacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ros", "topicrelay")
}

// defaultShareRoot looks for the template next to the executable, as
// installed by a package, and returns "" if it is not there.
func defaultShareRoot() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}

	candidate := filepath.Join(filepath.Dir(exe), "..", "share", "topicrelay")
	if _, err := os.Stat(filepath.Join(candidate, "rewriter", "main.go")); err != nil {
		return ""
	}
	return filepath.Clean(candidate)
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
