// Package logging builds the hclog loggers shared by every topicrelay component.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/term"
)

// Options configures the root logger.
type Options struct {
	// Name is the root logger name. Defaults to "topicrelay".
	Name string

	// Level is the minimum level written. Defaults to Info.
	Level hclog.Level

	// Output defaults to os.Stderr.
	Output io.Writer

	// JSON forces JSON output. When false and Output is os.Stderr, JSON is
	// still chosen if stderr is not a terminal.
	JSON bool
}

// New creates the root logger. Components derive sub-loggers with Named().
func New(opts Options) hclog.Logger {
	if opts.Name == "" {
		opts.Name = "topicrelay"
	}
	if opts.Level == hclog.NoLevel {
		opts.Level = hclog.Info
	}

	jsonFormat := opts.JSON
	color := hclog.ColorOff
	if opts.Output == nil {
		opts.Output = os.Stderr
		if term.IsTerminal(int(os.Stderr.Fd())) {
			color = hclog.AutoColor
		} else {
			jsonFormat = true
		}
	}
	if jsonFormat {
		color = hclog.ColorOff
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      opts.Level,
		Output:     opts.Output,
		JSONFormat: jsonFormat,
		Color:      color,
	})
}

// LevelFromFlags maps the CLI verbosity flags onto an hclog level.
func LevelFromFlags(verbose, quiet bool) hclog.Level {
	switch {
	case verbose:
		return hclog.Debug
	case quiet:
		return hclog.Error
	default:
		return hclog.Info
	}
}

// Discard returns a logger that drops everything; used by tests and by
// go-plugin when plugin output is not wanted.
func Discard() hclog.Logger {
	return hclog.NewNullLogger()
}
