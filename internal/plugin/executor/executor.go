// Package executor starts compiled rewriter artifacts as go-plugin child
// processes and runs the external build tools that produce them.
package executor

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/jmylchreest/topicrelay/internal/plugin/protocol"
	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

// DefaultStartTimeout bounds how long a plugin process may take to complete
// the handshake.
const DefaultStartTimeout = 30 * time.Second

// Loader brings an installed artifact into the running process.
type Loader interface {
	Load(path string) (Artifact, error)
}

// Artifact is a loaded rewriter artifact.
type Artifact interface {
	// Resolve returns the entry point registered under name.
	Resolve(name string) (plugin.Morph, error)

	// Close unloads the artifact. It is safe to call more than once.
	Close() error
}

// GoPluginLoader loads artifacts as hashicorp/go-plugin net/rpc plugins.
type GoPluginLoader struct {
	// Logger receives the plugin process output. Defaults to a discarding logger.
	Logger hclog.Logger

	// StartTimeout overrides DefaultStartTimeout when positive.
	StartTimeout time.Duration
}

// NewLoader creates a loader logging through a "plugin" sub-logger of logger.
func NewLoader(logger hclog.Logger) *GoPluginLoader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &GoPluginLoader{Logger: logger.Named("plugin")}
}

// Load starts the artifact and completes the go-plugin handshake.
func (l *GoPluginLoader) Load(path string) (Artifact, error) {
	logger := l.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	timeout := l.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: protocol.Handshake,
		Plugins: map[string]goplugin.Plugin{
			plugin.FactoryName: &plugin.MorphRPC{},
		},
		Cmd:              exec.Command(path), // #nosec G204 -- artifact paths come from the cache root
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
		Logger:           logger,
		StartTimeout:     timeout,
	})

	// Connect via RPC.
	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to start plugin %s: %w", path, err)
	}

	return &PluginExecutor{
		path:      path,
		client:    client,
		rpcClient: rpcClient,
	}, nil
}

// PluginExecutor is a running plugin process.
type PluginExecutor struct {
	path string

	mu        sync.Mutex
	client    *goplugin.Client
	rpcClient goplugin.ClientProtocol
}

// Path returns the artifact path the process was started from.
func (e *PluginExecutor) Path() string {
	return e.path
}

// Resolve dispenses the plugin registered under name and checks that the
// artifact speaks a compatible protocol version.
func (e *PluginExecutor) Resolve(name string) (plugin.Morph, error) {
	e.mu.Lock()
	rpcClient := e.rpcClient
	e.mu.Unlock()

	if rpcClient == nil {
		return nil, errors.New("plugin is closed")
	}

	raw, err := rpcClient.Dispense(name)
	if err != nil {
		return nil, fmt.Errorf("failed to dispense %q from %s: %w", name, e.path, err)
	}

	morph, ok := raw.(plugin.Morph)
	if !ok {
		return nil, fmt.Errorf("symbol %q in %s has unexpected type %T", name, e.path, raw)
	}

	info, err := morph.GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata from %s: %w", e.path, err)
	}
	if err := protocol.CheckArtifact(info); err != nil {
		return nil, fmt.Errorf("%s: %w", e.path, err)
	}

	return morph, nil
}

// Close kills the plugin process.
func (e *PluginExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		e.client.Kill()
		e.client = nil
	}
	e.rpcClient = nil
	return nil
}
