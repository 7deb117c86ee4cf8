package rewriter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/topicrelay/internal/plugin/executor"
	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

const (
	tfSchema = "tf2_msgs/TFMessage"
	tfMD5    = "94810edda583a504dfda3829e70d7eec"
)

// fakeHasher serves content hashes from a map.
type fakeHasher map[string]string

func (h fakeHasher) MD5(schema string) (string, error) {
	sum, ok := h[schema]
	if !ok {
		return "", fmt.Errorf("no definition for %s", schema)
	}
	return sum, nil
}

// prefixMorph prepends the prefix to the whole payload.
type prefixMorph struct {
	err error
}

func (m *prefixMorph) Morph(data []byte, prefix string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]byte(prefix), data...), nil
}

func (m *prefixMorph) GetMetadata() (plugin.PluginInfo, error) {
	return plugin.PluginInfo{ProtocolVersion: plugin.ProtocolVersion}, nil
}

type fakeArtifact struct {
	morph  plugin.Morph
	mu     sync.Mutex
	closed int
}

func (a *fakeArtifact) Resolve(name string) (plugin.Morph, error) {
	if name != plugin.FactoryName {
		return nil, fmt.Errorf("unknown symbol %q", name)
	}
	return a.morph, nil
}

func (a *fakeArtifact) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed++
	return nil
}

func (a *fakeArtifact) Closed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// fakeLoader records loads and hands out fakeArtifacts. failFirst makes the
// first n loads fail.
type fakeLoader struct {
	failFirst int
	morph     plugin.Morph

	mu        sync.Mutex
	paths     []string
	artifacts []*fakeArtifact
}

func (l *fakeLoader) Load(path string) (executor.Artifact, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.paths = append(l.paths, path)
	if len(l.paths) <= l.failFirst {
		return nil, errors.New("plugin exited before we could connect")
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	morph := l.morph
	if morph == nil {
		morph = &prefixMorph{}
	}
	a := &fakeArtifact{morph: morph}
	l.artifacts = append(l.artifacts, a)
	return a, nil
}

func (l *fakeLoader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.paths)
}

func (l *fakeLoader) Artifacts() []*fakeArtifact {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeArtifact(nil), l.artifacts...)
}

// outputArg returns the value following -o in compiler arguments.
func outputArg(args []string) string {
	for i, arg := range args {
		if arg == "-o" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// writeArtifact behaves like a successful compiler run.
func writeArtifact(_ context.Context, _, _ string, args []string, _ io.Reader) ([]byte, []byte, error) {
	out := outputArg(args)
	if out == "" {
		return nil, []byte("missing -o"), errors.New("exit status 2")
	}
	return nil, nil, os.WriteFile(out, []byte("#!/bin/sh\n"), 0o755)
}

// testEnv is a share directory with a template and header, a cache root and
// fake collaborators.
type testEnv struct {
	root     string
	template string
	header   string
	hasher   fakeHasher
	runner   *executor.MockProcessRunner
	loader   *fakeLoader
	observer *recordingObserver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	base := t.TempDir()
	share := filepath.Join(base, "share", "rewriter")
	if err := os.MkdirAll(share, 0o755); err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		root:     filepath.Join(base, "cache"),
		template: filepath.Join(share, "main.go"),
		header:   filepath.Join(share, "go.mod"),
		hasher:   fakeHasher{tfSchema: tfMD5},
		runner:   &executor.MockProcessRunner{RunFunc: writeArtifact},
		loader:   &fakeLoader{},
		observer: &recordingObserver{},
	}

	past := time.Now().Add(-time.Hour)
	for _, path := range []string{env.template, env.header} {
		if err := os.WriteFile(path, []byte("package main\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		setMtime(t, path, past)
	}

	return env
}

func (e *testEnv) options(prefix string) Options {
	return Options{
		FramePrefix:  prefix,
		CacheRoot:    e.root,
		TemplatePath: e.template,
		HeaderPath:   e.header,
		SearchPaths:  []string{"/opt/ros/noetic/share"},
		Hasher:       e.hasher,
		Runner:       e.runner,
		Loader:       e.loader,
		Observer:     e.observer,
	}
}

func (e *testEnv) cache(t *testing.T, opts Options) *Cache {
	t.Helper()

	c, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (e *testEnv) artifactPath() string {
	return ArtifactPath(e.root, "tf2_msgs", "TFMessage", tfMD5)
}

// installArtifact places an artifact as if a previous process had built it.
func (e *testEnv) installArtifact(t *testing.T, mtime time.Time) string {
	t.Helper()

	path := e.artifactPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	setMtime(t, path, mtime)
	return path
}

func setMtime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func wait(t *testing.T, f *Future) Handle {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return h
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	failures map[string]int
}

func (o *recordingObserver) BuildFinished(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) RewriteFailed(schema string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failures == nil {
		o.failures = make(map[string]int)
	}
	o.failures[schema]++
}

func (o *recordingObserver) Outcomes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.outcomes...)
}
