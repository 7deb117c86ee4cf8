package rewriter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"github.com/jmylchreest/topicrelay/internal/plugin/executor"
)

// SchemaHasher computes the local content hash of a message type.
type SchemaHasher interface {
	MD5(schema string) (string, error)
}

// Observer receives build and rewrite events, typically for metrics.
type Observer interface {
	BuildFinished(outcome string, elapsed time.Duration)
	RewriteFailed(schema string)
}

// Build outcomes reported to the Observer.
const (
	OutcomeCached         = "cached"
	OutcomeCompiled       = "compiled"
	OutcomeMalformed      = "malformed"
	OutcomeSchemaMismatch = "schema_mismatch"
	OutcomeBuildFailed    = "build_failed"
	OutcomeLoadFailed     = "load_failed"
)

type nopObserver struct{}

func (nopObserver) BuildFinished(string, time.Duration) {}
func (nopObserver) RewriteFailed(string)                {}

// disabled is returned by every Open on a cache without a frame prefix.
var disabled = resolvedFuture(Degraded(nil))

// Options configures a Cache.
type Options struct {
	// FramePrefix is prepended to every frame id. Empty disables rewriting.
	FramePrefix string

	// CacheRoot is the directory artifacts are installed under.
	CacheRoot string

	// TemplatePath is the template main.go compiled for every fingerprint.
	TemplatePath string

	// HeaderPath is the module file the template is compiled against.
	HeaderPath string

	// SearchPaths are the directories message definitions are looked up in.
	SearchPaths []string

	// Compiler is the toolchain binary. Defaults to DefaultCompiler.
	Compiler string

	// MaxParallelBuilds bounds concurrent pipelines. Zero means unbounded.
	MaxParallelBuilds int

	// CompileTimeout bounds a single compiler run. Zero means no limit.
	CompileTimeout time.Duration

	Hasher   SchemaHasher
	Runner   executor.ProcessRunner
	Loader   executor.Loader
	Logger   hclog.Logger
	Observer Observer
}

// Stats is a snapshot of the cache table.
type Stats struct {
	Entries  int
	Usable   int
	Degraded int
	Building int
}

// Cache maps fingerprints to rewriter builds. Each fingerprint is built at
// most once for the lifetime of the cache, and entries are never removed.
type Cache struct {
	opts     Options
	logger   hclog.Logger
	hasher   SchemaHasher
	loader   executor.Loader
	observer Observer
	compiler *Compiler
	sem      *semaphore.Weighted

	mu      sync.Mutex
	entries map[Fingerprint]*Future
	closed  bool

	builds sync.WaitGroup
}

// New creates a cache. With an empty FramePrefix nothing else is required
// and the cache never touches the filesystem.
func New(opts Options) (*Cache, error) {
	if opts.FramePrefix != "" {
		var missing []string
		if opts.CacheRoot == "" {
			missing = append(missing, "cache root")
		}
		if opts.TemplatePath == "" {
			missing = append(missing, "template path")
		}
		if opts.HeaderPath == "" {
			missing = append(missing, "header path")
		}
		if opts.Hasher == nil {
			missing = append(missing, "schema hasher")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("rewriter cache: missing %v", missing)
		}
	}
	if opts.MaxParallelBuilds < 0 {
		return nil, errors.New("rewriter cache: max parallel builds must not be negative")
	}

	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Compiler == "" {
		opts.Compiler = DefaultCompiler
	}
	if opts.Runner == nil {
		opts.Runner = executor.NewRealProcessRunner()
	}
	if opts.Loader == nil {
		opts.Loader = executor.NewLoader(opts.Logger)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	c := &Cache{
		opts:     opts,
		logger:   opts.Logger.Named("rewriter"),
		hasher:   opts.Hasher,
		loader:   opts.Loader,
		observer: opts.Observer,
		compiler: &Compiler{
			Path:        opts.Compiler,
			Template:    opts.TemplatePath,
			Header:      opts.HeaderPath,
			SearchPaths: opts.SearchPaths,
			Runner:      opts.Runner,
		},
		entries: make(map[Fingerprint]*Future),
	}
	if opts.MaxParallelBuilds > 0 {
		c.sem = semaphore.NewWeighted(int64(opts.MaxParallelBuilds))
	}

	return c, nil
}

// Enabled reports whether the cache rewrites anything.
func (c *Cache) Enabled() bool {
	return c.opts.FramePrefix != ""
}

// Open returns the build for a schema at a content hash, starting it if this
// is the first request for the fingerprint. It never blocks on a build.
func (c *Cache) Open(schema, hash string) *Future {
	if !c.Enabled() {
		return disabled
	}

	fp := Fingerprint{Schema: schema, Hash: hash}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return resolvedFuture(Degraded(ErrCacheClosed))
	}
	if f, ok := c.entries[fp]; ok {
		return f
	}

	f := newFuture()
	c.entries[fp] = f

	c.builds.Add(1)
	go func() {
		defer c.builds.Done()
		f.resolve(c.build(fp))
	}()

	return f
}

// Stats returns a snapshot of the cache table.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Entries: len(c.entries)}
	for _, f := range c.entries {
		switch {
		case !f.Ready():
			s.Building++
		case f.handle.Usable():
			s.Usable++
		default:
			s.Degraded++
		}
	}
	return s
}

// Close waits for in-flight builds and then unloads every rewriter. Handles
// obtained from the cache must not be used afterwards.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.builds.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for fp, f := range c.entries {
		if err := f.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", fp, err))
		}
	}
	return errors.Join(errs...)
}
