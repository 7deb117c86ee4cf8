package rewriter

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

// build runs the pipeline for one fingerprint and reports its outcome.
func (c *Cache) build(fp Fingerprint) Handle {
	if c.sem != nil {
		// Builds are never cancelled, so Acquire cannot fail.
		_ = c.sem.Acquire(context.Background(), 1)
		defer c.sem.Release(1)
	}

	start := time.Now()
	logger := c.logger.With("schema", fp.Schema, "md5", fp.Hash)

	h, outcome := c.pipeline(logger, fp)
	c.observer.BuildFinished(outcome, time.Since(start))
	return h
}

func (c *Cache) pipeline(logger hclog.Logger, fp Fingerprint) (Handle, string) {
	pkg, typ, err := fp.validate()
	if err != nil {
		logger.Error("could not build topic rewriter", "error", err)
		return Degraded(err), OutcomeMalformed
	}

	local, err := c.hasher.MD5(fp.Schema)
	if err != nil {
		logger.Error("could not resolve message definition, please make sure your messages are up to date on both systems", "error", err)
		return Degraded(fmt.Errorf("%w: %s: %w", ErrSchemaMismatch, fp.Schema, err)), OutcomeSchemaMismatch
	}
	if local != fp.Hash {
		logger.Error("message definition hash mismatch, please make sure your messages are up to date on both systems", "local_md5", local)
		return Degraded(fmt.Errorf("%w: %s: remote %s, local %s", ErrSchemaMismatch, fp.Schema, fp.Hash, local)), OutcomeSchemaMismatch
	}

	dir, path, err := locate(c.opts.CacheRoot, pkg, typ, fp.Hash)
	if err != nil {
		logger.Error("invalid artifact location", "error", err)
		return Degraded(fmt.Errorf("%w: %w", ErrMalformedSchema, err)), OutcomeMalformed
	}
	logger = logger.With("path", path)

	ref, err := buildReference(c.opts.TemplatePath, c.opts.HeaderPath)
	if err != nil {
		logger.Error("could not read rewriter template", "error", err)
		return Degraded(fmt.Errorf("%w: %w", ErrBuildFailure, err)), OutcomeBuildFailed
	}

	if isFresh(path, ref) {
		h, err := c.load(logger, fp, path)
		if err == nil {
			logger.Debug("loaded cached topic rewriter")
			return h, OutcomeCached
		}
		logger.Warn("could not load cached topic rewriter, rebuilding", "error", err)
	}

	staged, err := stage(dir)
	if err != nil {
		logger.Error("could not prepare artifact directory", "error", err)
		return Degraded(fmt.Errorf("%w: %w", ErrBuildFailure, err)), OutcomeBuildFailed
	}

	logger.Info("compiling topic rewriter")

	ctx := context.Background()
	if c.opts.CompileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CompileTimeout)
		defer cancel()
	}

	result, err := c.compiler.Compile(ctx, staged, fp, pkg, typ)
	if err != nil {
		logger.Error("compilation of topic rewriter failed",
			"command", result.CommandLine(),
			"stdout", string(result.Stdout),
			"stderr", string(result.Stderr),
			"error", err,
		)
		return Degraded(fmt.Errorf("%w: %s: %w", ErrBuildFailure, fp.Schema, err)), OutcomeBuildFailed
	}

	if err := install(staged, path); err != nil {
		logger.Error("could not install topic rewriter", "error", err)
		return Degraded(fmt.Errorf("%w: %w", ErrBuildFailure, err)), OutcomeBuildFailed
	}

	h, err := c.load(logger, fp, path)
	if err != nil {
		logger.Error("could not load topic rewriter, maybe you should try to delete the above file", "error", err)
		return Degraded(fmt.Errorf("%w: %s: %w", ErrLoadFailure, fp.Schema, err)), OutcomeLoadFailed
	}

	logger.Info("compiled topic rewriter")
	return h, OutcomeCompiled
}

// load starts an installed artifact and resolves its entry point.
func (c *Cache) load(logger hclog.Logger, fp Fingerprint, path string) (Handle, error) {
	artifact, err := c.loader.Load(path)
	if err != nil {
		return nil, err
	}

	morph, err := artifact.Resolve(plugin.FactoryName)
	if err != nil {
		_ = artifact.Close()
		return nil, err
	}

	return &usableHandle{
		schema:   fp.Schema,
		prefix:   c.opts.FramePrefix,
		morph:    morph,
		artifact: artifact,
		logger:   logger,
		observer: c.observer,
	}, nil
}
