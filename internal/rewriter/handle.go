package rewriter

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/topicrelay/internal/plugin/executor"
	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

// Handle is the result of a build: either a usable rewriter or a degraded
// identity transform. Rewrite never fails.
type Handle interface {
	// Rewrite returns the rewritten message, or data itself when the handle
	// is degraded or the rewriter fails.
	Rewrite(data []byte) []byte

	// Usable reports whether Rewrite runs a loaded rewriter.
	Usable() bool

	// Reason explains why the handle is degraded. It is nil for usable
	// handles and when rewriting is disabled.
	Reason() error

	// Close unloads the rewriter. Degraded handles ignore it.
	Close() error

	sealed()
}

// Degraded returns a handle that forwards every message unmodified.
func Degraded(reason error) Handle {
	return degradedHandle{reason: reason}
}

type degradedHandle struct {
	reason error
}

func (h degradedHandle) Rewrite(data []byte) []byte { return data }
func (h degradedHandle) Usable() bool               { return false }
func (h degradedHandle) Reason() error              { return h.reason }
func (h degradedHandle) Close() error               { return nil }
func (h degradedHandle) sealed()                    {}

// usableHandle owns a loaded artifact and the entry point resolved from it.
type usableHandle struct {
	schema   string
	prefix   string
	morph    plugin.Morph
	artifact executor.Artifact
	logger   hclog.Logger
	observer Observer

	failOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

func (h *usableHandle) Rewrite(data []byte) []byte {
	out, err := h.morph.Morph(data, h.prefix)
	if err != nil {
		h.observer.RewriteFailed(h.schema)
		h.failOnce.Do(func() {
			h.logger.Error("topic rewriter failed, forwarding messages unmodified", "error", err)
		})
		return data
	}
	return out
}

func (h *usableHandle) Usable() bool  { return true }
func (h *usableHandle) Reason() error { return nil }
func (h *usableHandle) sealed()       {}

func (h *usableHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.artifact.Close()
	})
	return h.closeErr
}
