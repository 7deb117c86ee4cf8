package rewriter

import "context"

// Future is the eventual Handle of a build. It resolves exactly once.
type Future struct {
	done   chan struct{}
	handle Handle
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(h Handle) *Future {
	f := newFuture()
	f.resolve(h)
	return f
}

func (f *Future) resolve(h Handle) {
	f.handle = h
	close(f.done)
}

// Wait blocks until the build resolves or ctx is done. The only error
// returned is ctx's.
func (f *Future) Wait(ctx context.Context) (Handle, error) {
	select {
	case <-f.done:
		return f.handle, nil
	default:
	}

	select {
	case <-f.done:
		return f.handle, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the build has resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the build has resolved.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
