package rewriter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
)

func TestDegradedHandle(t *testing.T) {
	reason := errors.New("no definition")
	h := Degraded(reason)

	if h.Usable() {
		t.Error("Usable() = true")
	}
	if !errors.Is(h.Reason(), reason) {
		t.Errorf("Reason() = %v", h.Reason())
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	in := []byte{0xde, 0xad}
	if out := h.Rewrite(in); &out[0] != &in[0] {
		t.Error("Rewrite() copied the input")
	}
}

func TestUsableHandle(t *testing.T) {
	artifact := &fakeArtifact{}
	observer := &recordingObserver{}

	newHandle := func(morph *prefixMorph) *usableHandle {
		return &usableHandle{
			schema:   tfSchema,
			prefix:   "robot1/",
			morph:    morph,
			artifact: artifact,
			logger:   hclog.NewNullLogger(),
			observer: observer,
		}
	}

	t.Run("rewrite", func(t *testing.T) {
		h := newHandle(&prefixMorph{})
		if !h.Usable() || h.Reason() != nil {
			t.Fatal("usable handle reports degraded")
		}
		if out := h.Rewrite([]byte("odom")); string(out) != "robot1/odom" {
			t.Errorf("Rewrite() = %q", out)
		}
	})

	t.Run("failure forwards input", func(t *testing.T) {
		h := newHandle(&prefixMorph{err: errors.New("connection is shut down")})
		for range 3 {
			if out := h.Rewrite([]byte("odom")); string(out) != "odom" {
				t.Errorf("Rewrite() = %q, want input", out)
			}
		}
		if got := observer.failures[tfSchema]; got != 3 {
			t.Errorf("failures = %d, want 3", got)
		}
	})

	t.Run("close once", func(t *testing.T) {
		h := newHandle(&prefixMorph{})
		_ = h.Close()
		_ = h.Close()
		if got := artifact.Closed(); got != 1 {
			t.Errorf("artifact closed %d times, want 1", got)
		}
	})
}

func TestFuture(t *testing.T) {
	f := newFuture()
	if f.Ready() {
		t.Fatal("new future is ready")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}

	h := Degraded(nil)
	go f.resolve(h)

	<-f.Done()
	if !f.Ready() {
		t.Error("Ready() = false after Done")
	}

	// A resolved future answers even with a cancelled context.
	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	got, err := f.Wait(cancelled)
	if err != nil || got != h {
		t.Errorf("Wait() = %v, %v", got, err)
	}
}
