package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/topicrelay/internal/compression"
	"github.com/jmylchreest/topicrelay/internal/metrics"
	"github.com/jmylchreest/topicrelay/internal/rewriter"
	"github.com/jmylchreest/topicrelay/internal/transport"
)

// frameSlack allows for the envelope and incompressible payloads on top of
// the message size limit.
const frameSlack = 64 * 1024

// Sink receives messages after decompression, rewriting and renaming.
type Sink interface {
	Deliver(ctx context.Context, msg *Message) error
}

// ReceiverOptions configures a Receiver.
type ReceiverOptions struct {
	// Cache provides the rewriter for each message schema.
	Cache *rewriter.Cache

	// Sink receives every delivered message.
	Sink Sink

	// RenameTopic maps incoming topic names. Nil keeps names unchanged.
	RenameTopic func(string) string

	// MaxMessageSize bounds decompressed payloads and frames.
	MaxMessageSize int64

	Logger  hclog.Logger
	Metrics *metrics.Metrics
}

// Receiver turns frames from a link into delivered messages.
type Receiver struct {
	cache   *rewriter.Cache
	sink    Sink
	rename  func(string) string
	maxSize int64
	logger  hclog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	counters map[string]uint64
}

// NewReceiver creates a receiver.
func NewReceiver(opts ReceiverOptions) (*Receiver, error) {
	if opts.Cache == nil {
		return nil, errors.New("receiver: rewriter cache is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("receiver: sink is required")
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.RenameTopic == nil {
		opts.RenameTopic = func(name string) string { return name }
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = compression.DefaultMaxSize
	}

	return &Receiver{
		cache:    opts.Cache,
		sink:     opts.Sink,
		rename:   opts.RenameTopic,
		maxSize:  opts.MaxMessageSize,
		logger:   opts.Logger.Named("receiver"),
		metrics:  opts.Metrics,
		counters: make(map[string]uint64),
	}, nil
}

// Handle processes one frame. Frames that cannot be decoded are logged and
// dropped; everything else is delivered, unmodified if it cannot be
// rewritten. Only context and sink errors are returned.
func (r *Receiver) Handle(ctx context.Context, frame []byte) error {
	msg, err := UnmarshalMessage(frame)
	if err != nil {
		r.logger.Warn("dropping undecodable frame", "size", len(frame), "error", err)
		r.metrics.MessageDropped("", "decode")
		return nil
	}
	r.metrics.MessageReceived(msg.Topic, len(msg.Payload))

	payload, err := compression.Decompress(msg.Codec, msg.Payload, r.maxSize)
	if err != nil {
		r.logger.Warn("dropping message that could not be decompressed", "topic", msg.Topic, "codec", msg.Codec, "error", err)
		r.metrics.MessageDropped(msg.Topic, "decompress")
		return nil
	}

	r.checkCounter(msg)

	handle, err := r.cache.Open(msg.Type, msg.MD5).Wait(ctx)
	if err != nil {
		return err
	}

	out := &Message{
		Topic:   r.rename(msg.Topic),
		Type:    msg.Type,
		MD5:     msg.MD5,
		Codec:   compression.None,
		Counter: msg.Counter,
		Payload: handle.Rewrite(payload),
	}

	if err := r.sink.Deliver(ctx, out); err != nil {
		return fmt.Errorf("deliver %s: %w", out.Topic, err)
	}
	return nil
}

// checkCounter logs gaps in a topic's message counter.
func (r *Receiver) checkCounter(msg *Message) {
	r.mu.Lock()
	last, seen := r.counters[msg.Topic]
	r.counters[msg.Topic] = msg.Counter
	r.mu.Unlock()

	switch {
	case !seen:
	case msg.Counter <= last:
		r.logger.Debug("message counter went backwards, sender restarted", "topic", msg.Topic, "counter", msg.Counter)
	case msg.Counter > last+1:
		r.logger.Debug("messages lost", "topic", msg.Topic, "lost", msg.Counter-last-1)
	}
}

// ServeConn handles frames from one connection until it closes or ctx is
// done. Frames are handled in order.
func (r *Receiver) ServeConn(ctx context.Context, conn *transport.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := r.Handle(ctx, frame); err != nil {
			return err
		}
	}
}

// Serve accepts connections on ln until ctx is done. Each connection is
// served in its own goroutine; a failing connection does not affect others.
func (r *Receiver) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		return nil
	})

	g.Go(func() error {
		for {
			c, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}

			conn := transport.NewConn(c, int(r.maxSize)+frameSlack)
			logger := r.logger.With("peer", conn.RemoteAddr().String())
			logger.Info("sender connected")

			g.Go(func() error {
				defer conn.Close()
				if err := r.ServeConn(gctx, conn); err != nil {
					logger.Error("connection failed", "error", err)
					return nil
				}
				logger.Info("sender disconnected")
				return nil
			})
		}
	})

	return g.Wait()
}
