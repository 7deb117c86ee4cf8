package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/topicrelay/internal/compression"
	"github.com/jmylchreest/topicrelay/internal/metrics"
)

// FrameWriter writes one frame to a link.
type FrameWriter interface {
	WriteFrame(payload []byte) error
}

// Sender publishes messages of configured topics to a link.
type Sender struct {
	out     FrameWriter
	logger  hclog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	topics map[string]*topicState
}

type topicState struct {
	topic   Topic
	limiter *rate.Limiter

	// mu is held from stamping counter until the frame is written, so
	// frames of one topic leave in counter order.
	mu      sync.Mutex
	counter uint64
}

// NewSender creates a sender for the given topics. metrics may be nil.
func NewSender(out FrameWriter, topics []Topic, logger hclog.Logger, m *metrics.Metrics) (*Sender, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &Sender{
		out:     out,
		logger:  logger.Named("sender"),
		metrics: m,
		topics:  make(map[string]*topicState, len(topics)),
	}

	for _, t := range topics {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, ok := s.topics[t.Name]; ok {
			return nil, fmt.Errorf("topic %s configured twice", t.Name)
		}
		if t.Codec == "" {
			t.Codec = compression.None
		}

		limit := rate.Inf
		if t.Rate > 0 {
			limit = rate.Limit(t.Rate)
		}
		s.topics[t.Name] = &topicState{
			topic:   t,
			limiter: rate.NewLimiter(limit, 1),
		}
	}

	return s, nil
}

// Publish relays one serialised message. It returns false without error when
// the message was dropped by the topic's rate limit.
func (s *Sender) Publish(ctx context.Context, topic string, payload []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	state, ok := s.topics[topic]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("topic %s is not configured", topic)
	}
	if !state.limiter.Allow() {
		s.mu.Unlock()
		s.metrics.MessageDropped(topic, "rate_limited")
		return false, nil
	}
	t := state.topic
	s.mu.Unlock()

	compressed, err := compression.Compress(t.Codec, payload)
	if err != nil {
		return false, fmt.Errorf("topic %s: %w", topic, err)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	state.counter++
	counter := state.counter

	msg := &Message{
		Topic:   t.Name,
		Type:    t.Type,
		MD5:     t.MD5,
		Codec:   t.Codec,
		Counter: counter,
		Payload: compressed,
	}
	frame, err := msg.Marshal()
	if err != nil {
		return false, err
	}

	if err := s.out.WriteFrame(frame); err != nil {
		return false, fmt.Errorf("topic %s: %w", topic, err)
	}

	s.metrics.MessageSent(topic, len(compressed))
	s.logger.Trace("sent message", "topic", topic, "counter", counter, "size", len(payload), "compressed", len(compressed))
	return true, nil
}
