package relay

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// LogSink logs every delivered message.
type LogSink struct {
	Logger hclog.Logger
}

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, msg *Message) error {
	s.Logger.Info("message", "topic", msg.Topic, "type", msg.Type, "counter", msg.Counter, "size", len(msg.Payload))
	return nil
}

// WriterSink writes every delivered message as a CBOR envelope to W, one
// data item after another.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Deliver implements Sink.
func (s *WriterSink) Deliver(_ context.Context, msg *Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadMessages decodes a stream written by WriterSink, calling fn for each
// message until the stream ends.
func ReadMessages(r io.Reader, fn func(*Message) error) error {
	dec := decMode.NewDecoder(r)
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode message: %w", err)
		}
		if err := fn(&msg); err != nil {
			return err
		}
	}
}
