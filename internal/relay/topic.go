package relay

import (
	"fmt"

	"github.com/jmylchreest/topicrelay/internal/compression"
)

// Topic describes one relayed topic on the sending side.
type Topic struct {
	Name string

	// Type and MD5 identify the message schema at the receiver.
	Type string
	MD5  string

	// Rate is the maximum messages per second. Zero means unlimited.
	Rate float64

	Codec compression.Codec
}

// Validate checks a topic definition.
func (t Topic) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("topic has no name")
	}
	if t.Type == "" {
		return fmt.Errorf("topic %s: missing type", t.Name)
	}
	if t.Rate < 0 {
		return fmt.Errorf("topic %s: rate must not be negative", t.Name)
	}
	if _, err := compression.ParseCodec(string(t.Codec)); err != nil {
		return fmt.Errorf("topic %s: %w", t.Name, err)
	}
	return nil
}
