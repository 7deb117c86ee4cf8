// Package relay moves topic messages across a link: the sender rate limits
// and compresses, the receiver decompresses, rewrites and renames.
package relay

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/jmylchreest/topicrelay/internal/compression"
)

// Message is one relayed topic message. It is encoded as a CBOR map with
// integer keys to keep the envelope small on constrained links.
type Message struct {
	Topic   string            `cbor:"1,keyasint"`
	Type    string            `cbor:"2,keyasint"`
	MD5     string            `cbor:"3,keyasint"`
	Codec   compression.Codec `cbor:"4,keyasint,omitempty"`
	Counter uint64            `cbor:"5,keyasint"`
	Payload []byte            `cbor:"6,keyasint"`
}

// encMode uses Core Deterministic Encoding so the same message always
// produces the same bytes.
var encMode cbor.EncMode

// decMode rejects duplicate keys and ignores unknown ones.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("relay: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("relay: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes the message envelope.
func (m *Message) Marshal() ([]byte, error) {
	data, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// UnmarshalMessage decodes a message envelope.
func UnmarshalMessage(data []byte) (*Message, error) {
	var m Message
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if m.Topic == "" {
		return nil, fmt.Errorf("decode message: missing topic")
	}
	return &m, nil
}
