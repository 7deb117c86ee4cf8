package rosmsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrTruncated is returned when serialised data ends before the schema does.
var ErrTruncated = errors.New("message truncated")

// frameFields are the string fields carrying coordinate frame identifiers.
var frameFields = map[string]bool{
	"frame_id":       true,
	"child_frame_id": true,
}

// IsFrameField reports whether a field carries a coordinate frame identifier.
func IsFrameField(f Field) bool {
	return f.Base == "string" && frameFields[f.Name]
}

// node is a resolved message layout: children[i] is set for every field of
// spec whose base type is another message.
type node struct {
	spec     *Spec
	children []*node

	// minSize is the fewest bytes one serialised instance occupies. A node
	// with minSize 0 always serialises to nothing.
	minSize int
}

// maxFixedSize bounds the minimum size of a message so that fixed arrays
// in a definition cannot overflow the size arithmetic.
const maxFixedSize = math.MaxInt32

const (
	measuring = iota + 1
	measured
)

// FrameRewriter re-serialises ROS1 messages of one type, prefixing every frame
// id field at any nesting depth. It is safe for concurrent use.
type FrameRewriter struct {
	root *node
}

// NewFrameRewriter resolves the full layout of a message type up front so
// that Rewrite performs no registry lookups.
func (r *Registry) NewFrameRewriter(fullName string) (*FrameRewriter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]*node)
	root, err := r.resolveLocked(fullName, seen, 0)
	if err != nil {
		return nil, err
	}

	state := make(map[*node]int, len(seen))
	for _, n := range seen {
		if err := n.measure(state); err != nil {
			return nil, err
		}
	}
	return &FrameRewriter{root: root}, nil
}

// measure computes minSize for n and everything it embeds. Variable-length
// arrays count only their length prefix, so a type may refer to itself
// through one, but not directly or through a fixed array.
func (n *node) measure(state map[*node]int) error {
	switch state[n] {
	case measured:
		return nil
	case measuring:
		return fmt.Errorf("message type %s contains itself without a variable-length array", n.spec.FullName())
	}
	state[n] = measuring

	size := 0
	for i, f := range n.spec.Fields {
		if f.IsArray && f.ArrayLen < 0 {
			size += 4
			continue
		}

		elem := minBuiltinSize(f.Base)
		if child := n.children[i]; child != nil {
			if err := child.measure(state); err != nil {
				return err
			}
			elem = child.minSize
		}

		count := 1
		if f.IsArray {
			count = f.ArrayLen
		}
		if elem > 0 && count > (maxFixedSize-size)/elem {
			return fmt.Errorf("message type %s: field %s is too large", n.spec.FullName(), f.Name)
		}
		size += count * elem
	}

	n.minSize = size
	state[n] = measured
	return nil
}

// minBuiltinSize is the wire size of a builtin; strings take at least their
// length prefix.
func minBuiltinSize(base string) int {
	if base == "string" {
		return 4
	}
	return builtinSizes[base]
}

func (r *Registry) resolveLocked(fullName string, seen map[string]*node, depth int) (*node, error) {
	if n, ok := seen[fullName]; ok {
		return n, nil
	}
	if depth > maxDepth {
		return nil, fmt.Errorf("message type %s nests deeper than %d levels", fullName, maxDepth)
	}

	spec, err := r.specLocked(fullName)
	if err != nil {
		return nil, err
	}

	n := &node{spec: spec, children: make([]*node, len(spec.Fields))}
	seen[fullName] = n

	for i, f := range spec.Fields {
		if IsBuiltin(f.Base) {
			continue
		}
		child, err := r.resolveLocked(spec.ResolveType(f.Base), seen, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", spec.FullName(), f.Name, err)
		}
		n.children[i] = child
	}

	return n, nil
}

// Type returns the message type this rewriter handles.
func (w *FrameRewriter) Type() string {
	return w.root.spec.FullName()
}

// Rewrite parses data as a serialised message and returns a copy with prefix
// prepended to every frame id. Trailing bytes after the message are an error.
func (w *FrameRewriter) Rewrite(data []byte, prefix string) ([]byte, error) {
	c := &cursor{in: data, out: make([]byte, 0, len(data)+4*len(prefix))}

	if err := c.message(w.root, prefix); err != nil {
		return nil, fmt.Errorf("%s: %w", w.Type(), err)
	}
	if c.pos != len(c.in) {
		return nil, fmt.Errorf("%s: %d trailing bytes", w.Type(), len(c.in)-c.pos)
	}

	return c.out, nil
}

type cursor struct {
	in  []byte
	pos int
	out []byte
}

func (c *cursor) message(n *node, prefix string) error {
	for i, f := range n.spec.Fields {
		child := n.children[i]
		elem := minBuiltinSize(f.Base)
		if child != nil {
			elem = child.minSize
		}

		count := 1
		if f.IsArray {
			count = f.ArrayLen
			if count < 0 {
				length, err := c.uint32()
				if err != nil {
					return fmt.Errorf("%s length: %w", f.Name, err)
				}
				count = int(length)
				if elem > 0 && count > (len(c.in)-c.pos)/elem {
					return fmt.Errorf("%s: %d elements: %w", f.Name, count, ErrTruncated)
				}
			}
		}

		if child != nil {
			if child.minSize == 0 {
				continue
			}
			for range count {
				if err := c.message(child, prefix); err != nil {
					return fmt.Errorf("%s: %w", f.Name, err)
				}
			}
			continue
		}

		if f.Base == "string" {
			rewrite := IsFrameField(f)
			for range count {
				if err := c.string(rewrite, prefix); err != nil {
					return fmt.Errorf("%s: %w", f.Name, err)
				}
			}
			continue
		}

		if err := c.copy(count * builtinSizes[f.Base]); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}

	return nil
}

func (c *cursor) uint32() (uint32, error) {
	if len(c.in)-c.pos < 4 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(c.in[c.pos:])
	c.out = append(c.out, c.in[c.pos:c.pos+4]...)
	c.pos += 4
	return v, nil
}

func (c *cursor) copy(n int) error {
	if n < 0 || len(c.in)-c.pos < n {
		return ErrTruncated
	}
	c.out = append(c.out, c.in[c.pos:c.pos+n]...)
	c.pos += n
	return nil
}

func (c *cursor) string(rewrite bool, prefix string) error {
	if len(c.in)-c.pos < 4 {
		return ErrTruncated
	}
	length := int(binary.LittleEndian.Uint32(c.in[c.pos:]))
	c.pos += 4
	if length < 0 || len(c.in)-c.pos < length {
		return ErrTruncated
	}
	value := c.in[c.pos : c.pos+length]
	c.pos += length

	if !rewrite {
		c.out = binary.LittleEndian.AppendUint32(c.out, uint32(length)) // #nosec G115 -- length came from a uint32
		c.out = append(c.out, value...)
		return nil
	}

	c.out = binary.LittleEndian.AppendUint32(c.out, uint32(len(prefix)+length)) // #nosec G115 -- bounded by input size
	c.out = append(c.out, prefix...)
	c.out = append(c.out, value...)
	return nil
}
