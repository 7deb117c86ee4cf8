// Package compression implements the payload codecs used on relay links.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/jmylchreest/topicrelay/internal/security"
)

// DefaultMaxSize bounds decompressed payloads when no limit is configured.
const DefaultMaxSize = 100 * 1024 * 1024

// Codec names a payload compression algorithm. The name travels in every
// relayed message, so existing names must not change.
type Codec string

const (
	// None sends payloads as they are.
	None Codec = "none"

	// Zstd favours ratio and is the default for bulky topics.
	Zstd Codec = "zstd"

	// LZ4 favours speed on fast links.
	LZ4 Codec = "lz4"

	// XZ gives the best ratio for slow links at a high CPU cost.
	XZ Codec = "xz"
)

// Codecs lists every supported codec.
var Codecs = []Codec{None, Zstd, LZ4, XZ}

// ParseCodec parses a codec name. The empty string means None.
func ParseCodec(name string) (Codec, error) {
	switch c := Codec(name); c {
	case "":
		return None, nil
	case None, Zstd, LZ4, XZ:
		return c, nil
	default:
		return "", fmt.Errorf("unknown compression codec: %q", name)
	}
}

func (c Codec) String() string {
	return string(c)
}

// zstdEncoder is safe for concurrent use and reused across calls.
var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compression: zstd encoder initialization failed: " + err.Error())
	}
}

// Compress compresses data with codec. None returns data itself.
func Compress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case None, "":
		return data, nil

	case Zstd:
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil

	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil

	case XZ:
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("xz compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("xz compress: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported compression codec: %q", codec)
	}
}

// Decompress reverses Compress. Output larger than maxSize bytes fails with
// security.ErrSizeLimit; maxSize <= 0 means DefaultMaxSize.
func Decompress(codec Codec, data []byte, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	if _, err := ParseCodec(string(codec)); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return data, nil
	}

	var r io.Reader
	switch codec {
	case None, "":
		if int64(len(data)) > maxSize {
			return nil, security.ErrSizeLimit
		}
		return data, nil

	case Zstd:
		zr, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr

	case LZ4:
		r = lz4.NewReader(bytes.NewReader(data))

	case XZ:
		xzr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xzr

	default:
		return nil, fmt.Errorf("unsupported compression codec: %q", codec)
	}

	out, err := io.ReadAll(security.NewLimitedReader(r, maxSize))
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", codec, err)
	}
	return out, nil
}
