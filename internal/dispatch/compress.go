package dispatch

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// DefaultCompressionThreshold is the body size above which compression kicks in.
const DefaultCompressionThreshold = 2048

// Compression controls gzip encoding of request bodies.
type Compression struct {
	Enabled        bool
	ThresholdBytes int
}

func (c Compression) threshold() int {
	if c.ThresholdBytes <= 0 {
		return DefaultCompressionThreshold
	}
	return c.ThresholdBytes
}

// apply gzips body when compression is enabled and body is larger than the
// threshold. The second return value reports whether body was encoded.
func (c Compression) apply(body []byte) ([]byte, bool, error) {
	if !c.Enabled || len(body) <= c.threshold() {
		return body, false, nil
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := zw.Write(body); err != nil {
		return nil, false, fmt.Errorf("failed to compress body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to compress body: %w", err)
	}
	return buf.Bytes(), true, nil
}
