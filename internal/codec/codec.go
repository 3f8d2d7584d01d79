// Package codec compresses and decompresses cached payload fields. Stored
// compressed values carry an explicit format marker so the read path can
// tell a compressed value from a plain one without guessing; the per-client
// enablement policy can therefore be toggled between writes without
// corrupting reads of older rows.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// marker prefixes every compressed value. The leading 0x01 byte keeps it out
// of the printable range so plain text payloads can never collide with it.
var marker = []byte{0x01, 'G', 'Z', '1', 0x00}

// DecodeError reports a compressed value that could not be restored. Corrupt
// input surfaces as a DecodeError, never as wrong output.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode failed: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Compress compresses unconditionally, regardless of any enablement policy.
// The result round-trips through Decompress for any input, including empty
// and arbitrary binary payloads.
func Compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(marker)
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("codec: compress failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: compress failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress restores a value produced by Compress. Input without the format
// marker or with corrupt compressed bytes returns a DecodeError.
func Decompress(payload []byte) ([]byte, error) {
	if !IsCompressed(payload) {
		return nil, &DecodeError{Cause: fmt.Errorf("missing format marker")}
	}
	r, err := gzip.NewReader(bytes.NewReader(payload[len(marker):]))
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}
	defer r.Close()

	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return plain, nil
}

// IsCompressed reports whether a stored value carries the format marker.
func IsCompressed(payload []byte) bool {
	return bytes.HasPrefix(payload, marker)
}

// CompressIfEnabled compresses only when the client's policy enables it;
// otherwise the payload is returned unchanged.
func CompressIfEnabled(enabled bool, payload []byte) ([]byte, error) {
	if !enabled {
		return payload, nil
	}
	return Compress(payload)
}

// DecompressIfNeeded auto-detects whether a stored value is compressed and
// decompresses only if so. Plain values pass through unchanged.
func DecompressIfNeeded(payload []byte) ([]byte, error) {
	if !IsCompressed(payload) {
		return payload, nil
	}
	return Decompress(payload)
}
