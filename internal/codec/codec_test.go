package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "empty", payload: []byte{}},
		{name: "plain text", payload: []byte("hello world")},
		{name: "json body", payload: []byte(`{"tasks":[{"id":"0123","status_code":20000}]}`)},
		{name: "binary", payload: []byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x1f, 0x8b}},
		{name: "marker-like plain input", payload: []byte{0x01, 'G', 'Z', '1', 0x00, 'x'}},
		{name: "large repetitive", payload: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed, err := Compress(tt.payload)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}
			if !IsCompressed(compressed) {
				t.Fatal("Compress() output missing format marker")
			}

			plain, err := Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress() error = %v", err)
			}
			if !bytes.Equal(plain, tt.payload) {
				t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(plain), len(tt.payload))
			}
		})
	}
}

func TestDecompressCorruptInput(t *testing.T) {
	compressed, err := Compress([]byte("some payload that will be damaged"))
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	// Truncate inside the gzip stream.
	corrupt := compressed[:len(compressed)-4]

	if _, err := Decompress(corrupt); err == nil {
		t.Fatal("Decompress() on corrupt input: want error, got nil")
	} else {
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("Decompress() error = %T, want *DecodeError", err)
		}
	}
}

func TestDecompressUnmarkedInput(t *testing.T) {
	if _, err := Decompress([]byte("plain text, never compressed")); err == nil {
		t.Fatal("Decompress() on unmarked input: want error, got nil")
	}
}

func TestCompressIfEnabled(t *testing.T) {
	payload := []byte("conditional payload")

	disabled, err := CompressIfEnabled(false, payload)
	if err != nil {
		t.Fatalf("CompressIfEnabled(false) error = %v", err)
	}
	if !bytes.Equal(disabled, payload) {
		t.Error("CompressIfEnabled(false) modified the payload")
	}
	if IsCompressed(disabled) {
		t.Error("CompressIfEnabled(false) produced a marked value")
	}

	enabled, err := CompressIfEnabled(true, payload)
	if err != nil {
		t.Fatalf("CompressIfEnabled(true) error = %v", err)
	}
	if !IsCompressed(enabled) {
		t.Error("CompressIfEnabled(true) output missing format marker")
	}
}

func TestDecompressIfNeeded(t *testing.T) {
	plain := []byte("stored before compression was enabled")

	got, err := DecompressIfNeeded(plain)
	if err != nil {
		t.Fatalf("DecompressIfNeeded(plain) error = %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Error("DecompressIfNeeded(plain) modified the payload")
	}

	compressed, err := Compress(plain)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	got, err = DecompressIfNeeded(compressed)
	if err != nil {
		t.Fatalf("DecompressIfNeeded(compressed) error = %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Error("DecompressIfNeeded(compressed) did not restore the payload")
	}
}
