package gzip

import (
	"bytes"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("function a(){return 1}\n"), 200)
	packed, err := Compress(payload)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if len(packed) >= len(payload) {
		t.Fatalf("expected compressed size < %d, got %d", len(payload), len(packed))
	}
	got, err := Decompress(packed)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("round trip mismatch")
	}
}

func TestDecompressRejectsPlainText(t *testing.T) {
	t.Parallel()

	if _, err := Decompress([]byte("not gzip")); err == nil {
		t.Fatal("expected error for non-gzip input")
	}
}
