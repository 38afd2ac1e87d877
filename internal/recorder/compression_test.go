package recorder

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestCompressNoneIsIdentity(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	out, err := compress(Config{Mode: CompressionNone}, data, 4)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("CompressionNone altered data: got %v", out)
	}
}

func TestCompressGzipRoundTripsThroughDecompression(t *testing.T) {
	data := bytes.Repeat([]byte{0, 0, 0, 1, 0, 0, 0, 2}, 100)
	out, err := compress(Config{Mode: CompressionGzip, Level: 6}, data, 4)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	r, err := gzip.NewReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	// Shuffle was not requested, so decompressed bytes must match input
	// exactly.
	if !bytes.Equal(buf.Bytes(), data) {
		t.Fatalf("round trip mismatch: got %v, want %v", buf.Bytes(), data)
	}
}

func TestCompressGzipWithShuffleRoundTrips(t *testing.T) {
	data := bytes.Repeat([]byte{0, 0, 0, 1, 0, 0, 0, 2}, 50)
	cfg := Config{Mode: CompressionGzip, Level: 6, Shuffle: true}
	out, err := compress(cfg, data, 4)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	r, err := gzip.NewReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	unshuffled := unshuffle(buf.Bytes(), 4)
	if !bytes.Equal(unshuffled, data) {
		t.Fatalf("shuffle round trip mismatch: got %v, want %v", unshuffled, data)
	}
}

func TestValidateRejectsLZF(t *testing.T) {
	if err := (Config{Mode: CompressionLZF}).Validate(); err == nil {
		t.Fatalf("expected lzf to be rejected")
	}
}

func TestValidateRejectsOutOfRangeGzipLevel(t *testing.T) {
	if err := (Config{Mode: CompressionGzip, Level: 10}).Validate(); err == nil {
		t.Fatalf("expected out-of-range gzip level to be rejected")
	}
}

func TestShuffleIsInvertible(t *testing.T) {
	data := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0x11, 0x22, 0x33, 0x44}
	s := shuffle(data, 4)
	back := unshuffle(s, 4)
	if !bytes.Equal(back, data) {
		t.Fatalf("shuffle/unshuffle not inverse: got %v, want %v", back, data)
	}
}
