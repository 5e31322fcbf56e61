package rpng

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	kflate "github.com/klauspost/compress/flate"
	kzlib "github.com/klauspost/compress/zlib"
)

func lcgBytes(n int, seed uint32) []byte {
	data := make([]byte, n)
	for i := range data {
		seed = seed*1664525 + 1013904223
		data[i] = byte(seed >> 24)
	}
	return data
}

func flateCorpus() []struct {
	name string
	data []byte
} {
	return []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "single_byte", data: []byte{0x42}},
		{name: "max_match_run", data: bytes.Repeat([]byte{'A'}, 258)},
		{name: "zeros_100000", data: make([]byte, 100000)},
		{name: "text", data: []byte(strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200))},
		{name: "random_64k", data: lcgBytes(64<<10, 1)},
		{name: "random_1k", data: lcgBytes(1<<10, 99)},
		{name: "alternating", data: bytes.Repeat([]byte{0, 255}, 4096)},
		{name: "skewed", data: skewedBytes()},
		{name: "multi_block", data: lcgBytes(flateBlockMax+12345, 7)},
	}
}

// skewedBytes grows byte frequencies along a Fibonacci progression,
// pushing the code lengths of the rare symbols toward the format
// maximum.
func skewedBytes() []byte {
	var data []byte
	a, b := 1, 1
	for sym := 0; sym < 24; sym++ {
		data = append(data, bytes.Repeat([]byte{byte(sym)}, a)...)
		a, b = b, a+b
	}
	return data
}

func TestDeflateInflate_RoundTrip(t *testing.T) {
	for _, tc := range flateCorpus() {
		t.Run(tc.name, func(t *testing.T) {
			for level := CompressionLevelMin; level <= CompressionLevelMax; level++ {
				comp := Deflate(tc.data, level)
				if len(comp) == 0 {
					t.Fatalf("level %d: empty stream", level)
				}
				if len(comp) > DeflateBound(len(tc.data)) {
					t.Fatalf("level %d: %d bytes exceeds bound %d", level, len(comp), DeflateBound(len(tc.data)))
				}
				back, err := Inflate(comp, 0)
				if err != nil {
					t.Fatalf("level %d: Inflate: %v", level, err)
				}
				if !bytes.Equal(back, tc.data) {
					t.Fatalf("level %d: round trip mismatch (%d bytes in, %d out)", level, len(tc.data), len(back))
				}
			}
		})
	}
}

func TestDeflateZlib_RoundTrip(t *testing.T) {
	for _, tc := range flateCorpus() {
		t.Run(tc.name, func(t *testing.T) {
			comp := DeflateZlib(tc.data, CompressionLevelDefault)
			if comp[0] != 0x78 {
				t.Fatalf("zlib header starts 0x%02X, want 0x78", comp[0])
			}
			back, err := InflateZlib(comp, 0)
			if err != nil {
				t.Fatalf("InflateZlib: %v", err)
			}
			if !bytes.Equal(back, tc.data) {
				t.Fatalf("round trip mismatch")
			}
		})
	}
}

func TestInflate_FixedHuffmanEmptyBlock(t *testing.T) {
	// A final fixed-Huffman block holding only the end-of-block code.
	out, err := Inflate([]byte{0x03, 0x00}, 0)
	if err != nil {
		t.Fatalf("Inflate: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d bytes, want 0", len(out))
	}
}

func TestInflateZlib_CorruptChecksum(t *testing.T) {
	comp := DeflateZlib([]byte("some compressible payload payload payload"), 6)
	comp[len(comp)-1] ^= 0x01
	if _, err := InflateZlib(comp, 0); !errors.Is(err, ErrChecksum) {
		t.Fatalf("got %v, want %v", err, ErrChecksum)
	}
}

func TestInflate_Corrupt(t *testing.T) {
	for _, tc := range []struct {
		name string
		data []byte
	}{
		{name: "reserved_block_type", data: []byte{0x07}},
		{name: "stored_bad_complement", data: []byte{0x01, 0x05, 0x00, 0x00, 0x00}},
		{name: "stored_truncated", data: []byte{0x01, 0x08, 0x00, 0xf7, 0xff, 0x01}},
		{name: "short_zlib", data: []byte{0x78, 0x01}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Inflate(tc.data, 0); err == nil && tc.name != "short_zlib" {
				t.Fatalf("expected error")
			}
			if _, err := InflateZlib(tc.data, 0); err == nil {
				t.Fatalf("expected zlib error")
			}
		})
	}
}

func TestInflate_SingleDistanceCode(t *testing.T) {
	// Blocks built around one distinct distance are transmitted with a
	// lone one-bit distance code. Distance 2 lands on symbol 1, so a
	// decoder must read the actual symbol rather than assume zero.
	data := bytes.Repeat([]byte{0, 255}, 4096)
	var buf bytes.Buffer
	w, err := kflate.NewWriter(&buf, kflate.BestCompression)
	if err != nil {
		t.Fatalf("flate writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	back, err := Inflate(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("Inflate: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Fatalf("mismatch decoding single-distance block (%d bytes out)", len(back))
	}
}

func TestInflate_IncompleteCodeRejected(t *testing.T) {
	// A dynamic block whose code-length alphabet holds two 2-bit codes
	// and nothing else: incomplete, and not one of the degenerate
	// shapes the format permits.
	stream := []byte{0x05, 0x00, 0x00, 0x09}
	if _, err := Inflate(stream, 0); !errors.Is(err, ErrCorruptData) {
		t.Fatalf("got %v, want %v", err, ErrCorruptData)
	}
}

func TestInflate_OutputLimit(t *testing.T) {
	comp := Deflate(make([]byte, 4096), CompressionLevelDefault)
	if _, err := Inflate(comp, 100); !errors.Is(err, ErrOutputLimit) {
		t.Fatalf("got %v, want %v", err, ErrOutputLimit)
	}
}

// -----------------------------
// Interop against klauspost/compress
// -----------------------------

func TestDeflate_DecodableByFlateReader(t *testing.T) {
	for _, tc := range flateCorpus() {
		t.Run(tc.name, func(t *testing.T) {
			comp := Deflate(tc.data, CompressionLevelDefault)
			r := kflate.NewReader(bytes.NewReader(comp))
			back, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("flate reader: %v", err)
			}
			r.Close()
			if !bytes.Equal(back, tc.data) {
				t.Fatalf("flate reader mismatch")
			}
		})
	}
}

func TestDeflateZlib_DecodableByZlibReader(t *testing.T) {
	data := lcgBytes(32<<10, 42)
	comp := DeflateZlib(data, CompressionLevelDefault)
	r, err := kzlib.NewReader(bytes.NewReader(comp))
	if err != nil {
		t.Fatalf("zlib reader: %v", err)
	}
	back, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("zlib read: %v", err)
	}
	r.Close()
	if !bytes.Equal(back, data) {
		t.Fatalf("zlib reader mismatch")
	}
}

func TestInflate_DecodesFlateWriterOutput(t *testing.T) {
	for _, tc := range flateCorpus() {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := kflate.NewWriter(&buf, kflate.BestCompression)
			if err != nil {
				t.Fatalf("flate writer: %v", err)
			}
			if _, err := w.Write(tc.data); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			back, err := Inflate(buf.Bytes(), 0)
			if err != nil {
				t.Fatalf("Inflate: %v", err)
			}
			if !bytes.Equal(back, tc.data) {
				t.Fatalf("mismatch decoding flate writer output")
			}
		})
	}
}

func TestInflateZlib_DecodesZlibWriterOutput(t *testing.T) {
	data := []byte(strings.Repeat("zlib interop coverage ", 500))
	var buf bytes.Buffer
	w := kzlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	back, err := InflateZlib(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("InflateZlib: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Fatalf("mismatch decoding zlib writer output")
	}
}
