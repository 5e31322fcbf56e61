package rpng

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func makeImage(w, h, channels, depth int) *Image {
	img := &Image{Width: w, Height: h, Channels: channels, BitDepth: depth}
	img.Data = makeRaster(h, img.stride())
	return img
}

func TestEncodeDecode_SinglePixelRGB(t *testing.T) {
	img := &Image{Width: 1, Height: 1, Channels: 3, BitDepth: 8, Data: []byte{10, 20, 30}}

	data, err := EncodeImage(img)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}
	if !bytes.HasPrefix(data, pngSignature[:]) {
		t.Fatalf("missing signature")
	}
	if !ChunkCheckAllValid(data) {
		t.Fatalf("emitted invalid chunk CRCs")
	}
	n, err := ChunkCount(data)
	if err != nil {
		t.Fatalf("ChunkCount: %v", err)
	}
	if n != 3 {
		t.Fatalf("chunk count %d, want 3", n)
	}

	back, err := DecodeImage(data)
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if back.Width != 1 || back.Height != 1 || back.Channels != 3 || back.BitDepth != 8 {
		t.Fatalf("header mismatch: %+v", back)
	}
	if !bytes.Equal(back.Data, []byte{10, 20, 30}) {
		t.Fatalf("pixel data %v, want [10 20 30]", back.Data)
	}
}

func TestEncodeDecode_ImageRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name     string
		w, h     int
		channels int
		depth    int
	}{
		{name: "gray8", w: 31, h: 17, channels: 1, depth: 8},
		{name: "gray_alpha8", w: 16, h: 16, channels: 2, depth: 8},
		{name: "rgb8", w: 64, h: 48, channels: 3, depth: 8},
		{name: "rgba8", w: 100, h: 3, channels: 4, depth: 8},
		{name: "gray16", w: 20, h: 20, channels: 1, depth: 16},
		{name: "rgba16", w: 10, h: 33, channels: 4, depth: 16},
		{name: "wide", w: 1024, h: 2, channels: 3, depth: 8},
		{name: "tall", w: 2, h: 1024, channels: 3, depth: 8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			img := makeImage(tc.w, tc.h, tc.channels, tc.depth)
			data, err := EncodeImage(img)
			if err != nil {
				t.Fatalf("EncodeImage: %v", err)
			}
			back, err := DecodeImage(data)
			if err != nil {
				t.Fatalf("DecodeImage: %v", err)
			}
			if back.Width != tc.w || back.Height != tc.h ||
				back.Channels != tc.channels || back.BitDepth != tc.depth {
				t.Fatalf("header mismatch: %+v", back)
			}
			if !bytes.Equal(back.Data, img.Data) {
				t.Fatalf("pixel data mismatch")
			}
		})
	}
}

func TestEncodeImage_ForcedFilters(t *testing.T) {
	img := makeImage(40, 25, 3, 8)
	for f := FilterNone; f <= FilterPaeth; f++ {
		t.Run(f.String(), func(t *testing.T) {
			data, err := EncodeImageFilter(img, f)
			if err != nil {
				t.Fatalf("EncodeImageFilter: %v", err)
			}
			back, err := DecodeImage(data)
			if err != nil {
				t.Fatalf("DecodeImage: %v", err)
			}
			if !bytes.Equal(back.Data, img.Data) {
				t.Fatalf("pixel data mismatch with forced %v", f)
			}
		})
	}
}

func TestEncodeImage_Invalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		img  *Image
	}{
		{name: "zero_size", img: &Image{Width: 0, Height: 1, Channels: 3, BitDepth: 8}},
		{name: "bad_channels", img: &Image{Width: 1, Height: 1, Channels: 5, BitDepth: 8, Data: make([]byte, 5)}},
		{name: "bad_depth", img: &Image{Width: 1, Height: 1, Channels: 3, BitDepth: 12, Data: make([]byte, 5)}},
		{name: "short_data", img: &Image{Width: 4, Height: 4, Channels: 3, BitDepth: 8, Data: make([]byte, 7)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := EncodeImage(tc.img); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestDecodeImage_CorruptIDAT(t *testing.T) {
	img := makeImage(8, 8, 3, 8)
	data, err := EncodeImage(img)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}
	// flip one byte inside the IDAT payload, keeping the layout intact
	corrupt := append([]byte{}, data...)
	corrupt[8+25+8+4] ^= 0x80
	if _, err := DecodeImage(corrupt); err == nil {
		t.Fatalf("expected error decoding corrupt image data")
	}
}

func TestDecodeImage_SurvivesSplitIDAT(t *testing.T) {
	img := makeImage(64, 64, 4, 8)
	data, err := EncodeImage(img)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}
	split, err := ChunkSplitImageData(data, 512)
	if err != nil {
		t.Fatalf("ChunkSplitImageData: %v", err)
	}
	back, err := DecodeImage(split)
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if !bytes.Equal(back.Data, img.Data) {
		t.Fatalf("pixel data mismatch after split")
	}
}

func TestSaveLoadImage_File(t *testing.T) {
	img := makeImage(32, 32, 3, 8)
	path := filepath.Join(t.TempDir(), "roundtrip.png")
	if err := SaveImage(path, img); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	back, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if !bytes.Equal(back.Data, img.Data) {
		t.Fatalf("pixel data mismatch after file round trip")
	}
	if _, err := LoadImage(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

// -----------------------------
// Interop against image/png
// -----------------------------

func TestEncodeImage_DecodableByStdlib(t *testing.T) {
	img := makeImage(48, 32, 4, 8)
	data, err := EncodeImage(img)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != 48 || b.Dy() != 32 {
		t.Fatalf("stdlib decoded %dx%d, want 48x32", b.Dx(), b.Dy())
	}
	nrgba, ok := decoded.(*image.NRGBA)
	if !ok {
		t.Fatalf("stdlib decoded %T, want *image.NRGBA", decoded)
	}
	for y := 0; y < 32; y++ {
		row := nrgba.Pix[y*nrgba.Stride:][:48*4]
		if !bytes.Equal(row, img.Data[y*img.stride():][:img.stride()]) {
			t.Fatalf("row %d differs from stdlib decode", y)
		}
	}
}

func TestDecodeImage_StdlibEncoded(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	seed := uint32(0xbeef)
	for i := range src.Pix {
		seed = seed*1664525 + 1013904223
		src.Pix[i] = byte(seed >> 24)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	img, err := DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if img.Width != 40 || img.Height != 30 || img.Channels != 4 || img.BitDepth != 8 {
		t.Fatalf("header mismatch: %+v", img)
	}
	for y := 0; y < 30; y++ {
		row := src.Pix[y*src.Stride:][:40*4]
		if !bytes.Equal(img.Data[y*img.stride():][:img.stride()], row) {
			t.Fatalf("row %d differs from stdlib source", y)
		}
	}
}

func TestLoadImage_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.png")
	if err := os.WriteFile(path, []byte("definitely not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadImage(path); err == nil {
		t.Fatalf("expected signature error")
	}
}
