// Package rpng reads and writes PNG-compatible image containers with
// its own DEFLATE codec, and edits chunk streams without touching the
// pixel data.
package rpng

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// InflateLimit caps the decompressed image data size accepted by
// DecodeImage.
var InflateLimit = DefaultInflateLimit

var (
	ErrUnsupported  = errors.New("rpng: unsupported image format")
	ErrInvalidImage = errors.New("rpng: invalid image parameters")
)

// Image is a raw raster: rows of packed pixels, top to bottom, with
// 16-bit samples stored big endian.
type Image struct {
	Width    int
	Height   int
	Channels int // 1 gray, 2 gray+alpha, 3 rgb, 4 rgba
	BitDepth int // bits per sample, 8 or 16
	Data     []byte
}

func (img *Image) pixelSize() int {
	return img.Channels * img.BitDepth / 8
}

func (img *Image) stride() int {
	return img.Width * img.pixelSize()
}

func (img *Image) validate() error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidImage, img.Width, img.Height)
	}
	if img.Channels < 1 || img.Channels > 4 {
		return fmt.Errorf("%w: %d channels", ErrInvalidImage, img.Channels)
	}
	if img.BitDepth != 8 && img.BitDepth != 16 {
		return fmt.Errorf("%w: bit depth %d", ErrInvalidImage, img.BitDepth)
	}
	if len(img.Data) != img.Height*img.stride() {
		return fmt.Errorf("%w: %d data bytes, want %d", ErrInvalidImage, len(img.Data), img.Height*img.stride())
	}
	return nil
}

var colorTypeForChannels = [5]byte{0: 0xff, 1: 0, 2: 4, 3: 2, 4: 6}

func channelsForColorType(colorType byte) int {
	switch colorType {
	case 0, 3: // grayscale, indexed
		return 1
	case 4:
		return 2
	case 2:
		return 3
	case 6:
		return 4
	}
	return 0
}

// EncodeImage encodes img with per-row filter selection and the
// default compression level.
func EncodeImage(img *Image) ([]byte, error) {
	return EncodeImageFilter(img, FilterBest)
}

// EncodeImageFilter encodes img forcing the given scanline filter, or
// selecting per row when filter is FilterBest.
func EncodeImageFilter(img *Image, filter Filter) ([]byte, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}
	if filter < FilterBest || filter > FilterPaeth {
		return nil, fmt.Errorf("EncodeImageFilter: %w %d", ErrUnknownFilter, filter)
	}

	filtered := filterScanlines(img.Data, img.Height, img.stride(), img.pixelSize(), filter)
	idat := DeflateZlib(filtered, CompressionLevelDefault)

	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:], uint32(img.Width))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(img.Height))
	ihdr[8] = byte(img.BitDepth)
	ihdr[9] = colorTypeForChannels[img.Channels]
	// compression, filter and interlace methods stay zero

	out := make([]byte, 0, 8+13+len(idat)+3*12)
	out = append(out, pngSignature[:]...)
	out = appendRawChunk(out, "IHDR", ihdr[:])
	out = appendRawChunk(out, "IDAT", idat)
	out = appendRawChunk(out, "IEND", nil)

	logger.Debug().
		Int("width", img.Width).Int("height", img.Height).
		Int("channels", img.Channels).Int("bit_depth", img.BitDepth).
		Int("size", len(out)).
		Msg("image encoded")
	return out, nil
}

// DecodeImage decodes an encoded image back into a raw raster. All
// IDAT chunks are concatenated and CRC checked, the zlib stream is
// verified against its Adler-32, and scanline filters are reversed.
func DecodeImage(data []byte) (*Image, error) {
	ihdr, err := ChunkRead(data, "IHDR")
	if err != nil {
		return nil, err
	}
	if len(ihdr.Data) != 13 {
		return nil, fmt.Errorf("DecodeImage: IHDR length %d: %w", len(ihdr.Data), ErrCorruptData)
	}
	img := &Image{
		Width:    int(binary.BigEndian.Uint32(ihdr.Data[0:])),
		Height:   int(binary.BigEndian.Uint32(ihdr.Data[4:])),
		BitDepth: int(ihdr.Data[8]),
		Channels: channelsForColorType(ihdr.Data[9]),
	}
	switch {
	case img.Width <= 0 || img.Height <= 0:
		return nil, fmt.Errorf("DecodeImage: %w: %dx%d", ErrCorruptData, img.Width, img.Height)
	case img.Channels == 0:
		return nil, fmt.Errorf("DecodeImage: %w: color type %d", ErrUnsupported, ihdr.Data[9])
	case img.BitDepth != 8 && img.BitDepth != 16:
		return nil, fmt.Errorf("DecodeImage: %w: bit depth %d", ErrUnsupported, img.BitDepth)
	case ihdr.Data[10] != 0 || ihdr.Data[11] != 0:
		return nil, fmt.Errorf("DecodeImage: %w: compression %d filter %d", ErrUnsupported, ihdr.Data[10], ihdr.Data[11])
	case ihdr.Data[12] != 0:
		return nil, fmt.Errorf("DecodeImage: %w: interlaced data", ErrUnsupported)
	}

	expected := img.Height * (img.stride() + 1)
	if expected > InflateLimit {
		return nil, fmt.Errorf("DecodeImage: %dx%d: %w", img.Width, img.Height, ErrOutputLimit)
	}
	idat, err := ChunkRead(data, "IDAT")
	if err != nil {
		return nil, err
	}
	filtered, err := InflateZlib(idat.Data, expected)
	if err != nil {
		return nil, err
	}
	if len(filtered) != expected {
		return nil, fmt.Errorf("DecodeImage: %d filtered bytes, want %d: %w", len(filtered), expected, ErrCorruptData)
	}
	img.Data, err = unfilterScanlines(filtered, img.Height, img.stride(), img.pixelSize())
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Int("width", img.Width).Int("height", img.Height).
		Int("channels", img.Channels).Int("bit_depth", img.BitDepth).
		Msg("image decoded")
	return img, nil
}
