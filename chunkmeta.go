package rpng

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Writers for the standard ancillary chunks. Each builds the payload
// and inserts it after IHDR through ChunkWrite.

// ChunkWriteText adds a tEXt chunk: keyword, a zero separator, then
// uncompressed text. Keywords are 1 to 79 bytes.
func ChunkWriteText(data []byte, keyword, text string) ([]byte, error) {
	if len(keyword) == 0 || len(keyword) > 79 {
		return nil, fmt.Errorf("ChunkWriteText: keyword length %d", len(keyword))
	}
	payload := make([]byte, 0, len(keyword)+1+len(text))
	payload = append(payload, keyword...)
	payload = append(payload, 0)
	payload = append(payload, text...)
	return ChunkWrite(data, Chunk{Type: "tEXt", Data: payload})
}

// ChunkWriteCompText adds a zTXt chunk: keyword, a zero separator,
// the compression method byte, then zlib-compressed text.
func ChunkWriteCompText(data []byte, keyword, text string) ([]byte, error) {
	if len(keyword) == 0 || len(keyword) > 79 {
		return nil, fmt.Errorf("ChunkWriteCompText: keyword length %d", len(keyword))
	}
	comp := DeflateZlib([]byte(text), CompressionLevelDefault)
	payload := make([]byte, 0, len(keyword)+2+len(comp))
	payload = append(payload, keyword...)
	payload = append(payload, 0, 0)
	payload = append(payload, comp...)
	return ChunkWrite(data, Chunk{Type: "zTXt", Data: payload})
}

// ChunkWriteGamma adds a gAMA chunk, storing gamma scaled by 100000.
func ChunkWriteGamma(data []byte, gamma float64) ([]byte, error) {
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], uint32(math.Round(gamma*100000)))
	return ChunkWrite(data, Chunk{Type: "gAMA", Data: payload[:]})
}

// Rendering intents for ChunkWriteSRGB.
const (
	SRGBPerceptual = iota
	SRGBRelativeColorimetric
	SRGBSaturation
	SRGBAbsoluteColorimetric
)

// ChunkWriteSRGB adds an sRGB chunk with the given rendering intent.
func ChunkWriteSRGB(data []byte, intent int) ([]byte, error) {
	if intent < SRGBPerceptual || intent > SRGBAbsoluteColorimetric {
		return nil, fmt.Errorf("ChunkWriteSRGB: intent %d", intent)
	}
	return ChunkWrite(data, Chunk{Type: "sRGB", Data: []byte{byte(intent)}})
}

// ChunkWriteTime adds a tIME chunk with the last-modification time:
// big-endian year, then month, day, hour, minute, second bytes.
func ChunkWriteTime(data []byte, t time.Time) ([]byte, error) {
	var payload [7]byte
	binary.BigEndian.PutUint16(payload[:], uint16(t.Year()))
	payload[2] = byte(t.Month())
	payload[3] = byte(t.Day())
	payload[4] = byte(t.Hour())
	payload[5] = byte(t.Minute())
	payload[6] = byte(t.Second())
	return ChunkWrite(data, Chunk{Type: "tIME", Data: payload[:]})
}

// ChunkWritePhysicalSize adds a pHYs chunk with pixels per unit on
// each axis. meters selects the metre as unit, otherwise the unit is
// unspecified.
func ChunkWritePhysicalSize(data []byte, pixelsPerUnitX, pixelsPerUnitY int, meters bool) ([]byte, error) {
	var payload [9]byte
	binary.BigEndian.PutUint32(payload[0:], uint32(pixelsPerUnitX))
	binary.BigEndian.PutUint32(payload[4:], uint32(pixelsPerUnitY))
	if meters {
		payload[8] = 1
	}
	return ChunkWrite(data, Chunk{Type: "pHYs", Data: payload[:]})
}

// ChunkWriteChroma adds a cHRM chunk with the white point and primary
// chromaticities, each coordinate scaled by 100000.
func ChunkWriteChroma(data []byte, whiteX, whiteY, redX, redY, greenX, greenY, blueX, blueY float64) ([]byte, error) {
	var payload [32]byte
	coords := [8]float64{whiteX, whiteY, redX, redY, greenX, greenY, blueX, blueY}
	for i, c := range coords {
		binary.BigEndian.PutUint32(payload[i*4:], uint32(math.Round(c*100000)))
	}
	return ChunkWrite(data, Chunk{Type: "cHRM", Data: payload[:]})
}

// ChunkInfo formats a per-chunk report of the stream: index, type,
// payload size and CRC validity.
func ChunkInfo(data []byte) (string, error) {
	chunks, err := ChunkReadAll(data)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-5s %-6s %10s  %-10s %s\n", "index", "type", "size", "crc", "valid")
	for i, chunk := range chunks {
		valid := "ok"
		if !chunk.Valid() {
			valid = "BAD"
		}
		fmt.Fprintf(&sb, "%-5d %-6s %10d  0x%08x %s\n", i, chunk.Type, len(chunk.Data), chunk.CRC, valid)
	}
	return sb.String(), nil
}
