package rpng

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Container model. A stream is the 8-byte signature followed by
// chunks: big-endian payload length, 4-byte type, payload, then a
// CRC-32 over type and payload. The stream ends at the IEND chunk.

var pngSignature = [8]byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

var (
	ErrBadSignature  = errors.New("rpng: bad png signature")
	ErrChunkNotFound = errors.New("rpng: chunk not found")
	ErrTruncated     = errors.New("rpng: truncated chunk stream")
)

// Chunk is a single container chunk. CRC covers the type and payload;
// a zero CRC on chunks built by hand is recomputed on write.
type Chunk struct {
	Type string
	Data []byte
	CRC  uint32
}

func chunkCRC(chunkType string, data []byte) uint32 {
	crc := ^uint32(0)
	for i := 0; i < len(chunkType); i++ {
		crc = (crc >> 8) ^ crcTable[byte(crc)^chunkType[i]]
	}
	for _, b := range data {
		crc = (crc >> 8) ^ crcTable[byte(crc)^b]
	}
	return ^crc
}

// Valid reports whether the stored CRC matches the chunk contents.
func (c Chunk) Valid() bool {
	return c.CRC == chunkCRC(c.Type, c.Data)
}

// chunkCursor walks a chunk stream with bounds checks on every field.
type chunkCursor struct {
	buf []byte
	off int
}

func newChunkCursor(data []byte) (*chunkCursor, error) {
	if len(data) < len(pngSignature) || !bytes.Equal(data[:8], pngSignature[:]) {
		return nil, ErrBadSignature
	}
	return &chunkCursor{buf: data, off: 8}, nil
}

// next returns the chunk at the cursor plus its raw encoding, and
// advances. Calling next again after IEND reports truncation.
func (c *chunkCursor) next() (Chunk, []byte, error) {
	if c.off+12 > len(c.buf) {
		return Chunk{}, nil, ErrTruncated
	}
	n := int(binary.BigEndian.Uint32(c.buf[c.off:]))
	if n < 0 || c.off+12+n > len(c.buf) {
		return Chunk{}, nil, ErrTruncated
	}
	raw := c.buf[c.off : c.off+12+n]
	chunk := Chunk{
		Type: string(raw[4:8]),
		Data: raw[8 : 8+n],
		CRC:  binary.BigEndian.Uint32(raw[8+n:]),
	}
	c.off += 12 + n
	return chunk, raw, nil
}

func appendRawChunk(out []byte, chunkType string, data []byte) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(data)))
	out = append(out, b[:]...)
	out = append(out, chunkType...)
	out = append(out, data...)
	binary.BigEndian.PutUint32(b[:], chunkCRC(chunkType, data))
	return append(out, b[:]...)
}

// ChunkCount returns the number of chunks in the stream, IEND
// included.
func ChunkCount(data []byte) (int, error) {
	cur, err := newChunkCursor(data)
	if err != nil {
		return 0, err
	}
	count := 0
	for {
		chunk, _, err := cur.next()
		if err != nil {
			return 0, err
		}
		count++
		if chunk.Type == "IEND" {
			return count, nil
		}
	}
}

// ChunkRead returns the first chunk of the given type. Reading "IDAT"
// concatenates every image data chunk into one, verifying each
// piece's CRC, and returns the CRC of the combined payload.
func ChunkRead(data []byte, chunkType string) (Chunk, error) {
	cur, err := newChunkCursor(data)
	if err != nil {
		return Chunk{}, err
	}
	if chunkType == "IDAT" {
		var concat []byte
		found := false
		for {
			chunk, _, err := cur.next()
			if err != nil {
				return Chunk{}, err
			}
			if chunk.Type == "IDAT" {
				if !chunk.Valid() {
					return Chunk{}, fmt.Errorf("ChunkRead: IDAT: %w", ErrChecksum)
				}
				concat = append(concat, chunk.Data...)
				found = true
			}
			if chunk.Type == "IEND" {
				break
			}
		}
		if !found {
			return Chunk{}, fmt.Errorf("ChunkRead: IDAT: %w", ErrChunkNotFound)
		}
		return Chunk{Type: "IDAT", Data: concat, CRC: chunkCRC("IDAT", concat)}, nil
	}
	for {
		chunk, _, err := cur.next()
		if err != nil {
			return Chunk{}, err
		}
		if chunk.Type == chunkType {
			return chunk, nil
		}
		if chunk.Type == "IEND" {
			return Chunk{}, fmt.Errorf("ChunkRead: %s: %w", chunkType, ErrChunkNotFound)
		}
	}
}

// ChunkReadAll returns every chunk in stream order, IEND included.
func ChunkReadAll(data []byte) ([]Chunk, error) {
	cur, err := newChunkCursor(data)
	if err != nil {
		return nil, err
	}
	var chunks []Chunk
	for {
		chunk, _, err := cur.next()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
		if chunk.Type == "IEND" {
			return chunks, nil
		}
	}
}

// ChunkWrite inserts chunk immediately after IHDR and returns a new
// stream. The chunk CRC is recomputed. The result is verified to have
// grown by exactly the encoded chunk size.
func ChunkWrite(data []byte, chunk Chunk) ([]byte, error) {
	cur, err := newChunkCursor(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+len(chunk.Data)+12)
	out = append(out, pngSignature[:]...)
	inserted := false
	for {
		next, raw, err := cur.next()
		if err != nil {
			return nil, err
		}
		out = append(out, raw...)
		if next.Type == "IHDR" {
			out = appendRawChunk(out, chunk.Type, chunk.Data)
			inserted = true
		}
		if next.Type == "IEND" {
			break
		}
	}
	if !inserted {
		return nil, fmt.Errorf("ChunkWrite: IHDR: %w", ErrChunkNotFound)
	}
	if len(out) != len(data)+len(chunk.Data)+12 {
		return nil, fmt.Errorf("ChunkWrite: output size %d, want %d", len(out), len(data)+len(chunk.Data)+12)
	}
	return out, nil
}

// ChunkRemove strips every chunk of the given type. IEND is always
// kept.
func ChunkRemove(data []byte, chunkType string) ([]byte, error) {
	cur, err := newChunkCursor(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data))
	out = append(out, pngSignature[:]...)
	for {
		chunk, raw, err := cur.next()
		if err != nil {
			return nil, err
		}
		if chunk.Type == "IEND" {
			return append(out, raw...), nil
		}
		if chunk.Type != chunkType {
			out = append(out, raw...)
		}
	}
}

// ChunkRemoveAncillary keeps only the critical chunks: IHDR, PLTE,
// IDAT and IEND. tRNS survives when a palette is present, since
// dropping it would lose palette transparency.
func ChunkRemoveAncillary(data []byte) ([]byte, error) {
	cur, err := newChunkCursor(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data))
	out = append(out, pngSignature[:]...)
	hasPalette := false
	for {
		chunk, raw, err := cur.next()
		if err != nil {
			return nil, err
		}
		if chunk.Type == "IEND" {
			return append(out, raw...), nil
		}
		if chunk.Type == "PLTE" {
			hasPalette = true
		}
		switch chunk.Type {
		case "IHDR", "PLTE", "IDAT":
			out = append(out, raw...)
		case "tRNS":
			if hasPalette {
				out = append(out, raw...)
			}
		}
	}
}

// ChunkCombineImageData merges all IDAT chunks into a single one
// placed right before IEND.
func ChunkCombineImageData(data []byte) ([]byte, error) {
	cur, err := newChunkCursor(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data))
	out = append(out, pngSignature[:]...)
	var concat []byte
	for {
		chunk, raw, err := cur.next()
		if err != nil {
			return nil, err
		}
		switch chunk.Type {
		case "IDAT":
			concat = append(concat, chunk.Data...)
		case "IEND":
			out = appendRawChunk(out, "IDAT", concat)
			return append(out, raw...), nil
		default:
			out = append(out, raw...)
		}
	}
}

// ChunkSplitImageData splits any IDAT chunk larger than splitSize
// into consecutive pieces of at most splitSize bytes.
func ChunkSplitImageData(data []byte, splitSize int) ([]byte, error) {
	if splitSize <= 0 {
		return nil, fmt.Errorf("ChunkSplitImageData: split size %d", splitSize)
	}
	cur, err := newChunkCursor(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data))
	out = append(out, pngSignature[:]...)
	for {
		chunk, raw, err := cur.next()
		if err != nil {
			return nil, err
		}
		if chunk.Type == "IEND" {
			return append(out, raw...), nil
		}
		if chunk.Type == "IDAT" && len(chunk.Data) > splitSize {
			rest := chunk.Data
			for len(rest) > splitSize {
				out = appendRawChunk(out, "IDAT", rest[:splitSize])
				rest = rest[splitSize:]
			}
			out = appendRawChunk(out, "IDAT", rest)
		} else {
			out = append(out, raw...)
		}
	}
}

// ChunkCheckAllValid reports whether the stream parses and every
// chunk's stored CRC matches its contents.
func ChunkCheckAllValid(data []byte) bool {
	chunks, err := ChunkReadAll(data)
	if err != nil {
		return false
	}
	for _, chunk := range chunks {
		if !chunk.Valid() {
			return false
		}
	}
	return true
}
