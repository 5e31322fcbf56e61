package rpng

import (
	"fmt"
	"os"
	"time"
)

// File variants of the image and chunk operations: load, transform in
// memory, save back.

func loadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loadFile: %w", err)
	}
	logger.Debug().Str("file", path).Int("size", len(data)).Msg("file loaded")
	return data, nil
}

func saveFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("saveFile: %w", err)
	}
	logger.Debug().Str("file", path).Int("size", len(data)).Msg("file saved")
	return nil
}

// LoadImage reads and decodes an image file.
func LoadImage(path string) (*Image, error) {
	data, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeImage(data)
}

// SaveImage encodes img and writes it to path.
func SaveImage(path string, img *Image) error {
	data, err := EncodeImage(img)
	if err != nil {
		return err
	}
	return saveFile(path, data)
}

// ChunkCountFile counts the chunks in a file, IEND included.
func ChunkCountFile(path string) (int, error) {
	data, err := loadFile(path)
	if err != nil {
		return 0, err
	}
	return ChunkCount(data)
}

// ChunkReadFile returns the first chunk of the given type from a file.
func ChunkReadFile(path, chunkType string) (Chunk, error) {
	data, err := loadFile(path)
	if err != nil {
		return Chunk{}, err
	}
	return ChunkRead(data, chunkType)
}

// ChunkReadAllFile returns every chunk of a file in stream order.
func ChunkReadAllFile(path string) ([]Chunk, error) {
	data, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	return ChunkReadAll(data)
}

// ChunkCheckAllValidFile reports whether every chunk CRC in a file
// matches its contents.
func ChunkCheckAllValidFile(path string) (bool, error) {
	data, err := loadFile(path)
	if err != nil {
		return false, err
	}
	return ChunkCheckAllValid(data), nil
}

// ChunkInfoFile formats the per-chunk report for a file.
func ChunkInfoFile(path string) (string, error) {
	data, err := loadFile(path)
	if err != nil {
		return "", err
	}
	return ChunkInfo(data)
}

// rewriteFile loads path, applies op, and saves the result in place.
func rewriteFile(path string, op func([]byte) ([]byte, error)) error {
	data, err := loadFile(path)
	if err != nil {
		return err
	}
	out, err := op(data)
	if err != nil {
		return err
	}
	return saveFile(path, out)
}

// ChunkWriteFile inserts chunk after IHDR, rewriting the file.
func ChunkWriteFile(path string, chunk Chunk) error {
	return rewriteFile(path, func(data []byte) ([]byte, error) {
		return ChunkWrite(data, chunk)
	})
}

// ChunkRemoveFile strips every chunk of the given type from a file.
func ChunkRemoveFile(path, chunkType string) error {
	return rewriteFile(path, func(data []byte) ([]byte, error) {
		return ChunkRemove(data, chunkType)
	})
}

// ChunkRemoveAncillaryFile keeps only the critical chunks of a file.
func ChunkRemoveAncillaryFile(path string) error {
	return rewriteFile(path, ChunkRemoveAncillary)
}

// ChunkCombineImageDataFile merges the IDAT chunks of a file into one.
func ChunkCombineImageDataFile(path string) error {
	return rewriteFile(path, ChunkCombineImageData)
}

// ChunkSplitImageDataFile splits oversized IDAT chunks in a file.
func ChunkSplitImageDataFile(path string, splitSize int) error {
	return rewriteFile(path, func(data []byte) ([]byte, error) {
		return ChunkSplitImageData(data, splitSize)
	})
}

// ChunkWriteTextFile adds a tEXt chunk to a file.
func ChunkWriteTextFile(path, keyword, text string) error {
	return rewriteFile(path, func(data []byte) ([]byte, error) {
		return ChunkWriteText(data, keyword, text)
	})
}

// ChunkWriteCompTextFile adds a zTXt chunk to a file.
func ChunkWriteCompTextFile(path, keyword, text string) error {
	return rewriteFile(path, func(data []byte) ([]byte, error) {
		return ChunkWriteCompText(data, keyword, text)
	})
}

// ChunkWriteTimeFile adds a tIME chunk to a file.
func ChunkWriteTimeFile(path string, t time.Time) error {
	return rewriteFile(path, func(data []byte) ([]byte, error) {
		return ChunkWriteTime(data, t)
	})
}
