package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Stored documents are framed lz4 blocks:
// 8-byte magic + 4-byte LE uint32 uncompressed size + payload.
// Incompressible payloads are stored raw under a distinct magic so the
// reader never has to guess.
var (
	blobMagicLz4 = []byte("eatLz40\x00")
	blobMagicRaw = []byte("eatRaw0\x00")
)

const blobHeaderSize = 12 // 8 magic + 4 size

// CompressBlob frames and compresses raw document bytes for storage.
func CompressBlob(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	out := make([]byte, blobHeaderSize+bound)
	copy(out, blobMagicLz4)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(data)))

	var c lz4.Compressor
	n, err := c.CompressBlock(data, out[blobHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(data) {
		// Incompressible input — store raw.
		raw := make([]byte, blobHeaderSize+len(data))
		copy(raw, blobMagicRaw)
		binary.LittleEndian.PutUint32(raw[8:12], uint32(len(data)))
		copy(raw[blobHeaderSize:], data)
		return raw, nil
	}
	return out[:blobHeaderSize+n], nil
}

// DecompressBlob reverses CompressBlob.
func DecompressBlob(data []byte) ([]byte, error) {
	if len(data) < blobHeaderSize {
		return nil, fmt.Errorf("blob too short (%d bytes)", len(data))
	}

	size := binary.LittleEndian.Uint32(data[8:12])
	switch {
	case hasMagic(data, blobMagicRaw):
		if len(data)-blobHeaderSize < int(size) {
			return nil, fmt.Errorf("raw blob truncated")
		}
		return data[blobHeaderSize : blobHeaderSize+int(size)], nil
	case hasMagic(data, blobMagicLz4):
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(data[blobHeaderSize:], dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return dst[:n], nil
	default:
		return nil, fmt.Errorf("invalid blob magic")
	}
}

func hasMagic(data, magic []byte) bool {
	for i := range magic {
		if data[i] != magic[i] {
			return false
		}
	}
	return true
}
