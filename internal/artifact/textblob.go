// Package artifact validates, fetches, parses, and persists the binary corpus
// artifacts (vector blob, text blob, manifest) with content-hash invalidation.
package artifact

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
)

// lengthPrefixSize is the u32 little-endian length prefix of each text record.
const lengthPrefixSize = 4

// EncodeTextBlob serializes chunk texts as [u32 LE length][UTF-8 bytes] records
// in input (manifest) order.
func EncodeTextBlob(texts []string) []byte {
	size := 0
	for _, t := range texts {
		size += lengthPrefixSize + len(t)
	}
	out := make([]byte, 0, size)
	var prefix [lengthPrefixSize]byte
	for _, t := range texts {
		binary.LittleEndian.PutUint32(prefix[:], uint32(len(t)))
		out = append(out, prefix[:]...)
		out = append(out, t...)
	}
	return out
}

// DecodeTextBlob parses expected length-prefixed records from data. A record whose
// declared length exceeds the remaining bytes is a fatal parse error. Trailing
// bytes after the expected record count are tolerated but logged.
func DecodeTextBlob(data []byte, expected int, logger *zap.Logger) ([]string, error) {
	texts := make([]string, 0, expected)
	offset := 0
	for i := 0; i < expected; i++ {
		if offset+lengthPrefixSize > len(data) {
			return nil, fmt.Errorf("text blob truncated: record %d prefix needs %d bytes, %d remain",
				i, lengthPrefixSize, len(data)-offset)
		}
		length := int(binary.LittleEndian.Uint32(data[offset:]))
		offset += lengthPrefixSize
		if offset+length > len(data) {
			return nil, fmt.Errorf("text blob truncated: record %d declares %d bytes, %d remain",
				i, length, len(data)-offset)
		}
		text := string(data[offset : offset+length])
		if !utf8.ValidString(text) {
			return nil, fmt.Errorf("text blob record %d is not valid UTF-8", i)
		}
		texts = append(texts, text)
		offset += length
	}
	if offset < len(data) && logger != nil {
		logger.Warn("text blob has trailing bytes past expected records",
			zap.Int("trailing", len(data)-offset),
			zap.Int("records", expected),
		)
	}
	return texts, nil
}
