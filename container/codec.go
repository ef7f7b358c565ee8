// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/sealedstore/cafc"
)

const (
	// HeaderSize is the fixed on-disk header length in bytes.
	HeaderSize = 32

	// magicValue is the literal 4-byte container magic, "CENC".
	magicValue = "CENC"

	// Version is the only container format version this codec
	// understands. Unknown versions are a hard FormatError: no forward
	// compatibility is attempted.
	Version uint16 = 1

	// lengthPrefixSize is the size of a chunk record's length prefix.
	lengthPrefixSize = 4

	// maxOverhead bounds the AEAD expansion the codec will tolerate on a
	// single chunk, guarding against a corrupted length prefix driving an
	// unbounded read.
	maxOverhead = 128

	// originalSizeOffset is the file offset of the 8-byte original_size
	// field, back-patched by Writer.Close once the total is known.
	originalSizeOffset = 10
)

// FileHeader is the parsed, validated form of a container's 32-byte header.
type FileHeader struct {
	ChunkSize    uint32
	OriginalSize uint64
}

// TotalChunks returns the number of chunk records a container with this
// header holds.
func (h FileHeader) TotalChunks() uint64 {
	if h.OriginalSize == 0 {
		return 0
	}
	return (h.OriginalSize + uint64(h.ChunkSize) - 1) / uint64(h.ChunkSize)
}

// MaxChunkLength is the largest length prefix this codec will accept for a
// chunk record given the header's chunk_size.
func (h FileHeader) MaxChunkLength() uint32 {
	return h.ChunkSize + maxOverhead
}

// WriteHeader emits the 32-byte header to sink: magic, version, chunk_size,
// original_size, and 14 bytes of random, unauthenticated padding.
func WriteHeader(sink io.Writer, chunkSize uint32, originalSize uint64) error {
	if chunkSize == 0 {
		return &cafc.ArgumentError{Reason: "chunk_size must be greater than zero", Err: cafc.ErrInvalidArgument}
	}

	var buf [HeaderSize]byte
	copy(buf[0:4], magicValue)
	binary.BigEndian.PutUint16(buf[4:6], Version)
	binary.BigEndian.PutUint32(buf[6:10], chunkSize)
	binary.BigEndian.PutUint64(buf[10:18], originalSize)
	if _, err := io.ReadFull(rand.Reader, buf[18:32]); err != nil {
		return fmt.Errorf("unable to generate header padding: %w", err)
	}

	if _, err := sink.Write(buf[:]); err != nil {
		return fmt.Errorf("unable to write container header: %w: %w", err, cafc.ErrStorage)
	}

	return nil
}

// ParseHeader validates and decodes a 32-byte header buffer.
func ParseHeader(buf []byte) (FileHeader, error) {
	if len(buf) < HeaderSize {
		return FileHeader{}, &cafc.FormatError{
			Reason: fmt.Sprintf("header buffer too short (%d bytes)", len(buf)),
		}
	}

	if string(buf[0:4]) != magicValue {
		return FileHeader{}, &cafc.FormatError{Reason: "bad magic", Err: cafc.ErrBadMagic}
	}

	if v := binary.BigEndian.Uint16(buf[4:6]); v != Version {
		return FileHeader{}, &cafc.FormatError{
			Reason: fmt.Sprintf("unsupported version %d", v),
			Err:    cafc.ErrUnsupportedVersion,
		}
	}

	chunkSize := binary.BigEndian.Uint32(buf[6:10])
	if chunkSize == 0 {
		return FileHeader{}, &cafc.FormatError{
			Reason: "chunk_size must be greater than zero",
			Err:    cafc.ErrZeroChunkSize,
		}
	}

	originalSize := binary.BigEndian.Uint64(buf[10:18])

	return FileHeader{ChunkSize: chunkSize, OriginalSize: originalSize}, nil
}

// EncodeChunk frames sealed ciphertext as a length-prefixed chunk record.
func EncodeChunk(sealed []byte) []byte {
	out := make([]byte, lengthPrefixSize+len(sealed))
	binary.BigEndian.PutUint32(out[:lengthPrefixSize], uint32(len(sealed)))
	copy(out[lengthPrefixSize:], sealed)
	return out
}

// BuildAAD computes the per-chunk authentication binding: name, the literal
// ":chunk:", and the decimal chunk index.
func BuildAAD(name string, index uint64) []byte {
	return []byte(name + ":chunk:" + strconv.FormatUint(index, 10))
}

// LocateChunk walks length prefixes from offset HeaderSize to find the file
// offset of chunk i's length prefix, then leaves handle positioned there.
func LocateChunk(handle io.ReadSeeker, header FileHeader, i uint64) (int64, error) {
	offset, err := handle.Seek(HeaderSize, io.SeekStart)
	if err != nil {
		return 0, fmt.Errorf("unable to seek to chunk stream start: %w: %w", err, cafc.ErrStorage)
	}

	var lenBuf [lengthPrefixSize]byte
	for n := uint64(0); n < i; n++ {
		if _, err := io.ReadFull(handle, lenBuf[:]); err != nil {
			return 0, &cafc.FormatError{
				Reason: fmt.Sprintf("unable to read length prefix for chunk %d", n),
				Err:    err,
			}
		}

		length := binary.BigEndian.Uint32(lenBuf[:])
		if length == 0 || length > header.MaxChunkLength() {
			return 0, &cafc.FormatError{
				Reason: fmt.Sprintf("invalid chunk %d length %d", n, length),
				Err:    cafc.ErrInvalidLengthPrefix,
			}
		}

		next, err := handle.Seek(int64(length), io.SeekCurrent)
		if err != nil {
			return 0, fmt.Errorf("unable to skip chunk %d content: %w: %w", n, err, cafc.ErrStorage)
		}
		offset = next
	}

	if _, err := handle.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("unable to seek to chunk %d: %w: %w", i, err, cafc.ErrStorage)
	}

	return offset, nil
}
