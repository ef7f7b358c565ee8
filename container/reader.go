// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"

	"github.com/sealedstore/cafc"
	"github.com/sealedstore/cafc/aead"
	"github.com/sealedstore/cafc/log"
)

// EOF is the distinguished sentinel Reader.Read returns at end of stream.
// Unlike io.EOF, downstream byte-channel hosts must never confuse a 0-byte
// count with "no data yet, retry" - so Read never returns (0, nil); it
// returns (0, EOF) instead.
var EOF = errors.New("container: end of file")

// ReadSeekCloser is the underlying file handle contract Reader requires.
type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Reader services random-access reads over a sealed container, holding at
// most one decrypted chunk in memory. It is NOT safe for concurrent use.
type Reader struct {
	handle ReadSeekCloser
	opener aead.AEAD
	name   string
	header FileHeader

	position int64

	cachedIndex     int64
	cachedPlaintext []byte

	open bool
}

// NewReader opens handle as a CAFC container: reads and validates the
// 32-byte header, and rejects a file that was never finalized (nonzero body
// with a zero original_size placeholder).
func NewReader(handle ReadSeekCloser, opener aead.AEAD, name string) (*Reader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(handle, buf[:]); err != nil {
		return nil, fmt.Errorf("unable to read container header: %w: %w", err, cafc.ErrFormat)
	}

	header, err := ParseHeader(buf[:])
	if err != nil {
		return nil, err
	}

	if header.OriginalSize == 0 {
		if more, err := hasMoreData(handle); err != nil {
			return nil, err
		} else if more {
			return nil, &cafc.FormatError{Reason: "unfinalized container", Err: cafc.ErrUnfinalizedContainer}
		}
	}

	return &Reader{
		handle:      handle,
		opener:      opener,
		name:        name,
		header:      header,
		cachedIndex: -1,
		open:        true,
	}, nil
}

func hasMoreData(handle ReadSeekCloser) (bool, error) {
	var probe [1]byte
	n, err := handle.Read(probe[:])
	switch {
	case errors.Is(err, io.EOF):
		return n > 0, nil
	case err != nil:
		return false, fmt.Errorf("unable to probe container body: %w: %w", err, cafc.ErrStorage)
	}
	return n > 0, nil
}

// Position returns the current read position.
func (r *Reader) Position() uint64 {
	return uint64(r.position)
}

// SetPosition relocates the read position. Any non-negative value is
// accepted, including positions past end of file; subsequent reads then
// return EOF.
func (r *Reader) SetPosition(p uint64) error {
	if !r.open {
		return &cafc.ClosedError{Reason: "seek on closed container", Err: cafc.ErrAlreadyClosed}
	}
	r.position = int64(p)
	return nil
}

// Size returns the total plaintext length recorded in the header.
func (r *Reader) Size() uint64 {
	return r.header.OriginalSize
}

// Read copies decrypted plaintext into dst starting at the current
// position, advancing it, and continues across chunk boundaries within a
// single call until dst is full or end of stream is reached. It returns
// (0, EOF) at end of stream rather than (0, nil): dst.capacity == 0 is the
// only case in which a zero count is returned without EOF.
func (r *Reader) Read(dst []byte) (int, error) {
	if !r.open {
		return 0, &cafc.ClosedError{Reason: "read on closed container", Err: cafc.ErrAlreadyClosed}
	}

	if len(dst) == 0 {
		return 0, nil
	}

	if uint64(r.position) >= r.header.OriginalSize {
		return 0, EOF
	}

	read := 0
	for read < len(dst) && uint64(r.position) < r.header.OriginalSize {
		index := uint64(r.position) / uint64(r.header.ChunkSize)
		offset := uint64(r.position) % uint64(r.header.ChunkSize)

		if int64(index) != r.cachedIndex {
			if err := r.loadChunk(index); err != nil {
				if read > 0 {
					return read, nil
				}
				return read, err
			}
		}

		if offset >= uint64(len(r.cachedPlaintext)) {
			// Last chunk's decrypted length fell short of what the
			// header's original_size implies for this index; treat the
			// remainder as end of stream rather than overrunning.
			break
		}

		remaining := r.header.OriginalSize - uint64(r.position)
		avail := uint64(len(r.cachedPlaintext)) - offset
		n := uint64(len(dst) - read)
		if n > avail {
			n = avail
		}
		if n > remaining {
			n = remaining
		}

		copy(dst[read:], r.cachedPlaintext[offset:offset+n])
		read += int(n)
		r.position += int64(n)
	}

	if read == 0 {
		return 0, EOF
	}

	return read, nil
}

// loadChunk evicts the cached plaintext, locates and decrypts chunk i, and
// caches the result.
func (r *Reader) loadChunk(i uint64) error {
	r.evictCache()

	if _, err := LocateChunk(r.handle, r.header, i); err != nil {
		return err
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r.handle, lenBuf[:]); err != nil {
		return &cafc.FormatError{
			Reason: fmt.Sprintf("unable to read length prefix for chunk %d", i),
			Err:    err,
		}
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 || length > r.header.MaxChunkLength() {
		return &cafc.FormatError{
			Reason: fmt.Sprintf("invalid chunk %d length %d", i, length),
			Err:    cafc.ErrInvalidLengthPrefix,
		}
	}

	sealed := make([]byte, length)
	if _, err := io.ReadFull(r.handle, sealed); err != nil {
		return &cafc.FormatError{Reason: fmt.Sprintf("unable to read chunk %d content", i), Err: err}
	}

	aad := BuildAAD(r.name, i)
	plaintext, err := r.opener.Open(sealed, aad)
	if err != nil {
		return &cafc.CryptoError{
			Reason: fmt.Sprintf("unable to decrypt chunk %d", i),
			Err:    errors.Join(err, cafc.ErrAuthentication),
		}
	}

	if expected := r.expectedPlaintextLength(i); uint64(len(plaintext)) != expected {
		msg := fmt.Sprintf("chunk %d plaintext length %d does not match expected %d", i, len(plaintext), expected)
		if cafc.InStrictMode() {
			return &cafc.FormatError{Reason: msg}
		}
		log.Level(log.InfoLevel).Message("container: " + msg)
	}

	r.cachedIndex = int64(i)
	r.cachedPlaintext = plaintext

	return nil
}

// expectedPlaintextLength returns the plaintext length chunk i must have
// according to the header: chunk_size for every chunk but the last, and the
// remainder for the last one.
func (r *Reader) expectedPlaintextLength(i uint64) uint64 {
	total := r.header.TotalChunks()
	if total == 0 || i < total-1 {
		return uint64(r.header.ChunkSize)
	}
	return r.header.OriginalSize - (total-1)*uint64(r.header.ChunkSize)
}

func (r *Reader) evictCache() {
	if r.cachedPlaintext != nil {
		memguard.WipeBytes(r.cachedPlaintext)
	}
	r.cachedPlaintext = nil
	r.cachedIndex = -1
}

// Close zeroes any cached plaintext and releases the underlying handle.
// Idempotent.
func (r *Reader) Close() error {
	if !r.open {
		return nil
	}

	r.evictCache()
	r.open = false

	if err := r.handle.Close(); err != nil {
		return fmt.Errorf("unable to close container handle: %w: %w", err, cafc.ErrStorage)
	}

	return nil
}
