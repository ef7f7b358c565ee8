// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/awnumar/memguard"

	"github.com/sealedstore/cafc"
	"github.com/sealedstore/cafc/aead"
)

// maxForwardSeekGap bounds the sparse-fill a SetPosition forward seek will
// perform by writing zero bytes through the normal write path.
const maxForwardSeekGap = 10 * 1024 * 1024

// WriteSeekCloser is the underlying file handle contract Writer requires: it
// must support the back-patch write at a fixed offset on Close.
type WriteSeekCloser interface {
	io.Writer
	io.Seeker
	io.Closer
}

// Writer buffers plaintext up to one chunk, seals it, and appends it to the
// underlying container file. It is NOT safe for concurrent use.
type Writer struct {
	handle WriteSeekCloser
	sealer aead.AEAD
	name   string

	chunkSize uint32
	buffer    []byte

	chunkIndex     uint64
	totalPlaintext uint64
	headerEmitted  bool
	open           bool
}

// NewWriter constructs a Writer over handle. name is the logical filename
// bound into every chunk's AAD; chunkSize is the plaintext chunk granularity
// for this container.
func NewWriter(handle WriteSeekCloser, sealer aead.AEAD, name string, chunkSize uint32) (*Writer, error) {
	if chunkSize == 0 {
		return nil, &cafc.ArgumentError{Reason: "chunk_size must be greater than zero", Err: cafc.ErrInvalidArgument}
	}

	return &Writer{
		handle:    handle,
		sealer:    sealer,
		name:      name,
		chunkSize: chunkSize,
		buffer:    make([]byte, 0, chunkSize),
		open:      true,
	}, nil
}

// Position returns the total number of plaintext bytes accepted so far.
func (w *Writer) Position() uint64 {
	return w.totalPlaintext
}

// Write appends src into the internal buffer, flushing one sealed chunk
// every time the buffer fills. It never returns a short write except on I/O
// failure, which also transitions the Writer to closed.
func (w *Writer) Write(src []byte) (int, error) {
	if !w.open {
		return 0, &cafc.ClosedError{Reason: "write on closed container", Err: cafc.ErrAlreadyClosed}
	}

	written := 0
	for len(src) > 0 {
		room := int(w.chunkSize) - len(w.buffer)
		n := room
		if n > len(src) {
			n = len(src)
		}

		w.buffer = append(w.buffer, src[:n]...)
		src = src[n:]
		written += n
		w.totalPlaintext += uint64(n)

		if len(w.buffer) == int(w.chunkSize) {
			if err := w.flush(); err != nil {
				w.open = false
				return written, err
			}
		}
	}

	return written, nil
}

// SetPosition relocates the write position. Only a no-op seek to the current
// position, or a small forward gap implemented by sparse-filling zero bytes,
// is supported.
func (w *Writer) SetPosition(p uint64) error {
	if !w.open {
		return &cafc.ClosedError{Reason: "seek on closed container", Err: cafc.ErrAlreadyClosed}
	}

	switch {
	case p == w.totalPlaintext:
		return nil
	case p < w.totalPlaintext:
		return &cafc.SeekError{Reason: "no backward seek", Err: cafc.ErrSeekBackward}
	}

	gap := p - w.totalPlaintext
	if gap > maxForwardSeekGap {
		return &cafc.SeekError{
			Reason: fmt.Sprintf("forward seek gap %d exceeds %d byte bound", gap, maxForwardSeekGap),
			Err:    cafc.ErrSeekGapTooLarge,
		}
	}

	zeros := make([]byte, 32*1024)
	for gap > 0 {
		n := uint64(len(zeros))
		if n > gap {
			n = gap
		}
		if _, err := w.Write(zeros[:n]); err != nil {
			return err
		}
		gap -= n
	}

	return nil
}

// Truncate is a no-op when n is at or past the current plaintext length;
// shrinking a sealed container is not supported.
func (w *Writer) Truncate(n uint64) error {
	if !w.open {
		return &cafc.ClosedError{Reason: "truncate on closed container", Err: cafc.ErrAlreadyClosed}
	}

	if n >= w.totalPlaintext {
		return nil
	}

	return &cafc.TruncateError{Reason: "rewriting sealed chunks is not supported", Err: cafc.ErrRewriteSealedChunk}
}

// Close flushes any buffered plaintext as the final chunk, emits the header
// if it has not been emitted yet, back-patches original_size, and releases
// the underlying handle. Idempotent.
func (w *Writer) Close() error {
	if !w.open {
		return nil
	}

	if err := w.flush(); err != nil {
		w.open = false
		return err
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], w.totalPlaintext)
	if _, err := w.handle.Seek(originalSizeOffset, io.SeekStart); err != nil {
		w.open = false
		return fmt.Errorf("unable to seek to original_size field: %w: %w", err, cafc.ErrStorage)
	}
	if _, err := w.handle.Write(buf[:]); err != nil {
		w.open = false
		return fmt.Errorf("unable to back-patch original_size: %w: %w", err, cafc.ErrStorage)
	}

	w.open = false
	if err := w.handle.Close(); err != nil {
		return fmt.Errorf("unable to close container handle: %w: %w", err, cafc.ErrStorage)
	}

	return nil
}

// flush seals the current buffer contents and appends the resulting chunk
// record, emitting the header first if this is the very first flush.
func (w *Writer) flush() error {
	if !w.headerEmitted {
		if err := WriteHeader(w.handle, w.chunkSize, 0); err != nil {
			return err
		}
		w.headerEmitted = true
	}

	if len(w.buffer) == 0 {
		// Nothing to seal: either a no-op final flush after an
		// exact-multiple-of-chunk-size stream, or an entirely empty
		// container (original_size == 0, zero chunks emitted).
		return nil
	}

	aad := BuildAAD(w.name, w.chunkIndex)
	sealed, err := w.sealer.Seal(w.buffer, aad)
	if err != nil {
		return &cafc.CryptoError{Reason: fmt.Sprintf("unable to seal chunk %d", w.chunkIndex), Err: err}
	}

	if _, err := w.handle.Write(EncodeChunk(sealed)); err != nil {
		return fmt.Errorf("unable to write chunk %d: %w: %w", w.chunkIndex, err, cafc.ErrStorage)
	}

	w.chunkIndex++
	memguard.WipeBytes(w.buffer)
	w.buffer = w.buffer[:0]

	return nil
}
