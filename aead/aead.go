// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package aead provides the single fixed AEAD construction the container
// format builds on: 256-bit key, 96-bit nonce, 128-bit tag, no algorithm
// negotiation and no key rotation.
package aead

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the required key length in bytes.
	KeySize = chacha20poly1305.KeySize
	// NonceSize is the random nonce length prepended to every sealed
	// output, in bytes.
	NonceSize = chacha20poly1305.NonceSize
	// Overhead is the per-call ciphertext expansion: nonce plus tag.
	Overhead = NonceSize + chacha20poly1305.Overhead
)

// ErrAuth is raised when Open fails to authenticate a sealed payload: either
// the tag or the AAD does not match.
var ErrAuth = errors.New("aead: authentication failed")

// AEAD is the sealing/opening contract the container codec and the keyset
// package depend on. Implementations must be safe for concurrent use.
type AEAD interface {
	// Seal encrypts and authenticates plaintext, binding aad, and returns
	// nonce || ciphertext || tag. A fresh nonce is generated per call.
	Seal(plaintext, aad []byte) ([]byte, error)
	// Open authenticates and decrypts a value produced by Seal, verifying
	// that aad matches what was bound at seal time.
	Open(sealed, aad []byte) ([]byte, error)
}

// primitive wraps golang.org/x/crypto/chacha20poly1305 behind the AEAD
// contract.
type primitive struct {
	cipher chachaCipher
}

type chachaCipher interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// New constructs an AEAD from a 32-byte key.
func New(key []byte) (AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aead: key must be %d bytes, got %d", KeySize, len(key))
	}

	c, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("aead: unable to initialize cipher: %w", err)
	}

	return &primitive{cipher: c}, nil
}

func (p *primitive) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, p.cipher.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("aead: unable to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+p.cipher.Overhead())
	out = append(out, nonce...)
	out = p.cipher.Seal(out, nonce, plaintext, aad)

	return out, nil
}

func (p *primitive) Open(sealed, aad []byte) ([]byte, error) {
	if len(sealed) < p.cipher.NonceSize() {
		return nil, fmt.Errorf("aead: sealed value shorter than nonce: %w", ErrAuth)
	}

	nonce, ciphertext := sealed[:p.cipher.NonceSize()], sealed[p.cipher.NonceSize():]

	plaintext, err := p.cipher.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("aead: authentication failed: %w", ErrAuth)
	}

	return plaintext, nil
}
