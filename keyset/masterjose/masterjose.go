// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package masterjose implements keyset.MasterAEAD by sealing the keyset
// envelope as a JWE object, encrypted directly under a symmetric
// key loaded from a local JWK file. It targets embedders that keep their
// master key material on disk rather than behind a remote KMS.
package masterjose

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/square/go-jose.v2"
)

// contentEncryption is the only content encryption algorithm this package
// produces or accepts: AES-256-GCM gives the same 256-bit security margin
// as the chunk AEAD, so a compromise of the master key is no weaker a link
// than a compromise of the keyset itself.
const contentEncryption = jose.A256GCM

// Service implements keyset.MasterAEAD by wrapping plaintext in a JWE,
// directly encrypted (no key wrapping step) under a symmetric JWK.
type Service struct {
	key *jose.JSONWebKey
}

// New builds a Service from an already-parsed symmetric JWK. The key must
// be an octet sequence ("oct") of exactly 32 bytes.
func New(key *jose.JSONWebKey) (*Service, error) {
	if key == nil {
		return nil, errors.New("masterjose: key must not be nil")
	}
	raw, ok := key.Key.([]byte)
	if !ok {
		return nil, errors.New("masterjose: key must be a symmetric octet key")
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("masterjose: key must be 32 bytes, got %d", len(raw))
	}

	return &Service{key: key}, nil
}

// FromFile loads a symmetric JWK serialized as JSON from path and builds a
// Service around it.
func FromFile(path string) (*Service, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("masterjose: unable to read key file %q: %w", path, err)
	}

	var key jose.JSONWebKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("masterjose: unable to decode key file %q: %w", path, err)
	}

	return New(&key)
}

// Seal encrypts plaintext into a JSON-serialized JWE, binding aad as the
// JWE additional authenticated data. The JSON serialization is used rather
// than the compact one because the compact form cannot carry AAD.
func (s *Service) Seal(plaintext, aad []byte) ([]byte, error) {
	encrypter, err := jose.NewEncrypter(contentEncryption, jose.Recipient{
		Algorithm: jose.DIRECT,
		Key:       s.key,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("masterjose: unable to initialize encrypter: %w", err)
	}

	obj, err := encrypter.EncryptWithAuthData(plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("masterjose: unable to seal payload: %w", err)
	}

	return []byte(obj.FullSerialize()), nil
}

// Open decrypts a JWE produced by Seal. The authenticated data embedded at
// seal time is verified by go-jose as part of tag verification; aad is
// accepted here only to satisfy the MasterAEAD contract symmetrically with
// other backends.
func (s *Service) Open(sealed, _ []byte) ([]byte, error) {
	obj, err := jose.ParseEncrypted(string(sealed))
	if err != nil {
		return nil, fmt.Errorf("masterjose: unable to parse sealed payload: %w", err)
	}

	plaintext, err := obj.Decrypt(s.key)
	if err != nil {
		return nil, fmt.Errorf("masterjose: unable to open sealed payload: %w", err)
	}

	return plaintext, nil
}
