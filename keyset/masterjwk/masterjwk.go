// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package masterjwk implements keyset.MasterAEAD over a rotating JWK set:
// sealing AEAD-encrypts the payload and signs it under one designated active
// key, and unwrapping accepts a signature from any key currently present in
// the set. This lets an embedder rotate its master secret by publishing a
// new key alongside the old one, without this package needing to know about
// rotation itself.
package masterjwk

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/sealedstore/cafc/aead"
)

const dataClaim = "dat"

// Service implements keyset.MasterAEAD by AEAD-encrypting into, and
// decrypting out of, a compact JWT whose claim carries the sealed payload,
// signed and verified against a JWK set.
type Service struct {
	keys      jwk.Set
	signKeyID string
}

// New builds a Service over keys, a set of symmetric JWKs each carrying a
// "kid", an "alg" of "HS256", and exactly aead.KeySize bytes of raw key
// material: that raw material doubles as both the JWT's HMAC key and the
// AEAD key encrypting the payload carried inside it. signKeyID selects which
// key in the set new Seal calls use; Open accepts a valid signature from any
// key present in keys, so a rotated-out key can remain in the set only long
// enough to unwrap envelopes sealed before the rotation.
func New(keys jwk.Set, signKeyID string) (*Service, error) {
	if keys == nil || keys.Len() == 0 {
		return nil, errors.New("masterjwk: key set must not be empty")
	}
	if _, ok := keys.LookupKeyID(signKeyID); !ok {
		return nil, fmt.Errorf("masterjwk: signing key %q not found in set", signKeyID)
	}

	return &Service{keys: keys, signKeyID: signKeyID}, nil
}

// Seal encrypts plaintext under the active key's raw material, binding aad,
// and signs the resulting ciphertext into a compact JWT under the same key.
func (s *Service) Seal(plaintext, aad []byte) ([]byte, error) {
	key, _ := s.keys.LookupKeyID(s.signKeyID)

	sealer, err := aeadFromKey(key)
	if err != nil {
		return nil, err
	}

	ciphertext, err := sealer.Seal(plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("masterjwk: unable to encrypt payload: %w", err)
	}

	token := jwt.New()
	if err := token.Set(dataClaim, base64.RawURLEncoding.EncodeToString(ciphertext)); err != nil {
		return nil, fmt.Errorf("masterjwk: unable to set payload claim: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, key))
	if err != nil {
		return nil, fmt.Errorf("masterjwk: unable to sign payload: %w", err)
	}

	return signed, nil
}

// Open verifies a JWT produced by Seal against whichever key in the set
// signed it, then decrypts the carried ciphertext under that same key's raw
// material, checking that aad matches what was bound at seal time.
func (s *Service) Open(sealed, aad []byte) ([]byte, error) {
	msg, err := jws.Parse(sealed)
	if err != nil {
		return nil, fmt.Errorf("masterjwk: unable to parse sealed payload: %w", err)
	}
	if len(msg.Signatures()) == 0 {
		return nil, errors.New("masterjwk: sealed payload carries no signature")
	}

	kid := msg.Signatures()[0].ProtectedHeaders().KeyID()
	key, ok := s.keys.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("masterjwk: signing key %q not found in set", kid)
	}

	token, err := jwt.Parse(sealed, jwt.WithKey(jwa.HS256, key))
	if err != nil {
		return nil, fmt.Errorf("masterjwk: unable to verify sealed payload: %w", err)
	}

	data, err := claimString(token, dataClaim)
	if err != nil {
		return nil, err
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("masterjwk: unable to decode payload: %w", err)
	}

	sealer, err := aeadFromKey(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := sealer.Open(ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("masterjwk: unable to decrypt payload: %w", err)
	}

	return plaintext, nil
}

func aeadFromKey(key jwk.Key) (aead.AEAD, error) {
	var raw []byte
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("masterjwk: unable to extract raw key material: %w", err)
	}
	if len(raw) != aead.KeySize {
		return nil, fmt.Errorf("masterjwk: key material must be %d bytes, got %d", aead.KeySize, len(raw))
	}

	sealer, err := aead.New(raw)
	if err != nil {
		return nil, fmt.Errorf("masterjwk: unable to initialize encryption: %w", err)
	}

	return sealer, nil
}

func claimString(token jwt.Token, name string) (string, error) {
	raw, ok := token.Get(name)
	if !ok {
		return "", fmt.Errorf("masterjwk: claim %q is missing", name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("masterjwk: claim %q has unexpected type %T", name, raw)
	}
	return s, nil
}
