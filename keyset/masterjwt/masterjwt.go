// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package masterjwt implements keyset.MasterAEAD by carrying an
// AEAD-encrypted payload as a claim inside an HMAC-signed JWT. It targets
// embedders whose master secret is already provisioned as a shared HMAC key
// (an env var or a mounted secret), with no separate KMS round-trip.
package masterjwt

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	jwt "github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/hkdf"

	"github.com/sealedstore/cafc/aead"
)

// minSecretSize is the smallest shared secret this package accepts: below
// this the derived keys' security margin falls short of the chunk AEAD's
// 256-bit key.
const minSecretSize = 32

var (
	signInfo    = []byte("cafc:masterjwt:sign")
	encryptInfo = []byte("cafc:masterjwt:encrypt")
)

// sealedClaims is the JWT claim set carrying the AEAD-sealed payload,
// base64url-encoded.
type sealedClaims struct {
	Data string `json:"dat"`
	jwt.RegisteredClaims
}

// Service implements keyset.MasterAEAD by encrypting the payload under an
// AEAD key derived from the shared secret, then carrying the ciphertext as a
// JWT claim signed with an independently derived HMAC key. The single
// secret a caller supplies never appears directly in either role: HKDF
// separates it into a signing key and an encryption key so a compromise of
// one derived use doesn't hand over the other.
type Service struct {
	signKey []byte
	sealer  aead.AEAD
}

// New builds a Service from a shared secret of at least 32 bytes.
func New(secret []byte) (*Service, error) {
	if len(secret) < minSecretSize {
		return nil, fmt.Errorf("masterjwt: secret must be at least %d bytes, got %d", minSecretSize, len(secret))
	}

	signKey, err := derive(secret, signInfo, minSecretSize)
	if err != nil {
		return nil, fmt.Errorf("masterjwt: unable to derive signing key: %w", err)
	}

	encKey, err := derive(secret, encryptInfo, aead.KeySize)
	if err != nil {
		return nil, fmt.Errorf("masterjwt: unable to derive encryption key: %w", err)
	}

	sealer, err := aead.New(encKey)
	if err != nil {
		return nil, fmt.Errorf("masterjwt: unable to initialize encryption: %w", err)
	}

	return &Service{signKey: signKey, sealer: sealer}, nil
}

func derive(secret, info []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, info), out); err != nil {
		return nil, fmt.Errorf("masterjwt: unable to derive key material: %w", err)
	}
	return out, nil
}

// Seal encrypts plaintext under the derived AEAD key, binding aad, and signs
// the resulting ciphertext into a compact JWT under the derived HMAC key.
func (s *Service) Seal(plaintext, aad []byte) ([]byte, error) {
	ciphertext, err := s.sealer.Seal(plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("masterjwt: unable to encrypt payload: %w", err)
	}

	claims := sealedClaims{Data: base64.RawURLEncoding.EncodeToString(ciphertext)}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.signKey)
	if err != nil {
		return nil, fmt.Errorf("masterjwt: unable to sign payload: %w", err)
	}

	return []byte(signed), nil
}

// Open verifies a JWT produced by Seal, decodes its ciphertext claim, and
// decrypts it, checking that aad matches what was bound at seal time.
func (s *Service) Open(sealed, aad []byte) ([]byte, error) {
	var claims sealedClaims

	token, err := jwt.ParseWithClaims(string(sealed), &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("masterjwt: unexpected signing method %v", t.Header["alg"])
		}
		return s.signKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("masterjwt: unable to verify sealed payload: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("masterjwt: sealed payload failed verification")
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(claims.Data)
	if err != nil {
		return nil, fmt.Errorf("masterjwt: unable to decode payload: %w", err)
	}

	plaintext, err := s.sealer.Open(ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("masterjwt: unable to decrypt payload: %w", err)
	}

	return plaintext, nil
}
