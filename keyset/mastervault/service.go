// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package mastervault implements keyset.MasterAEAD over a HashiCorp Vault
// Transit secrets engine mount: the keyset envelope is sealed and unwrapped
// via Transit's encrypt/decrypt HTTP API, so the actual key material never
// leaves Vault.
package mastervault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/vault/api"
)

// Logical is the subset of the Vault API client this package depends on,
// narrowed to what encrypt/decrypt against a Transit key requires.
//
//go:generate mockgen -destination ../../internal/mock/logical.gen.go -package mock github.com/sealedstore/cafc/keyset/mastervault Logical
type Logical interface {
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*api.Secret, error)
}

// Service implements keyset.MasterAEAD by calling a Vault Transit mount's
// encrypt/decrypt endpoints for a fixed key name.
type Service struct {
	logical   Logical
	mountPath string
	keyName   string
}

// New builds a Service bound to mountPath/keyName on the given Vault client.
// If mountPath is empty, "transit" is used.
func New(client *api.Client, mountPath, keyName string) (*Service, error) {
	if client == nil {
		return nil, errors.New("mastervault: client must not be nil")
	}
	if keyName == "" {
		return nil, errors.New("mastervault: key name must not be blank")
	}
	if mountPath == "" {
		mountPath = "transit"
	}

	return &Service{
		logical:   client.Logical(),
		mountPath: strings.TrimSuffix(path.Clean(mountPath), "/"),
		keyName:   keyName,
	}, nil
}

// NewWithHTTPClient builds a Vault API client using a connection-pooled
// transport before delegating to New.
func NewWithHTTPClient(addr, token, mountPath, keyName string) (*Service, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr
	cfg.HttpClient = cleanhttp.DefaultPooledClient()

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("mastervault: unable to build vault client: %w", err)
	}
	client.SetToken(token)

	return New(client, mountPath, keyName)
}

// Seal wraps plaintext via Transit's encrypt endpoint. aad is folded into
// the request as associated data so unwrap must present the same value.
func (s *Service) Seal(plaintext, aad []byte) ([]byte, error) {
	data := map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	}
	if len(aad) > 0 {
		data["associated_data"] = base64.StdEncoding.EncodeToString(aad)
	}

	secret, err := s.logical.WriteWithContext(context.Background(), s.encryptPath(), data)
	if err != nil {
		return nil, fmt.Errorf("mastervault: unable to encrypt with %q: %w", s.keyName, err)
	}
	if secret == nil {
		return nil, fmt.Errorf("mastervault: nil response encrypting with %q", s.keyName)
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok || ciphertext == "" {
		return nil, fmt.Errorf("mastervault: no ciphertext in response for %q", s.keyName)
	}

	return []byte(ciphertext), nil
}

// Open unwraps a value produced by Seal via Transit's decrypt endpoint.
func (s *Service) Open(sealed, aad []byte) ([]byte, error) {
	data := map[string]interface{}{
		"ciphertext": string(sealed),
	}
	if len(aad) > 0 {
		data["associated_data"] = base64.StdEncoding.EncodeToString(aad)
	}

	secret, err := s.logical.WriteWithContext(context.Background(), s.decryptPath(), data)
	if err != nil {
		return nil, fmt.Errorf("mastervault: unable to decrypt with %q: %w", s.keyName, err)
	}
	if secret == nil {
		return nil, fmt.Errorf("mastervault: nil response decrypting with %q", s.keyName)
	}

	plaintext64, ok := secret.Data["plaintext"].(string)
	if !ok || plaintext64 == "" {
		return nil, fmt.Errorf("mastervault: no plaintext in response for %q", s.keyName)
	}

	plaintext, err := base64.StdEncoding.DecodeString(plaintext64)
	if err != nil {
		return nil, fmt.Errorf("mastervault: unable to decode plaintext for %q: %w", s.keyName, err)
	}

	return plaintext, nil
}

func (s *Service) encryptPath() string {
	return path.Join(s.mountPath, "encrypt", s.keyName)
}

func (s *Service) decryptPath() string {
	return path.Join(s.mountPath, "decrypt", s.keyName)
}
