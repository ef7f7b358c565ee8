// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package keyset

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/sealedstore/cafc"
	"github.com/sealedstore/cafc/aead"
	"github.com/sealedstore/cafc/keyset/masterjose"
	"github.com/sealedstore/cafc/keyset/masterjwk"
	"github.com/sealedstore/cafc/keyset/masterjwt"
	"github.com/sealedstore/cafc/keyset/mastervault"
)

const defaultMasterKeySource = "local://CAFC_MASTER_KEY"

// NewMasterAEAD builds the MasterAEAD backend selected by cfg.MasterKeySource.
// See Config.MasterKeySource for the recognized URI schemes.
func NewMasterAEAD(cfg cafc.Config) (MasterAEAD, error) {
	source := cfg.MasterKeySource
	if source == "" {
		source = defaultMasterKeySource
	}

	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("keyset: unable to parse master_key_source %q: %w", source, err)
	}

	switch u.Scheme {
	case "local", "":
		return localAEAD(u)
	case "file":
		return masterjose.FromFile(u.Path)
	case "vault":
		return vaultAEAD(u)
	case "jwt":
		return jwtAEAD(u)
	case "jwk":
		return jwkAEAD(u)
	default:
		return nil, fmt.Errorf("keyset: unknown master_key_source scheme %q", u.Scheme)
	}
}

func localAEAD(u *url.URL) (MasterAEAD, error) {
	key, err := envBase64(u.Host, "CAFC_MASTER_KEY")
	if err != nil {
		return nil, err
	}
	return aead.New(key)
}

func jwtAEAD(u *url.URL) (MasterAEAD, error) {
	secret, err := envBase64(u.Host, "CAFC_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	return masterjwt.New(secret)
}

func jwkAEAD(u *url.URL) (MasterAEAD, error) {
	signKeyID := u.Query().Get("kid")
	if signKeyID == "" {
		return nil, fmt.Errorf("keyset: jwk master_key_source %q requires a ?kid= signing key id", u.String())
	}

	raw, err := os.ReadFile(u.Path)
	if err != nil {
		return nil, fmt.Errorf("keyset: unable to read jwk set %q: %w: %w", u.Path, err, cafc.ErrStorage)
	}

	set, err := jwk.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("keyset: unable to parse jwk set %q: %w", u.Path, err)
	}

	return masterjwk.New(set, signKeyID)
}

func vaultAEAD(u *url.URL) (MasterAEAD, error) {
	mountPath, keyName := splitVaultPath(u.Path)
	if mountPath == "" || keyName == "" {
		return nil, fmt.Errorf("keyset: vault master_key_source %q must carry /mountPath/keyName", u.String())
	}

	tokenVar := u.Query().Get("token_env")
	if tokenVar == "" {
		tokenVar = "VAULT_TOKEN"
	}

	scheme := "https"
	if insecure := u.Query().Get("insecure"); insecure == "true" {
		scheme = "http"
	}

	return mastervault.NewWithHTTPClient(scheme+"://"+u.Host, os.Getenv(tokenVar), mountPath, keyName)
}

// splitVaultPath splits a "/mountPath/keyName" URL path into its two
// components; keyName is everything after the last slash.
func splitVaultPath(p string) (mountPath, keyName string) {
	p = strings.Trim(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

// envBase64 reads envVar (falling back to fallback if envVar is empty) and
// base64-decodes its value.
func envBase64(envVar, fallback string) ([]byte, error) {
	if envVar == "" {
		envVar = fallback
	}

	raw := os.Getenv(envVar)
	if raw == "" {
		return nil, fmt.Errorf("keyset: environment variable %q is not set", envVar)
	}

	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("keyset: unable to decode %q as base64: %w", envVar, err)
	}

	return key, nil
}
