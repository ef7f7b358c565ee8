// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package keyset

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sealedstore/cafc"
	"github.com/sealedstore/cafc/aead"
)

func TestNewMasterAEAD_Local(t *testing.T) {
	key := make([]byte, aead.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("CAFC_MASTER_KEY_TEST", base64.StdEncoding.EncodeToString(key))

	master, err := NewMasterAEAD(cafc.Config{MasterKeySource: "local://CAFC_MASTER_KEY_TEST"})
	require.NoError(t, err)

	sealed, err := master.Seal([]byte("plaintext"), []byte("aad"))
	require.NoError(t, err)
	opened, err := master.Open(sealed, []byte("aad"))
	require.NoError(t, err)
	require.Equal(t, []byte("plaintext"), opened)
}

func TestNewMasterAEAD_LocalDefaultsWhenSourceEmpty(t *testing.T) {
	key := make([]byte, aead.KeySize)
	t.Setenv("CAFC_MASTER_KEY", base64.StdEncoding.EncodeToString(key))

	master, err := NewMasterAEAD(cafc.Config{})
	require.NoError(t, err)
	require.NotNil(t, master)
}

func TestNewMasterAEAD_LocalMissingEnvVar(t *testing.T) {
	t.Parallel()

	_, err := NewMasterAEAD(cafc.Config{MasterKeySource: "local://CAFC_DOES_NOT_EXIST"})
	require.Error(t, err)
}

func TestNewMasterAEAD_JWT(t *testing.T) {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i + 1)
	}
	t.Setenv("CAFC_JWT_SECRET_TEST", base64.StdEncoding.EncodeToString(secret))

	master, err := NewMasterAEAD(cafc.Config{MasterKeySource: "jwt://CAFC_JWT_SECRET_TEST"})
	require.NoError(t, err)

	sealed, err := master.Seal([]byte("plaintext"), nil)
	require.NoError(t, err)
	opened, err := master.Open(sealed, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("plaintext"), opened)
}

func TestNewMasterAEAD_JWK(t *testing.T) {
	t.Parallel()

	jwksPath := filepath.Join(t.TempDir(), "keys.jwks")
	const jwks = `{"keys":[{"kty":"oct","kid":"active","alg":"HS256",` +
		`"k":"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}]}`
	require.NoError(t, os.WriteFile(jwksPath, []byte(jwks), 0o600))

	master, err := NewMasterAEAD(cafc.Config{MasterKeySource: "jwk://" + jwksPath + "?kid=active"})
	require.NoError(t, err)

	sealed, err := master.Seal([]byte("plaintext"), nil)
	require.NoError(t, err)
	opened, err := master.Open(sealed, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("plaintext"), opened)
}

func TestNewMasterAEAD_JWKMissingKid(t *testing.T) {
	t.Parallel()

	_, err := NewMasterAEAD(cafc.Config{MasterKeySource: "jwk:///tmp/whatever.jwks"})
	require.Error(t, err)
}

func TestNewMasterAEAD_VaultMissingKeyName(t *testing.T) {
	t.Parallel()

	_, err := NewMasterAEAD(cafc.Config{MasterKeySource: "vault://vault.internal:8200/transit"})
	require.Error(t, err)
}

func TestSplitVaultPath(t *testing.T) {
	t.Parallel()

	mountPath, keyName := splitVaultPath("/transit/cafc-master")
	require.Equal(t, "transit", mountPath)
	require.Equal(t, "cafc-master", keyName)

	mountPath, keyName = splitVaultPath("/cafc-master")
	require.Equal(t, "", mountPath)
	require.Equal(t, "cafc-master", keyName)
}

func TestNewMasterAEAD_UnknownScheme(t *testing.T) {
	t.Parallel()

	_, err := NewMasterAEAD(cafc.Config{MasterKeySource: "bogus://whatever"})
	require.Error(t, err)
}
