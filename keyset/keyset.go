// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keyset implements the CAFC Keyset Vault: it loads or creates the
// data-encryption key material that seals container chunks, itself always
// stored wrapped under an embedder-supplied master key.
package keyset

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/sealedstore/cafc"
	"github.com/sealedstore/cafc/aead"
	ioatomic "github.com/sealedstore/cafc/ioutil/atomic"
)

// envelopeVersion is the only keyset envelope version this package
// understands. An unrecognized version is an explicit FormatError: the
// keyset source this package is grounded on rejected version drift with a
// generic, ambiguous error, which this implementation deliberately avoids.
const envelopeVersion = 1

// MasterAEAD is the opaque, embedder-supplied contract the Vault uses to
// wrap and unwrap the keyset envelope. LoadOrCreate treats it as opaque;
// NewMasterAEAD builds one from a Config, and the mastervault, masterjose,
// masterjwt, and masterjwk subpackages hold the concrete backends.
type MasterAEAD interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) ([]byte, error)
}

// envelope is the CBOR-serialized structure sealed under the master key.
type envelope struct {
	Version uint8     `cbor:"1,keyasint"`
	ID      uuid.UUID `cbor:"2,keyasint"`
	Key     []byte    `cbor:"3,keyasint"`
}

// Handle exposes the unwrapped data-encryption key as an AEAD, safe for
// concurrent seal/open calls. It is immutable after construction.
type Handle struct {
	id     uuid.UUID
	key    *memguard.Enclave
	sealer aead.AEAD
}

// ID returns the keyset's unique identifier.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// AEAD returns the data-encryption AEAD this handle wraps.
func (h *Handle) AEAD() aead.AEAD {
	return h.sealer
}

// LoadOrCreate loads the keyset persisted at path, unwrapping it under
// master. If path does not exist, a fresh 256-bit key is generated, sealed
// under master, and atomically persisted to path before being returned.
func LoadOrCreate(path string, master MasterAEAD) (*Handle, error) {
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		return unwrap(raw, master)
	case os.IsNotExist(err):
		return create(path, master)
	default:
		return nil, fmt.Errorf("unable to read keyset %q: %w: %w", path, err, cafc.ErrStorage)
	}
}

func create(path string, master MasterAEAD) (*Handle, error) {
	enclave := memguard.NewEnclaveRandom(aead.KeySize)

	lb, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("unable to open generated key enclave: %w", err)
	}
	key := make([]byte, aead.KeySize)
	copy(key, lb.Bytes())
	lb.Destroy()

	id, err := uuid.NewRandom()
	if err != nil {
		memguard.WipeBytes(key)
		return nil, fmt.Errorf("unable to generate keyset identifier: %w", err)
	}

	env := envelope{Version: envelopeVersion, ID: id, Key: key}
	encoded, err := cbor.Marshal(env)
	if err != nil {
		memguard.WipeBytes(key)
		return nil, fmt.Errorf("unable to encode keyset envelope: %w", err)
	}

	sealed, err := master.Seal(encoded, nil)
	memguard.WipeBytes(encoded)
	if err != nil {
		memguard.WipeBytes(key)
		return nil, &cafc.MasterKeyError{Reason: "unable to seal keyset under master key", Err: err}
	}

	if err := ioatomic.WriteFile(path, bytes.NewReader(sealed)); err != nil {
		memguard.WipeBytes(key)
		return nil, fmt.Errorf("unable to persist keyset %q: %w: %w", path, err, cafc.ErrStorage)
	}

	sealer, err := aead.New(key)
	if err != nil {
		memguard.WipeBytes(key)
		return nil, fmt.Errorf("unable to initialize keyset AEAD: %w", err)
	}
	memguard.WipeBytes(key)

	return &Handle{id: id, key: enclave, sealer: sealer}, nil
}

func unwrap(sealed []byte, master MasterAEAD) (*Handle, error) {
	encoded, err := master.Open(sealed, nil)
	if err != nil {
		return nil, &cafc.MasterKeyError{
			Reason: "unable to unwrap keyset",
			Err:    errors.Join(err, cafc.ErrMasterKeyRejected),
		}
	}
	defer memguard.WipeBytes(encoded)

	var env envelope
	if err := cbor.Unmarshal(encoded, &env); err != nil {
		return nil, &cafc.FormatError{Reason: "unable to decode keyset envelope", Err: err}
	}

	if env.Version != envelopeVersion {
		return nil, &cafc.FormatError{
			Reason: fmt.Sprintf("unsupported keyset envelope version %d", env.Version),
			Err:    cafc.ErrUnsupportedVersion,
		}
	}
	if len(env.Key) != aead.KeySize {
		return nil, &cafc.FormatError{Reason: fmt.Sprintf("keyset key has invalid length %d", len(env.Key))}
	}

	key := make([]byte, len(env.Key))
	copy(key, env.Key)
	memguard.WipeBytes(env.Key)

	sealer, err := aead.New(key)
	if err != nil {
		memguard.WipeBytes(key)
		return nil, fmt.Errorf("unable to initialize keyset AEAD: %w", err)
	}

	enclaveKey := memguard.NewEnclave(key)
	memguard.WipeBytes(key)

	return &Handle{id: env.ID, key: enclaveKey, sealer: sealer}, nil
}
