// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package cafc

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
)

// ExtensionMode selects how the filesystem accessor maps a logical filename
// to the physical container file on disk.
type ExtensionMode string

const (
	// ExtensionTransparent keeps the physical filename identical to the
	// logical one the host protocol sees.
	ExtensionTransparent ExtensionMode = "transparent"
	// ExtensionSuffixed stores the container under the logical filename
	// plus ".enc".
	ExtensionSuffixed ExtensionMode = "suffixed"
)

const defaultChunkSize = 65536

// Config describes the host-supplied configuration for a container
// deployment: the chunk granularity, how physical filenames are derived, and
// where the keyset and backing files live.
type Config struct {
	// ChunkSize is the plaintext chunk granularity used by new containers.
	// Must be > 0. Recommended range 16 KiB - 1 MiB.
	ChunkSize uint32 `mapstructure:"chunk_size"`
	// ExtensionMode selects the logical-to-physical filename mapping.
	ExtensionMode ExtensionMode `mapstructure:"extension_mode"`
	// KeysetPath is the path to the persisted keyset envelope.
	KeysetPath string `mapstructure:"keyset_path"`
	// StorageRoot is the directory new containers are rooted under. Not
	// interpreted by the core; purely a host convenience.
	StorageRoot string `mapstructure:"storage_root"`
	// MasterKeySource selects and configures the keyset.MasterAEAD backend
	// that wraps and unwraps the keyset envelope, as a scheme-prefixed URI:
	//
	//	local://<ENV_VAR>                                 - raw key, base64 in an env var (default)
	//	file:///path/to/master.jwk                        - keyset/masterjose, JWE-file master key
	//	vault://host:port/mountPath/keyName?token_env=VAR - keyset/mastervault, Transit-backed
	//	jwt://<ENV_VAR>                                   - keyset/masterjwt, HMAC shared secret
	//	jwk:///path/to/keys.jwks?kid=<signKeyID>          - keyset/masterjwk, rotating JWK set
	//
	// Empty defaults to local://CAFC_MASTER_KEY. See keyset.NewMasterAEAD.
	MasterKeySource string `mapstructure:"master_key_source"`
}

// DefaultConfig returns a Config populated with this package's defaults:
// a 64 KiB chunk size and transparent filename mapping.
func DefaultConfig() Config {
	return Config{
		ChunkSize:     defaultChunkSize,
		ExtensionMode: ExtensionTransparent,
	}
}

// Validate ensures the configuration is usable by a Writer/Reader pair.
func (c Config) Validate() error {
	if c.ChunkSize == 0 {
		return fmt.Errorf("chunk_size must be greater than zero: %w", ErrArgument)
	}

	switch c.ExtensionMode {
	case ExtensionTransparent, ExtensionSuffixed, "":
	default:
		return fmt.Errorf("unknown extension_mode %q: %w", c.ExtensionMode, ErrArgument)
	}

	return nil
}

// LoadConfig reads a YAML configuration file and decodes it into a Config,
// applying defaults for unset fields.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read configuration file %q: %w", path, err)
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return Config{}, fmt.Errorf("unable to parse configuration file %q: %w", path, err)
	}

	cfg := DefaultConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, fmt.Errorf("unable to build configuration decoder: %w", err)
	}
	if err := dec.Decode(generic); err != nil {
		return Config{}, fmt.Errorf("unable to decode configuration file %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
