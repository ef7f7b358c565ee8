// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package fsaccessor implements the filesystem accessor contract the host
// file-transfer layer expects: given a logical filename and an
// open mode, it resolves the physical container path under a confined
// storage root and returns a sealed byte-channel bound to a keyset AEAD.
//
// Open deliberately returns two distinct concrete channel types rather than
// one interface backed by either a read-only or write-only implementation:
// the host branches on open mode, not on runtime-refused operations.
package fsaccessor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sealedstore/cafc"
	"github.com/sealedstore/cafc/aead"
	"github.com/sealedstore/cafc/container"
	"github.com/sealedstore/cafc/vfs"
)

// ExtensionMode selects how a logical filename maps to its physical
// container path on the hosting filesystem.
type ExtensionMode int

const (
	// Transparent maps the logical name directly onto the physical path.
	Transparent ExtensionMode = iota
	// Suffixed appends suffixExtension to the logical name.
	Suffixed
)

// suffixExtension is the physical-name suffix used in Suffixed mode.
const suffixExtension = ".enc"

// Mode selects which direction Open resolves to.
type Mode int

const (
	// ModeRead opens an existing container for random-access reading.
	ModeRead Mode = iota
	// ModeWrite creates (or truncates) a container for sealed writing.
	ModeWrite
	// ModeReadWrite resolves to ModeRead if the physical file exists,
	// otherwise ModeWrite, mirroring the host transfer protocol's own
	// open semantics.
	ModeReadWrite
)

// Result carries exactly one populated channel: Reader for the read branch,
// Writer for the write branch. The caller's mode (after ModeReadWrite
// resolution) determines which field is set.
type Result struct {
	Reader *container.Reader
	Writer *container.Writer
}

// Accessor resolves logical filenames to sealed container channels, confined
// to a storage root by a Chroot-jailed vfs.FileSystem, sealing every
// container it opens under the same data-encryption AEAD and plaintext
// chunk size.
type Accessor struct {
	root      vfs.ConfirmedDir
	jail      vfs.FileSystem
	extMode   ExtensionMode
	chunkSize uint32
	sealer    aead.AEAD
}

// New confines an Accessor to storageRoot, which must already exist, and
// binds every container it opens to sealer and chunkSize.
func New(storageRoot string, extMode ExtensionMode, chunkSize uint32, sealer aead.AEAD) (*Accessor, error) {
	if chunkSize == 0 {
		return nil, &cafc.ArgumentError{Reason: "chunk_size must be greater than zero", Err: cafc.ErrInvalidArgument}
	}
	if sealer == nil {
		return nil, &cafc.ArgumentError{Reason: "sealer must not be nil", Err: cafc.ErrInvalidArgument}
	}

	root, err := vfs.ConfirmDir(vfs.OS(), storageRoot)
	if err != nil {
		return nil, fmt.Errorf("fsaccessor: invalid storage root %q: %w: %w", storageRoot, err, cafc.ErrStorage)
	}

	jail, err := vfs.ChrootFS(vfs.OS(), storageRoot)
	if err != nil {
		return nil, fmt.Errorf("fsaccessor: unable to confine storage root %q: %w: %w", storageRoot, err, cafc.ErrStorage)
	}

	return &Accessor{root: root, jail: jail, extMode: extMode, chunkSize: chunkSize, sealer: sealer}, nil
}

// Open resolves name to its physical path and returns a Reader or Writer
// channel per mode.
func (a *Accessor) Open(name string, mode Mode) (Result, error) {
	physicalName := a.physicalName(name)

	physical, err := a.physicalPath(name, physicalName)
	if err != nil {
		return Result{}, err
	}

	resolved := mode
	if mode == ModeReadWrite {
		if a.jail.Exists(physicalName) {
			resolved = ModeRead
		} else {
			resolved = ModeWrite
		}
	}

	switch resolved {
	case ModeRead:
		return a.openRead(physical, name)
	case ModeWrite:
		return a.openWrite(physical, physicalName, name)
	default:
		return Result{}, fmt.Errorf("fsaccessor: unknown open mode %d: %w", mode, cafc.ErrArgument)
	}
}

func (a *Accessor) openRead(physical, name string) (Result, error) {
	handle, err := os.Open(physical)
	if err != nil {
		return Result{}, fmt.Errorf("fsaccessor: unable to open %q for read: %w: %w", name, err, cafc.ErrStorage)
	}

	r, err := container.NewReader(handle, a.sealer, name)
	if err != nil {
		handle.Close()
		return Result{}, err
	}

	return Result{Reader: r}, nil
}

func (a *Accessor) openWrite(physical, physicalName, name string) (Result, error) {
	if err := a.jail.MkdirAll(filepath.Dir(physicalName), 0o700); err != nil {
		return Result{}, fmt.Errorf("fsaccessor: unable to create parent directory for %q: %w: %w", name, err, cafc.ErrStorage)
	}

	handle, err := os.OpenFile(physical, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return Result{}, fmt.Errorf("fsaccessor: unable to open %q for write: %w: %w", name, err, cafc.ErrStorage)
	}

	w, err := container.NewWriter(handle, a.sealer, name, a.chunkSize)
	if err != nil {
		handle.Close()
		return Result{}, err
	}

	return Result{Writer: w}, nil
}

// physicalName maps a logical name to its physical name per the configured
// extension mode.
func (a *Accessor) physicalName(name string) string {
	if a.extMode == Suffixed {
		return name + suffixExtension
	}
	return name
}

// physicalPath validates physicalName against the Chroot-jailed filesystem
// and returns its absolute on-disk path. Confinement is delegated entirely
// to the jail: Stat runs the jail's root-containment check (isSecurePath)
// regardless of whether physicalName already exists, so a name that would
// resolve outside storageRoot is reported by the jail as a
// *vfs.ConstraintError, and returned here as a *cafc.ArgumentError, even for
// a brand-new container that has never been written. Directory enumeration
// under the root is the host's concern; this package only ever confines a
// single resolved path.
func (a *Accessor) physicalPath(name, physicalName string) (string, error) {
	if name == "" {
		return "", &cafc.ArgumentError{Reason: "name must not be empty", Err: cafc.ErrInvalidArgument}
	}

	if _, err := a.jail.Stat(physicalName); err != nil {
		var constraintErr *vfs.ConstraintError
		if errors.As(err, &constraintErr) {
			return "", &cafc.ArgumentError{
				Reason: fmt.Sprintf("%q escapes storage root", name),
				Err:    cafc.ErrInvalidArgument,
			}
		}
		// Any other Stat failure (not found, not a directory ancestor yet,
		// ...) just means the container doesn't exist yet; openWrite
		// creates it.
	}

	return a.root.Join(physicalName), nil
}
