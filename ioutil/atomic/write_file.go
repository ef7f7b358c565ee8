// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package atomic replaces file contents without ever exposing a partially
// written file: readers observe either the previous content or the new one.
package atomic

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sealedstore/cafc/log"
)

// WriteFile streams r into a temporary file in the target's directory, syncs
// it, then renames it over filename. On any failure the temporary file is
// removed and the target is left untouched.
func WriteFile(filename string, r io.Reader) (err error) {
	dir, file := filepath.Split(filename)
	dir = filepath.Clean(dir)

	f, err := os.CreateTemp(dir, file)
	if err != nil {
		return fmt.Errorf("unable to create the temporary file: %w", err)
	}
	defer func() {
		// Left behind only when the rename never happened.
		if err := os.Remove(f.Name()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Error(err).Messagef("unable to remove temporary file %q", f.Name())
			}
		}
	}()
	defer func(closer io.Closer) {
		if err := closer.Close(); err != nil {
			if !errors.Is(err, fs.ErrClosed) {
				log.Error(err).Message("unable to close the temporary file handle")
			}
		}
	}(f)

	bio := bufio.NewWriter(f)
	if _, err := io.Copy(bio, r); err != nil {
		return fmt.Errorf("unable to copy content to the temporary file: %w", err)
	}
	if err := bio.Flush(); err != nil {
		return fmt.Errorf("unable to flush the buffered writer: %w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("unable to sync the temporary file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("unable to close the temporary file: %w", err)
	}

	// The temp directory may itself sit behind a symlink (macOS), so resolve
	// before syncing the directory entry.
	tmpFilename, err := filepath.EvalSymlinks(f.Name())
	if err != nil {
		return fmt.Errorf("unable to resolve %q: %w", f.Name(), err)
	}
	if err := syncDir(filepath.Dir(tmpFilename)); err != nil {
		return fmt.Errorf("unable to sync directory %q: %w", dir, err)
	}

	tmpFi, err := os.Stat(tmpFilename)
	if err != nil {
		return fmt.Errorf("unable to stat temporary file %q: %w", f.Name(), err)
	}

	fi, err := os.Stat(filename)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First write; nothing to preserve.
	case err != nil:
		return fmt.Errorf("unable to stat target %q: %w", filename, err)
	default:
		filename, err = filepath.EvalSymlinks(filename)
		if err != nil {
			return fmt.Errorf("unable to resolve %q: %w", filename, err)
		}

		// Replacing an existing file keeps its mode.
		if tmpFi.Mode() != fi.Mode() {
			if err := os.Chmod(tmpFilename, fi.Mode()); err != nil {
				return fmt.Errorf("unable to apply file mode to temporary file %q: %w", f.Name(), err)
			}
		}
	}

	if err := os.Rename(tmpFilename, filename); err != nil {
		return fmt.Errorf("unable to replace target file %q: %w", filename, err)
	}

	return nil
}

// syncDir fsyncs a directory handle so the rename of an entry inside it is
// durable.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("unable to open directory %q: %w", dir, err)
	}

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("unable to stat %q: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%q is not a directory", dir)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("unable to sync directory %q: %w", dir, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("unable to close directory handle for %q: %w", dir, err)
	}

	return nil
}
