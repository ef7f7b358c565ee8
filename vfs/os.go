// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// OS returns a FileSystem reading the host filesystem directly, with no
// confinement. Wrap it with ChrootFS before trusting untrusted names.
func OS() FileSystem {
	return osFS{}
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(filepath.FromSlash(name))
}

func (osFS) Exists(name string) bool {
	_, err := os.Stat(filepath.FromSlash(name))
	return err == nil
}

// IsDir uses Lstat so that a symlink to a directory does not itself count as
// one; Resolve is the place where links are followed deliberately.
func (osFS) IsDir(name string) bool {
	info, err := os.Lstat(filepath.FromSlash(name))
	if err != nil {
		return false
	}
	return info.IsDir()
}

func (osFS) MkdirAll(name string, perm fs.FileMode) error {
	return os.MkdirAll(filepath.FromSlash(name), perm)
}

// Resolve makes name absolute, follows any symlinks, and splits the result
// into its containing directory and file part. The file part is empty when
// name is itself a directory.
func (vfs osFS) Resolve(name string) (ConfirmedDir, string, error) {
	abs, err := filepath.Abs(filepath.FromSlash(name))
	if err != nil {
		return "", "", fmt.Errorf("unable to make %q absolute: %w", name, err)
	}

	deLinked, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", "", fmt.Errorf("unable to resolve links in %q: %w", abs, err)
	}

	if vfs.IsDir(deLinked) {
		return ConfirmedDir(deLinked), "", nil
	}

	d := filepath.Dir(deLinked)
	if !vfs.IsDir(d) {
		return "", "", fmt.Errorf("parent of %q is not a directory", deLinked)
	}

	return ConfirmedDir(d), filepath.Base(deLinked), nil
}
