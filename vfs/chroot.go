// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Chroot returns a filesystem confined to root, assuming the host OS
// filesystem underneath.
func Chroot(root string) (FileSystem, error) {
	return ChrootFS(OS(), root)
}

// ChrootFS confines the given filesystem to path. Every name passed to the
// returned FileSystem is interpreted relative to path, and any name that
// resolves outside it fails with a *ConstraintError.
func ChrootFS(root FileSystem, path string) (FileSystem, error) {
	if root == nil {
		return nil, fmt.Errorf("root filesystem must not be nil")
	}

	jail, f, err := root.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("unable to confine to %q: %w", path, err)
	}
	if f != "" {
		return nil, fmt.Errorf("unable to confine to %q: not a directory", path)
	}

	return chrootFS{unsafeFS: root, root: jail}, nil
}

type chrootFS struct {
	root     ConfirmedDir
	unsafeFS FileSystem
}

// Stat delegates to the unconfined filesystem after checking that name stays
// inside the root.
func (vfs chrootFS) Stat(name string) (fs.FileInfo, error) {
	name = vfs.root.Join(name)
	if err := isSecurePath(vfs.unsafeFS, vfs.root, name); err != nil {
		return nil, &ConstraintError{Op: "stat", Path: name, Err: err}
	}
	return vfs.unsafeFS.Stat(name)
}

// Exists reports whether name exists inside the root. A name outside the
// root reports false rather than erroring, so existence probes cannot be
// used to map the surrounding filesystem.
func (vfs chrootFS) Exists(name string) bool {
	name = vfs.root.Join(name)
	if err := isSecurePath(vfs.unsafeFS, vfs.root, name); err != nil {
		return false
	}
	return vfs.unsafeFS.Exists(name)
}

// IsDir reports whether name is a directory inside the root; names outside
// it report false.
func (vfs chrootFS) IsDir(name string) bool {
	name = vfs.root.Join(name)
	if err := isSecurePath(vfs.unsafeFS, vfs.root, name); err != nil {
		return false
	}
	return vfs.unsafeFS.IsDir(name)
}

// MkdirAll creates name and any missing parents after checking that the
// deepest requested directory stays inside the root.
func (vfs chrootFS) MkdirAll(name string, perm fs.FileMode) error {
	name = vfs.root.Join(name)
	if err := isSecurePath(vfs.unsafeFS, vfs.root, name); err != nil {
		return &ConstraintError{Op: "mkdirAll", Path: name, Err: err}
	}
	return vfs.unsafeFS.MkdirAll(name, perm)
}

// Resolve delegates to the unconfined filesystem and re-expresses the result
// relative to the root, failing when the delinkified target escapes it.
func (vfs chrootFS) Resolve(name string) (ConfirmedDir, string, error) {
	name = vfs.root.Join(name)

	d, f, err := vfs.unsafeFS.Resolve(name)
	if err != nil {
		return "", "", err
	}
	if !d.HasPrefix(vfs.root) {
		return "", "", &ConstraintError{Op: "resolve", Path: name, Err: rootConstraintErr(name, vfs.root.String())}
	}

	rel := filepath.Clean(strings.TrimPrefix(d.String(), vfs.root.String()))
	if rel == "." {
		rel = string(filepath.Separator)
	}

	return ConfirmedDir(rel), f, nil
}

// isSecurePath confirms that path stays in or below root. When path exists
// its symlinks are followed first, so a link inside the root pointing
// outside it is caught; when it does not exist yet the literal lexical path
// is judged instead, which still rejects "../" escapes for files about to be
// created.
func isSecurePath(vfs FileSystem, root ConfirmedDir, path string) error {
	abs, err := filepath.Abs(filepath.FromSlash(path))
	if err != nil {
		return fmt.Errorf("unable to make %q absolute: %w", path, err)
	}

	d := ConfirmedDir(abs)
	if vfs.Exists(abs) {
		evaluated, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return fmt.Errorf("unable to resolve links in %q: %w", path, err)
		}
		if !vfs.IsDir(evaluated) {
			evaluated = filepath.Dir(evaluated)
		}
		d = ConfirmedDir(evaluated)
	}
	if !d.HasPrefix(root) {
		return rootConstraintErr(path, root.String())
	}

	return nil
}

func rootConstraintErr(path, root string) error {
	return fmt.Errorf("path %q is not in or below %q", path, root)
}
