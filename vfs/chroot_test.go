// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func confined(t *testing.T) (string, FileSystem) {
	t.Helper()

	root := t.TempDir()
	jail, err := Chroot(root)
	require.NoError(t, err)

	return root, jail
}

func TestChrootFS_StatInsideRoot(t *testing.T) {
	t.Parallel()

	root, jail := confined(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.enc"), []byte("x"), 0o600))

	fi, err := jail.Stat("data.enc")
	require.NoError(t, err)
	require.Equal(t, "data.enc", fi.Name())
}

func TestChrootFS_StatRejectsEscape(t *testing.T) {
	t.Parallel()

	_, jail := confined(t)

	_, err := jail.Stat(filepath.Join("..", "outside.enc"))
	require.Error(t, err)

	var constraintErr *ConstraintError
	require.ErrorAs(t, err, &constraintErr)
	require.Equal(t, "stat", constraintErr.Op)
}

func TestChrootFS_StatRejectsSymlinkEscape(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "target"), []byte("x"), 0o600))

	root, jail := confined(t)
	require.NoError(t, os.Symlink(filepath.Join(outside, "target"), filepath.Join(root, "sneaky")))

	_, err := jail.Stat("sneaky")
	var constraintErr *ConstraintError
	require.ErrorAs(t, err, &constraintErr)
}

func TestChrootFS_ExistsIsFalseOutsideRoot(t *testing.T) {
	t.Parallel()

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "real.enc"), []byte("x"), 0o600))

	root, jail := confined(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "inside.enc"), []byte("x"), 0o600))

	require.True(t, jail.Exists("inside.enc"))
	require.False(t, jail.Exists("missing.enc"))

	rel, err := filepath.Rel(root, filepath.Join(outside, "real.enc"))
	require.NoError(t, err)
	require.False(t, jail.Exists(rel))
}

func TestChrootFS_MkdirAll(t *testing.T) {
	t.Parallel()

	root, jail := confined(t)

	require.NoError(t, jail.MkdirAll(filepath.Join("a", "b"), 0o700))
	require.DirExists(t, filepath.Join(root, "a", "b"))

	err := jail.MkdirAll(filepath.Join("..", "evil"), 0o700)
	var constraintErr *ConstraintError
	require.ErrorAs(t, err, &constraintErr)
	require.Equal(t, "mkdirAll", constraintErr.Op)
}

func TestChrootFS_ResolveRelativeToRoot(t *testing.T) {
	t.Parallel()

	root, jail := confined(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "f.enc"), []byte("x"), 0o600))

	d, f, err := jail.Resolve(filepath.Join("sub", "f.enc"))
	require.NoError(t, err)
	require.Equal(t, ConfirmedDir(string(filepath.Separator)+"sub"), d)
	require.Equal(t, "f.enc", f)

	d, f, err = jail.Resolve(".")
	require.NoError(t, err)
	require.Equal(t, ConfirmedDir(string(filepath.Separator)), d)
	require.Empty(t, f)
}

func TestChrootFS_RejectsFileAsRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	file := filepath.Join(root, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := Chroot(file)
	require.Error(t, err)
}

func TestChrootFS_NilRoot(t *testing.T) {
	t.Parallel()

	_, err := ChrootFS(nil, "/tmp")
	require.Error(t, err)
}
