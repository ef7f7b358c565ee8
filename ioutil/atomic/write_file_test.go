// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package atomic

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("read refused")
}

func readBack(t *testing.T, path string) string {
	t.Helper()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}

func TestWriteFile_CreatesTarget(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "keyset.sealed")

	require.NoError(t, WriteFile(target, strings.NewReader("sealed-v1")))
	require.Equal(t, "sealed-v1", readBack(t, target))
}

func TestWriteFile_ReplacesTarget(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "keyset.sealed")

	require.NoError(t, WriteFile(target, strings.NewReader("sealed-v1")))
	require.NoError(t, WriteFile(target, strings.NewReader("sealed-v2")))
	require.Equal(t, "sealed-v2", readBack(t, target))
}

func TestWriteFile_PreservesMode(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "keyset.sealed")

	require.NoError(t, WriteFile(target, strings.NewReader("sealed-v1")))
	require.NoError(t, os.Chmod(target, 0o640))

	require.NoError(t, WriteFile(target, strings.NewReader("sealed-v2")))

	fi, err := os.Stat(target)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
}

func TestWriteFile_FollowsSymlinkedTarget(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}

	dir := t.TempDir()
	target := filepath.Join(dir, "keyset.sealed")
	link := filepath.Join(dir, "alias")

	require.NoError(t, WriteFile(target, strings.NewReader("sealed-v1")))
	require.NoError(t, os.Symlink(target, link))

	require.NoError(t, WriteFile(link, strings.NewReader("sealed-v2")))
	require.Equal(t, "sealed-v2", readBack(t, target))
}

func TestWriteFile_ReaderFailureLeavesNoFile(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "keyset.sealed")

	require.Error(t, WriteFile(target, brokenReader{}))
	require.NoFileExists(t, target)
}

func TestWriteFile_ReaderFailureKeepsPrevious(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "keyset.sealed")

	require.NoError(t, WriteFile(target, strings.NewReader("sealed-v1")))
	require.Error(t, WriteFile(target, brokenReader{}))
	require.Equal(t, "sealed-v1", readBack(t, target))
}

func TestWriteFile_NoTemporaryLeftBehind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "keyset.sealed")

	require.NoError(t, WriteFile(target, strings.NewReader("sealed-v1")))
	require.Error(t, WriteFile(target, brokenReader{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "keyset.sealed", entries[0].Name())
}
