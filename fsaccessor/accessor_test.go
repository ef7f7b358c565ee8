// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package fsaccessor

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sealedstore/cafc/aead"
	"github.com/sealedstore/cafc/container"
)

func testSealer(t *testing.T) aead.AEAD {
	t.Helper()
	a, err := aead.New(bytes.Repeat([]byte{0x7a}, aead.KeySize))
	require.NoError(t, err)
	return a
}

func TestAccessor_TransparentRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a, err := New(root, Transparent, 16, testSealer(t))
	require.NoError(t, err)

	res, err := a.Open("report.csv", ModeWrite)
	require.NoError(t, err)
	require.NotNil(t, res.Writer)

	_, err = res.Writer.Write([]byte("hello, world"))
	require.NoError(t, err)
	require.NoError(t, res.Writer.Close())

	require.FileExists(t, filepath.Join(root, "report.csv"))

	res, err = a.Open("report.csv", ModeRead)
	require.NoError(t, err)
	require.NotNil(t, res.Reader)

	got, err := io.ReadAll(readerAdapter{res.Reader})
	require.NoError(t, err)
	require.Equal(t, "hello, world", string(got))
	require.NoError(t, res.Reader.Close())
}

func TestAccessor_SuffixedMapsPhysicalName(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a, err := New(root, Suffixed, 16, testSealer(t))
	require.NoError(t, err)

	res, err := a.Open("secret.txt", ModeWrite)
	require.NoError(t, err)
	_, err = res.Writer.Write([]byte("shh"))
	require.NoError(t, err)
	require.NoError(t, res.Writer.Close())

	require.NoFileExists(t, filepath.Join(root, "secret.txt"))
	require.FileExists(t, filepath.Join(root, "secret.txt.enc"))
}

func TestAccessor_ReadWriteModeResolvesByExistence(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a, err := New(root, Transparent, 16, testSealer(t))
	require.NoError(t, err)

	res, err := a.Open("new.bin", ModeReadWrite)
	require.NoError(t, err)
	require.NotNil(t, res.Writer)
	require.Nil(t, res.Reader)
	require.NoError(t, res.Writer.Close())

	res, err = a.Open("new.bin", ModeReadWrite)
	require.NoError(t, err)
	require.NotNil(t, res.Reader)
	require.Nil(t, res.Writer)
	require.NoError(t, res.Reader.Close())
}

func TestAccessor_RejectsEscapingName(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a, err := New(root, Transparent, 16, testSealer(t))
	require.NoError(t, err)

	_, err = a.Open(filepath.Join("..", "escaped.bin"), ModeWrite)
	require.Error(t, err)
}

func TestNew_RejectsMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"), Transparent, 16, testSealer(t))
	require.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := New(root, Transparent, 0, testSealer(t))
	require.Error(t, err)

	_, err = New(root, Transparent, 16, nil)
	require.Error(t, err)
}

// readerAdapter adapts Reader's EOF-sentinel Read to io.Reader's io.EOF
// convention for use with io.ReadAll in tests.
type readerAdapter struct {
	r *container.Reader
}

func (a readerAdapter) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if err == container.EOF {
		return n, io.EOF
	}
	return n, err
}
