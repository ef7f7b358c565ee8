// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ConfirmedDir is a clean, absolute, delinkified path confirmed to point to
// an existing directory.
type ConfirmedDir string

// ConfirmDir resolves path on root and returns it as a ConfirmedDir. It
// fails if path does not exist, or exists but is not a directory.
func ConfirmDir(root FileSystem, path string) (ConfirmedDir, error) {
	if root == nil {
		return "", errors.New("root filesystem must not be nil")
	}
	if path == "" {
		return "", errors.New("directory path must not be empty")
	}

	d, f, err := root.Resolve(path)
	if err != nil {
		return "", fmt.Errorf("not a valid directory: %w", err)
	}
	if f != "" {
		return "", fmt.Errorf("file %q is not a directory", f)
	}

	return d, nil
}

// HasPrefix reports whether d lives in or below path. A bare separator
// prefixes every directory.
func (d ConfirmedDir) HasPrefix(path ConfirmedDir) bool {
	if path.String() == string(filepath.Separator) || path == d {
		return true
	}
	return strings.HasPrefix(string(d), string(path)+string(filepath.Separator))
}

// Join appends path to the confirmed directory.
func (d ConfirmedDir) Join(path string) string {
	return filepath.Join(string(d), path)
}

func (d ConfirmedDir) String() string {
	return string(d)
}
