// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package container implements the Chunked Authenticated File Container
// (CAFC) on-disk codec and the Writer/Reader byte-channels built on it.
//
// A container is a single regular file: a fixed 32-byte header (magic,
// version, chunk size, original plaintext size, random padding) followed by
// zero or more length-prefixed, AEAD-sealed chunk records. Writer appends
// sealed chunks as plaintext streams in and back-patches the header size on
// close; Reader parses the header once and services random-access reads by
// locating, caching, and opening one chunk at a time.
package container
