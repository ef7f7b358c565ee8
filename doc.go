// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cafc implements the Chunked Authenticated File Container (CAFC):
// a data-at-rest encryption layer for byte-channel hosts such as a
// file-transfer service.
//
// A container is a single regular file on the hosting filesystem: a fixed
// 32-byte header followed by zero or more length-prefixed, AEAD-sealed
// chunks. Application data is written through container.Writer in the
// clear and stored sealed; it is read back on demand, with random access,
// through container.Reader. The data-encryption key itself is never stored
// in the clear: it lives in a keyset sealed under a master key supplied by
// the embedder (see package keyset).
package cafc
