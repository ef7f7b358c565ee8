// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package cafc

import (
	"sync/atomic"

	"github.com/sealedstore/cafc/log"
)

type atomicBool int32

func (b *atomicBool) isSet() bool { return atomic.LoadInt32((*int32)(b)) != 0 }
func (b *atomicBool) setTrue()    { atomic.StoreInt32((*int32)(b), 1) }
func (b *atomicBool) setFalse()   { atomic.StoreInt32((*int32)(b), 0) }

var strictMode atomicBool

// InStrictMode returns the strict-mode flag status.
//
// In strict mode, container.Reader promotes the last chunk's benign
// plaintext-length mismatch from a logged event to a FormatError.
func InStrictMode() bool {
	return strictMode.isSet()
}

// SetStrictMode enables strict mode and returns a function to revert the
// configuration.
//
// Calling this method multiple times once the flag is enabled produces no
// effect.
func SetStrictMode() (revert func()) {
	if strictMode.isSet() {
		return func() {}
	}

	strictMode.setTrue()
	log.Level(log.DebugLevel).Message("cafc: strict mode enabled")

	return func() {
		strictMode.setFalse()
		log.Level(log.DebugLevel).Message("cafc: strict mode disabled")
	}
}
