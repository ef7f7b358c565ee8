// SPDX-FileCopyrightText: 2023-present Datadog, Inc.
// SPDX-License-Identifier: Apache-2.0

package log

var factory Factory = &noop{}

// SetFactory installs the embedder's logger factory in place of the silent
// default. Call it once, before any container activity.
func SetFactory(f Factory) {
	factory = f
}

// New returns a fresh logger from the installed factory.
func New() Logger {
	return factory.New()
}

// Level returns a fresh logger pre-set to the given level.
func Level(lvl LoggerLevel) Logger {
	return factory.New().Level(lvl)
}

// Error returns a fresh logger carrying err.
func Error(err error) Logger {
	return factory.New().Error(err)
}
