// SPDX-License-Identifier: MIT

package daemon

import "errors"

// Wiring errors returned before anything is started.
var (
	ErrMissingLogger     = errors.New("daemon: logger is required")
	ErrMissingAPIHandler = errors.New("daemon: API handler is required")
	ErrMissingManager    = errors.New("daemon: manager is required")
)

// Lifecycle errors.
var (
	ErrNilContext        = errors.New("daemon: nil context")
	ErrManagerStarted    = errors.New("daemon: manager already started")
	ErrManagerNotStarted = errors.New("daemon: manager not started")
)
