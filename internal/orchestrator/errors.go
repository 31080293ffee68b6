/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package orchestrator

import (
	"errors"
)

var (
	// ErrChannelUnavailable is returned when sending without an open data
	// channel.
	ErrChannelUnavailable = errors.New("data channel unavailable")

	// ErrClosed is returned for operations on a closed Orchestrator.
	ErrClosed = errors.New("orchestrator closed")
)
