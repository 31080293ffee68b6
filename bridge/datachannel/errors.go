/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package datachannel

import (
	"errors"
)

// Errors returned by Plugin operations.
var (
	ErrNotConnected     = errors.New("not connected to room")
	ErrAlreadyConnected = errors.New("already connected to room")
	ErrInvalidRoom      = errors.New("room url and room id are required")
)
