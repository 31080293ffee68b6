/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package kwmdatachannel provides a peer to peer WebRTC data channel client
// which negotiates through AppRTC compatible signaling rooms.
package kwmdatachannel // import "stash.kopano.io/kwm/kwmdatachannel"
