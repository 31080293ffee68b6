/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package datachannel

import (
	"time"
)

// PluginResource is the API representation of a Plugin.
type PluginResource struct {
	ID        string    `json:"id"`
	When      time.Time `json:"when"`
	RoomURL   string    `json:"roomUrl,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	Connected bool      `json:"connected"`
	Initiator bool      `json:"initiator"`
}

// ConnectRequest is the payload of connect requests.
type ConnectRequest struct {
	RoomURL string `json:"roomUrl"`
	RoomID  string `json:"roomId"`
}

// MessageRequest is the payload of message requests.
type MessageRequest struct {
	Message string `json:"message"`
}
