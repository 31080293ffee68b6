/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package rtc

import (
	"fmt"
)

// SDPType is the type of a SessionDescription.
type SDPType string

// Supported SDP types.
const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// SessionDescription is an opaque SDP body with its type. Values are never
// modified after creation.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// NewSessionDescription creates a SessionDescription of the provided type.
func NewSessionDescription(sdpType SDPType, sdp string) *SessionDescription {
	return &SessionDescription{
		Type: sdpType,
		SDP:  sdp,
	}
}

// ICECandidate is a remote or local ICE candidate descriptor.
type ICECandidate struct {
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
	Candidate     string `json:"candidate"`
}

func (c *ICECandidate) String() string {
	return fmt.Sprintf("%s:%d:%s", c.SDPMid, c.SDPMLineIndex, c.Candidate)
}

// ICEConnectionState describes the ICE connection state. Numeric values are
// part of the event wire format.
type ICEConnectionState int

// ICE connection states.
const (
	ICEConnectionStateNew ICEConnectionState = iota
	ICEConnectionStateChecking
	ICEConnectionStateConnected
	ICEConnectionStateCompleted
	ICEConnectionStateFailed
	ICEConnectionStateDisconnected
	ICEConnectionStateClosed
)

func (s ICEConnectionState) String() string {
	switch s {
	case ICEConnectionStateNew:
		return "new"
	case ICEConnectionStateChecking:
		return "checking"
	case ICEConnectionStateConnected:
		return "connected"
	case ICEConnectionStateCompleted:
		return "completed"
	case ICEConnectionStateFailed:
		return "failed"
	case ICEConnectionStateDisconnected:
		return "disconnected"
	case ICEConnectionStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ICEServer is a STUN or TURN server definition.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// RoomParameters are the parameters received when joining a room.
type RoomParameters struct {
	Initiator bool

	RoomID   string
	ClientID string

	WSSURL     string
	WSSPostURL string

	ICEServers []*ICEServer

	OfferSDP      *SessionDescription
	ICECandidates []*ICECandidate
}
