/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package signaling

import (
	"encoding/json"
	"strconv"
)

// Result values of room responses.
const (
	ResultSuccess = "SUCCESS"
	ResultFull    = "FULL"
)

// Message types exchanged with the remote peer.
const (
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeCandidate        = "candidate"
	TypeRemoveCandidates = "remove-candidates"
	TypeBye              = "bye"
)

// Websocket commands.
const (
	CmdRegister = "register"
	CmdSend     = "send"
)

// Bool decodes JSON booleans which are sent either as bool or as string.
type Bool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bool) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, parseErr := strconv.ParseBool(s)
		if parseErr != nil {
			return parseErr
		}
		*b = Bool(v)
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = Bool(v)
	return nil
}

// JoinResponse is the response of the room join request.
type JoinResponse struct {
	Result string          `json:"result"`
	Params *JoinParameters `json:"params,omitempty"`
}

// JoinParameters are the room parameters of a JoinResponse.
type JoinParameters struct {
	IsInitiator Bool     `json:"is_initiator"`
	RoomID      string   `json:"room_id"`
	ClientID    string   `json:"client_id"`
	WSSURL      string   `json:"wss_url"`
	WSSPostURL  string   `json:"wss_post_url"`
	Messages    []string `json:"messages,omitempty"`
	PCConfig    string   `json:"pc_config,omitempty"`
}

// PCConfig is the decoded pc_config value of JoinParameters.
type PCConfig struct {
	ICEServers []*ICEServer `json:"iceServers"`
}

// ICEServer is an ICE server entry of PCConfig. URLs may be a single string or
// a list.
type ICEServer struct {
	URLs       json.RawMessage `json:"urls"`
	Username   string          `json:"username,omitempty"`
	Credential string          `json:"credential,omitempty"`
}

// MessageResponse is the response of message and leave requests.
type MessageResponse struct {
	Result string `json:"result"`
}

// Message is a payload exchanged with the remote peer.
type Message struct {
	Type string `json:"type"`

	SDP string `json:"sdp,omitempty"`

	Label     *int   `json:"label,omitempty"`
	ID        string `json:"id,omitempty"`
	Candidate string `json:"candidate,omitempty"`

	Candidates []*Message `json:"candidates,omitempty"`
}

// RegisterCommand registers a client at the websocket server.
type RegisterCommand struct {
	Cmd      string `json:"cmd"`
	RoomID   string `json:"roomid"`
	ClientID string `json:"clientid"`
}

// SendCommand sends a message to the other client in the room.
type SendCommand struct {
	Cmd string `json:"cmd"`
	Msg string `json:"msg"`
}

// WebsocketMessage is a message received from the websocket server.
type WebsocketMessage struct {
	Msg   string `json:"msg"`
	Error string `json:"error"`
}
