/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package signaling implements a client for AppRTC compatible rooms, which
// join a room by HTTP and exchange messages with the remote peer through the
// room websocket server.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"

	"stash.kopano.io/kwm/kwmdatachannel/internal/executor"
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

const (
	websocketMaxMessageSize = 1048576

	leaveTimeout = 10 * time.Second
)

// ErrAlreadyConnected is returned when Connect is called more than once.
var ErrAlreadyConnected = errors.New("already connected")

// Events receives the signaling events of a Client.
type Events interface {
	OnConnectedToRoom(params *rtc.RoomParameters)
	OnRemoteDescription(sdp *rtc.SessionDescription)
	OnRemoteICECandidate(candidate *rtc.ICECandidate)
	OnRemoteICECandidatesRemoved(candidates []*rtc.ICECandidate)
	OnChannelClose()
	OnChannelError(description string)
}

// Options define the settings of a Client.
type Options struct {
	Logger     logrus.FieldLogger
	HTTPClient *http.Client
}

type roomState int

const (
	roomStateNew roomState = iota
	roomStateConnecting
	roomStateConnected
	roomStateClosed
	roomStateError
)

// Client joins exactly one room and relays messages until disconnected.
// Outgoing operations run in order on their own execution context.
type Client struct {
	deadlock.RWMutex

	logger     logrus.FieldLogger
	httpClient *http.Client
	events     Events

	ctx    context.Context
	cancel context.CancelFunc

	exec *executor.Executor

	state      roomState
	initiator  bool
	roomID     string
	clientID   string
	messageURL string
	leaveURL   string
	deleteURL  string
	ws         *websocket.Conn
}

// NewClient creates a Client which reports to the provided events.
func NewClient(events Events, options *Options) (*Client, error) {
	if events == nil {
		return nil, errors.New("events cannot be nil")
	}
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		logger:     options.Logger,
		httpClient: httpClient,
		events:     events,

		exec: executor.New(),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	return c, nil
}

// Connect starts joining the provided room. The result is reported with
// OnConnectedToRoom or OnChannelError.
func (c *Client) Connect(roomURL, roomID string) error {
	c.Lock()
	if c.state != roomStateNew {
		c.Unlock()
		return ErrAlreadyConnected
	}
	c.state = roomStateConnecting
	c.Unlock()

	c.exec.Execute(func() {
		c.connect(roomURL, roomID)
	})
	return nil
}

func (c *Client) connect(roomURL, roomID string) {
	logger := c.logger.WithFields(logrus.Fields{
		"room_url": roomURL,
		"room_id":  roomID,
	})
	logger.Debugln("joining room")

	response := &JoinResponse{}
	if err := c.request(c.ctx, http.MethodPost, joinURL(roomURL, "join", roomID), nil, response); err != nil {
		c.reportError(fmt.Sprintf("failed to join room: %v", err))
		return
	}
	if response.Result != ResultSuccess {
		c.reportError("Room response error: " + response.Result)
		return
	}
	if response.Params == nil {
		c.reportError("Room response error: missing params")
		return
	}

	params, err := parseJoinParameters(response.Params)
	if err != nil {
		c.reportError(fmt.Sprintf("Room response error: %v", err))
		return
	}

	wsURL, err := asWebsocketURL(params.WSSURL)
	if err != nil {
		c.reportError(fmt.Sprintf("invalid websocket url: %v", err))
		return
	}
	ws, _, err := websocket.Dial(c.ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.httpClient,
	})
	if err != nil {
		c.reportError(fmt.Sprintf("WebSocket error: failed to connect: %v", err))
		return
	}
	ws.SetReadLimit(websocketMaxMessageSize)

	if err = c.writeJSON(ws, &RegisterCommand{
		Cmd:      CmdRegister,
		RoomID:   params.RoomID,
		ClientID: params.ClientID,
	}); err != nil {
		ws.Close(websocket.StatusInternalError, "")
		c.reportError(fmt.Sprintf("WebSocket error: failed to register: %v", err))
		return
	}

	c.Lock()
	if c.state != roomStateConnecting {
		c.Unlock()
		ws.Close(websocket.StatusNormalClosure, "")
		return
	}
	c.state = roomStateConnected
	c.initiator = params.Initiator
	c.roomID = params.RoomID
	c.clientID = params.ClientID
	c.messageURL = joinURL(roomURL, "message", params.RoomID, params.ClientID)
	c.leaveURL = joinURL(roomURL, "leave", params.RoomID, params.ClientID)
	if params.WSSPostURL != "" {
		c.deleteURL = joinURL(params.WSSPostURL, params.RoomID, params.ClientID)
	}
	c.ws = ws
	c.Unlock()

	logger.WithFields(logrus.Fields{
		"client_id": params.ClientID,
		"initiator": params.Initiator,
	}).Infoln("connected to room")

	c.events.OnConnectedToRoom(params)

	// Reading starts after the room parameters have been handled, so remote
	// messages always come after them.
	go func() {
		if readPumpErr := c.readPump(ws); readPumpErr != nil {
			c.reportError(fmt.Sprintf("WebSocket error: %v", readPumpErr))
		}
	}()
}

// SendLocalDescription sends the provided description to the remote peer.
func (c *Client) SendLocalDescription(sdp *rtc.SessionDescription) {
	c.send(newDescriptionMessage(sdp))
}

// SendLocalCandidate sends the provided candidate to the remote peer.
func (c *Client) SendLocalCandidate(candidate *rtc.ICECandidate) {
	c.send(newCandidateMessage(candidate))
}

// send delivers the message through the room server when this side is the
// initiator, since the other side might not be connected yet. Otherwise the
// websocket is used.
func (c *Client) send(message *Message) {
	c.exec.Execute(func() {
		c.RLock()
		state := c.state
		initiator := c.initiator
		messageURL := c.messageURL
		ws := c.ws
		c.RUnlock()

		if state != roomStateConnected {
			c.logger.WithField("type", message.Type).Warnln("send while not connected to room, dropped")
			return
		}

		payload, err := json.Marshal(message)
		if err != nil {
			c.logger.WithError(err).Errorln("failed to encode room message")
			return
		}

		if initiator {
			response := &MessageResponse{}
			if err = c.request(c.ctx, http.MethodPost, messageURL, payload, response); err != nil {
				c.reportError(fmt.Sprintf("room message error: %v", err))
				return
			}
			if response.Result != ResultSuccess {
				c.reportError("room message error: " + response.Result)
			}
			return
		}

		if err = c.writeJSON(ws, &SendCommand{
			Cmd: CmdSend,
			Msg: string(payload),
		}); err != nil {
			c.reportError(fmt.Sprintf("WebSocket error: failed to send: %v", err))
		}
	})
}

// Disconnect leaves the room and closes the websocket after all queued
// messages have been sent. It is safe to call more than once.
func (c *Client) Disconnect() error {
	c.exec.Execute(func() {
		c.disconnect()
		c.exec.Stop()
	})
	return nil
}

// Done returns a channel which is closed once Disconnect has completed.
func (c *Client) Done() <-chan struct{} {
	return c.exec.Done()
}

func (c *Client) disconnect() {
	c.Lock()
	state := c.state
	if state == roomStateClosed {
		c.Unlock()
		return
	}
	c.state = roomStateClosed
	ws := c.ws
	leaveURL := c.leaveURL
	deleteURL := c.deleteURL
	c.Unlock()

	defer c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	if state == roomStateConnected {
		c.logger.Debugln("leaving room")
		if err := c.request(ctx, http.MethodPost, leaveURL, nil, nil); err != nil {
			c.logger.WithError(err).Warnln("failed to leave room")
		}
	}

	if ws == nil {
		return
	}

	if state == roomStateConnected {
		payload, _ := json.Marshal(&Message{Type: TypeBye})
		if err := c.writeJSON(ws, &SendCommand{
			Cmd: CmdSend,
			Msg: string(payload),
		}); err != nil {
			c.logger.WithError(err).Debugln("failed to send bye")
		}
	}
	if deleteURL != "" {
		if err := c.request(ctx, http.MethodDelete, deleteURL, nil, nil); err != nil {
			c.logger.WithError(err).Debugln("failed to delete websocket registration")
		}
	}
	if err := ws.Close(websocket.StatusNormalClosure, ""); err != nil {
		c.logger.WithError(err).Debugln("websocket close error")
	}
	c.logger.Debugln("disconnected from room")
}

func (c *Client) isClosed() bool {
	c.RLock()
	defer c.RUnlock()
	return c.state == roomStateClosed
}

// reportError notifies the first channel error.
func (c *Client) reportError(description string) {
	c.Lock()
	if c.state == roomStateError || c.state == roomStateClosed {
		c.Unlock()
		return
	}
	c.state = roomStateError
	c.Unlock()

	c.logger.WithField("error", description).Errorln("signaling channel error")
	c.events.OnChannelError(description)
}
