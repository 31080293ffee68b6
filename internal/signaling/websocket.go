/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"stash.kopano.io/kwm/kwmdatachannel/internal/bpool"
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
	"stash.kopano.io/kwm/kwmdatachannel/version"
)

const (
	writeTimeout = 10 * time.Second
)

func (c *Client) writeJSON(ws *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, ws, v)
}

func (c *Client) request(ctx context.Context, method string, uri string, body []byte, result interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, uri, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	request.Header.Set("User-Agent", "Kopano-Kwmdatachannel/"+version.Version)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response status: %d", response.StatusCode)
	}
	if result == nil {
		return nil
	}

	b := bpool.Get()
	defer bpool.Put(b)
	if _, err = b.ReadFrom(response.Body); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err = json.Unmarshal(b.Bytes(), result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) readPump(ws *websocket.Conn) error {
	var mt websocket.MessageType
	var reader io.Reader
	var b *bytes.Buffer
	var err error
	for {
		mt, reader, err = ws.Reader(c.ctx)
		if err != nil {
			if c.isClosed() || errors.Is(err, context.Canceled) {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.logger.WithField("status_code", websocket.CloseStatus(err)).Debugln("room websocket close")
				c.events.OnChannelClose()
				return nil
			}
			c.logger.WithError(err).Errorln("room websocket failed to get reader")
			return err
		}

		b = bpool.Get()
		if _, err = b.ReadFrom(reader); err != nil {
			bpool.Put(b)
			return fmt.Errorf("room websocket read error: %w", err)
		}

		switch mt {
		case websocket.MessageText:
		default:
			bpool.Put(b)
			c.logger.WithField("message_type", mt).Warnln("room websocket received unknown websocket message type")
			continue
		}

		message := &WebsocketMessage{}
		err = json.Unmarshal(b.Bytes(), message)
		bpool.Put(b)
		if err != nil {
			c.logger.WithError(err).Errorln("room websocket message parse error")
			continue
		}

		if stop := c.handleWebsocketMessage(message); stop {
			return nil
		}
	}
}

// handleWebsocketMessage dispatches one websocket message. It returns true
// when reading should stop.
func (c *Client) handleWebsocketMessage(wsMessage *WebsocketMessage) bool {
	if wsMessage.Msg == "" {
		if wsMessage.Error != "" {
			c.reportError("WebSocket error message: " + wsMessage.Error)
		} else {
			c.reportError("Unexpected WebSocket message")
		}
		return true
	}

	message := &Message{}
	if err := json.Unmarshal([]byte(wsMessage.Msg), message); err != nil {
		c.logger.WithError(err).Errorln("room message parse error")
		return false
	}

	c.RLock()
	initiator := c.initiator
	c.RUnlock()

	switch message.Type {
	case TypeCandidate:
		c.events.OnRemoteICECandidate(message.candidate())

	case TypeRemoveCandidates:
		candidates := make([]*rtc.ICECandidate, 0, len(message.Candidates))
		for _, m := range message.Candidates {
			candidates = append(candidates, m.candidate())
		}
		c.events.OnRemoteICECandidatesRemoved(candidates)

	case TypeAnswer:
		if !initiator {
			c.reportError("Received answer for call answerer")
			return true
		}
		c.events.OnRemoteDescription(message.description())

	case TypeOffer:
		if initiator {
			c.reportError("Received offer for call initiator")
			return true
		}
		c.events.OnRemoteDescription(message.description())

	case TypeBye:
		c.logger.Debugln("remote peer left the room")
		c.events.OnChannelClose()
		return true

	default:
		c.reportError("Unexpected WebSocket message: " + wsMessage.Msg)
		return true
	}

	return false
}
