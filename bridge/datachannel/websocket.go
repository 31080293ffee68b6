/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package datachannel

import (
	"context"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	api "stash.kopano.io/kwm/kwmdatachannel/bridge/api-v0"
)

const (
	websocketWriteTimeout = 10 * time.Second
	websocketQueueSize    = 64
)

// ErrorEvent is the websocket representation of an error.
type ErrorEvent struct {
	Error *api.ErrorWithCodeAndMessage `json:"error"`
}

// websocketSink is an EventSink which writes events as JSON text frames to a
// websocket. Writing happens in run so the sink never blocks its callers.
type websocketSink struct {
	deadlock.Mutex

	logger logrus.FieldLogger
	queue  chan interface{}
	ended  bool
}

func newWebsocketSink(logger logrus.FieldLogger) *websocketSink {
	return &websocketSink{
		logger: logger,
		queue:  make(chan interface{}, websocketQueueSize),
	}
}

func (s *websocketSink) push(v interface{}) {
	s.Lock()
	defer s.Unlock()
	if s.ended {
		return
	}
	select {
	case s.queue <- v:
	default:
		s.logger.Warnln("websocket event queue full, event dropped")
	}
}

func (s *websocketSink) Success(event *Event) {
	s.push(event)
}

func (s *websocketSink) Error(code string, message string, details interface{}) {
	s.push(&ErrorEvent{
		Error: api.NewErrorWithCodeAndMessage(code, message, nil),
	})
}

func (s *websocketSink) EndOfStream() {
	s.Lock()
	defer s.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	close(s.queue)
}

// run writes queued events until the stream ended or the context is done.
func (s *websocketSink) run(ctx context.Context, ws *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case v, ok := <-s.queue:
			if !ok {
				return ws.Close(websocket.StatusNormalClosure, "")
			}
			writeCtx, cancel := context.WithTimeout(ctx, websocketWriteTimeout)
			err := wsjson.Write(writeCtx, ws, v)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
