/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package datachannel

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"nhooyr.io/websocket"

	api "stash.kopano.io/kwm/kwmdatachannel/bridge/api-v0"
	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
)

const maxRequestSize = 1048576

// HTTPPluginsHandler lists plugins or creates a new plugin.
func (m *Manager) HTTPPluginsHandler(rw http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		plugins := m.Plugins()
		resources := make([]interface{}, 0, len(plugins))
		for _, p := range plugins {
			resources = append(resources, p.Resource())
		}

		if writeErr := api.WriteResourceAsJSON(rw, api.NewCollectionResource(resources, req, nil)); writeErr != nil {
			m.logger.WithError(writeErr).Errorln("failed to write json response")
		}

	case http.MethodPost:
		p, err := m.Create()
		if err != nil {
			m.writeError(rw, err)
			return
		}

		rw.Header().Set("Location", req.URL.Path+"/"+p.ID())
		if writeErr := api.WriteResourceAsJSONWithStatus(rw, http.StatusCreated, api.NewItemResource(p.Resource(), req)); writeErr != nil {
			m.logger.WithError(writeErr).Errorln("failed to write json response")
		}

	default:
		http.Error(rw, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

// HTTPPluginHandler returns or removes a plugin.
func (m *Manager) HTTPPluginHandler(rw http.ResponseWriter, req *http.Request) {
	p := m.getPluginOrWriteError(rw, req)
	if p == nil {
		return
	}

	switch req.Method {
	case http.MethodGet:
		if writeErr := api.WriteResourceAsItemResourceResponseJSON(rw, req, p.Resource()); writeErr != nil {
			m.logger.WithError(writeErr).Errorln("failed to write json response")
		}

	case http.MethodDelete:
		m.Remove(p.ID())
		rw.WriteHeader(http.StatusNoContent)

	default:
		http.Error(rw, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

// HTTPPluginConnectHandler connects a plugin to a room.
func (m *Manager) HTTPPluginConnectHandler(rw http.ResponseWriter, req *http.Request) {
	p := m.getPluginOrWriteError(rw, req)
	if p == nil {
		return
	}

	request := &ConnectRequest{}
	if err := decodeRequest(req, request); err != nil {
		m.writeError(rw, err)
		return
	}

	if err := p.ConnectToRoom(request.RoomURL, request.RoomID); err != nil {
		m.writeError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}

// HTTPPluginMessageHandler sends a message with a plugin.
func (m *Manager) HTTPPluginMessageHandler(rw http.ResponseWriter, req *http.Request) {
	p := m.getPluginOrWriteError(rw, req)
	if p == nil {
		return
	}

	request := &MessageRequest{}
	if err := decodeRequest(req, request); err != nil {
		m.writeError(rw, err)
		return
	}

	if err := p.SendMessage(request.Message); err != nil {
		m.writeError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}

// HTTPPluginDisconnectHandler disconnects a plugin from its room.
func (m *Manager) HTTPPluginDisconnectHandler(rw http.ResponseWriter, req *http.Request) {
	p := m.getPluginOrWriteError(rw, req)
	if p == nil {
		return
	}

	p.Disconnect()
	rw.WriteHeader(http.StatusAccepted)
}

// HTTPPluginEventsHandler registers a websocket as the event sink of a
// plugin. Each event is sent as one JSON text frame.
func (m *Manager) HTTPPluginEventsHandler(rw http.ResponseWriter, req *http.Request) {
	p := m.getPluginOrWriteError(rw, req)
	if p == nil {
		return
	}

	ws, err := websocket.Accept(rw, req, nil)
	if err != nil {
		m.logger.WithError(err).Debugln("events websocket accept failed")
		return
	}
	defer ws.Close(websocket.StatusInternalError, "")

	logger := p.logger.WithField("remote", req.RemoteAddr)
	sink := newWebsocketSink(logger)
	p.Listen(sink)
	defer p.unlisten(sink)

	logger.Debugln("events websocket connected")
	// Nothing is read, CloseRead handles control frames and cancels the
	// context when the remote goes away.
	ctx := ws.CloseRead(req.Context())
	if err = sink.run(ctx, ws); err != nil {
		logger.WithError(err).Debugln("events websocket done")
	}
}

func (m *Manager) getPluginOrWriteError(rw http.ResponseWriter, req *http.Request) *Plugin {
	pluginID, _ := api.GetRequestVar(req, "pluginID")
	p, ok := m.Get(pluginID)
	if !ok {
		if writeErr := api.WriteErrorAsJSON(rw, api.NewErrorWithCodeAndMessage(
			"ErrorMessagePluginNotfound",
			"The specified plugin was not found",
			api.ErrNotFound,
		)); writeErr != nil {
			m.logger.WithError(writeErr).Errorln("failed to write json error")
		}
		return nil
	}
	return p
}

func decodeRequest(req *http.Request, v interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(req.Body, maxRequestSize))
	if err := decoder.Decode(v); err != nil {
		return api.NewErrorWithCodeAndMessage(
			"ErrorMessageInvalidRequest",
			"The request body is not valid: "+err.Error(),
			api.ErrBadRequest,
		)
	}
	return nil
}

func (m *Manager) writeError(rw http.ResponseWriter, err error) {
	var apiErr *api.ErrorWithCodeAndMessage
	switch {
	case errors.As(err, &apiErr):
	case errors.Is(err, ErrInvalidRoom):
		err = api.NewErrorWithCodeAndMessage("ErrorMessageInvalidRoom", err.Error(), api.ErrBadRequest)
	case errors.Is(err, ErrNotConnected):
		err = api.NewErrorWithCodeAndMessage("ErrorMessageNotConnected", err.Error(), api.ErrConflict)
	case errors.Is(err, ErrAlreadyConnected):
		err = api.NewErrorWithCodeAndMessage("ErrorMessageAlreadyConnected", err.Error(), api.ErrConflict)
	case errors.Is(err, orchestrator.ErrChannelUnavailable):
		err = api.NewErrorWithCodeAndMessage("ErrorMessageChannelUnavailable", err.Error(), api.ErrConflict)
	case errors.Is(err, orchestrator.ErrClosed):
		err = api.NewErrorWithCodeAndMessage("ErrorMessageClosed", err.Error(), api.ErrConflict)
	}

	if writeErr := api.WriteErrorAsJSON(rw, err); writeErr != nil {
		m.logger.WithError(writeErr).Errorln("failed to write json error")
	}
}
