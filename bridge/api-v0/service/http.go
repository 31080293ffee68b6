/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package service

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmdatachannel/bridge"
	"stash.kopano.io/kwm/kwmdatachannel/bridge/datachannel"
	"stash.kopano.io/kwm/kwmdatachannel/bridge/odata"
)

const (
	URIPrefix = "/api/kwm/v0"
)

// HTTPService binds the HTTP router with handlers for kwm API v0.
type HTTPService struct {
	logger   logrus.FieldLogger
	services *bridge.Services
}

// NewHTTPService creates a new HTTPService  with the provided options.
func NewHTTPService(ctx context.Context, logger logrus.FieldLogger, services *bridge.Services) *HTTPService {
	return &HTTPService{
		logger:   logger,
		services: services,
	}
}

// AddRoutes configures the services HTTP end point routing on the provided
// context and router.
func (h *HTTPService) AddRoutes(ctx context.Context, router *mux.Router, chain alice.Chain) http.Handler {
	v0 := router.PathPrefix(URIPrefix).Subrouter()

	if dcm, ok := h.services.DataChannelManager.(*datachannel.Manager); ok {
		r := v0.PathPrefix("/datachannel").Subrouter()
		resourceChain := chain.Append(odata.WithOData)

		// /api/kwm/v0/datachannel/plugins
		// /api/kwm/v0/datachannel/plugins/:plugin
		// /api/kwm/v0/datachannel/plugins/:plugin/connect
		// /api/kwm/v0/datachannel/plugins/:plugin/message
		// /api/kwm/v0/datachannel/plugins/:plugin/disconnect
		// /api/kwm/v0/datachannel/plugins/:plugin/events
		r.Handle("/plugins", resourceChain.ThenFunc(dcm.HTTPPluginsHandler)).Methods(http.MethodGet, http.MethodPost)
		r.Handle("/plugins/{pluginID}", resourceChain.ThenFunc(dcm.HTTPPluginHandler)).Methods(http.MethodGet, http.MethodDelete)
		r.Handle("/plugins/{pluginID}/connect", chain.ThenFunc(dcm.HTTPPluginConnectHandler)).Methods(http.MethodPost)
		r.Handle("/plugins/{pluginID}/message", chain.ThenFunc(dcm.HTTPPluginMessageHandler)).Methods(http.MethodPost)
		r.Handle("/plugins/{pluginID}/disconnect", chain.ThenFunc(dcm.HTTPPluginDisconnectHandler)).Methods(http.MethodPost)
		r.Handle("/plugins/{pluginID}/events", chain.ThenFunc(dcm.HTTPPluginEventsHandler)).Methods(http.MethodGet)
	}

	return router
}

// NumActive returns the number of the currently active connections at the
// accociated HTTPService.
func (h *HTTPService) NumActive() (active uint64) {
	for _, service := range h.services.Services() {
		active += service.NumActive()
	}

	return active
}
