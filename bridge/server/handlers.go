/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package server

import (
	"net/http"
)

// HealthCheckHandler a http handler return 200 OK when server health is fine.
// POST requests are accepted too, so the healthcheck command can use the
// same end point.
func (s *Server) HealthCheckHandler(rw http.ResponseWriter, req *http.Request) {
	rw.Header().Set("Cache-Control", "no-cache")
	rw.WriteHeader(http.StatusOK)
}
