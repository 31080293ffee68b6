/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthCheckHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create our server.
	httpServer, _, router, _ := newTestServer(ctx, t)
	defer httpServer.Close()

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req, err := http.NewRequest(method, "/health-check", nil)
		if err != nil {
			t.Fatal(err)
		}

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("%s: handler returned wrong status code: got %v want %v", method, status, http.StatusOK)
		}
	}
}

func TestDataChannelAPI(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer, _, router, _ := newTestServer(ctx, t)
	defer httpServer.Close()

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		var err error
		if body != "" {
			req, err = http.NewRequest(method, path, strings.NewReader(body))
		} else {
			req, err = http.NewRequest(method, path, nil)
		}
		if err != nil {
			t.Fatal(err)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	prefix := "/api/kwm/v0/datachannel/plugins"

	rr := do(http.MethodPost, prefix, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create returned wrong status code: got %v want %v", rr.Code, http.StatusCreated)
	}
	created := &struct {
		ODataContext string `json:"@odata.context"`
		ID           string `json:"id"`
		Connected    bool   `json:"connected"`
	}{}
	if err := json.Unmarshal(rr.Body.Bytes(), created); err != nil {
		t.Fatalf("failed to parse create response: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("create response without id: %s", rr.Body.String())
	}
	if created.ODataContext != prefix {
		t.Errorf("odata context mismatch: got %v want %v", created.ODataContext, prefix)
	}
	if rr.Header().Get("Location") != prefix+"/"+created.ID {
		t.Errorf("location mismatch: got %v", rr.Header().Get("Location"))
	}

	rr = do(http.MethodGet, prefix, "")
	if rr.Code != http.StatusOK {
		t.Errorf("list returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	list := &struct {
		Values []map[string]interface{} `json:"values"`
	}{}
	if err := json.Unmarshal(rr.Body.Bytes(), list); err != nil {
		t.Fatalf("failed to parse list response: %v", err)
	}
	if len(list.Values) != 1 {
		t.Errorf("list length mismatch: got %v want %v", len(list.Values), 1)
	}

	item := prefix + "/" + created.ID
	for _, tc := range []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodGet, item, "", http.StatusOK},
		{http.MethodGet, prefix + "/unknown", "", http.StatusNotFound},
		{http.MethodPost, item + "/message", `{"message":"hello"}`, http.StatusConflict},
		{http.MethodPost, item + "/connect", `not json`, http.StatusBadRequest},
		{http.MethodPost, item + "/connect", `{"roomUrl":""}`, http.StatusBadRequest},
		{http.MethodPost, item + "/disconnect", "", http.StatusAccepted},
		{http.MethodPost, prefix + "/unknown/connect", `{}`, http.StatusNotFound},
		{http.MethodDelete, item, "", http.StatusNoContent},
		{http.MethodGet, item, "", http.StatusNotFound},
	} {
		rr = do(tc.method, tc.path, tc.body)
		if rr.Code != tc.status {
			t.Errorf("%s %s returned wrong status code: got %v want %v (%s)", tc.method, tc.path, rr.Code, tc.status, rr.Body.String())
		}
	}
}
