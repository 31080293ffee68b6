/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"stash.kopano.io/kwm/kwmdatachannel/bridge/odata"
)

func WriteResourceAsJSON(rw http.ResponseWriter, resource interface{}) error {
	return WriteResourceAsJSONWithStatus(rw, http.StatusOK, resource)
}

func WriteResourceAsJSONWithStatus(rw http.ResponseWriter, status int, resource interface{}) error {
	rw.Header().Add("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	encoder := json.NewEncoder(rw)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resource)
}

func WriteResourceAsItemResourceResponseJSON(rw http.ResponseWriter, req *http.Request, resource interface{}) error {
	return WriteResourceAsJSON(rw, NewItemResource(resource, req))
}

func WriteErrorAsJSON(rw http.ResponseWriter, err error) error {
	rw.Header().Add("Content-Type", "application/json; charset=utf-8")
	encoder := json.NewEncoder(rw)
	encoder.SetIndent("", "  ")

	switch {
	case errors.Is(err, ErrNotFound):
		rw.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrBadRequest):
		rw.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, ErrConflict):
		rw.WriteHeader(http.StatusConflict)
	case err == nil:
		panic("writing nil error")
	default:
		rw.WriteHeader(http.StatusInternalServerError)
	}

	var e *ErrorWithCodeAndMessage
	if !errors.As(err, &e) {
		e = NewErrorWithCodeAndMessage(ErrorCodeUnspecifiedError, fmt.Errorf("unspecified error: %w", err).Error(), nil)
	}
	return encoder.Encode(e)
}

func GetRequestVars(req *http.Request) map[string]string {
	return mux.Vars(req)
}

func GetRequestVar(req *http.Request, name string) (string, bool) {
	value, found := GetRequestVars(req)[name]
	return value, found
}

func NewErrorResource(err error) *ErrorResource {
	return &ErrorResource{
		Error: err,
	}
}

func getODataContext(req *http.Request) string {
	if o := odata.FromContext(req.Context()); o != nil {
		return o.Context
	}
	return req.URL.Path
}

func NewCollectionResource(values Collection, req *http.Request, nextLink *url.URL) *CollectionResource {
	resource := &CollectionResource{
		ODataContext: getODataContext(req),

		Values: values,
	}
	if nextLink != nil {
		resource.ODataNextLink = nextLink.String()
	}
	return resource
}

func NewItemResource(item Item, req *http.Request) *ItemResource {
	return &ItemResource{
		ODataContext: getODataContext(req),

		Item: item,
	}
}
