/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package api

import (
	"encoding/json"
	"fmt"
)

type CollectionResource struct {
	ODataContext  string `json:"@odata.context"`
	ODataNextLink string `json:"@odata.nextLink,omitempty"`

	Values Collection `json:"values"`
}

type Collection interface{}

type ItemResource struct {
	ODataContext string `json:"@odata.context"`
	Item
}

type Item interface{}

// MarshalJSON implements json.Marshaler. The fields of Item are inlined next
// to the OData context.
func (resource *ItemResource) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{})
	if resource.Item != nil {
		b, err := json.Marshal(resource.Item)
		if err != nil {
			return nil, err
		}
		if err = json.Unmarshal(b, &fields); err != nil {
			return nil, fmt.Errorf("item is not an object: %w", err)
		}
	}
	fields["@odata.context"] = resource.ODataContext
	return json.Marshal(fields)
}

type ErrorResource struct {
	Error interface{}
}

type ErrorWithCodeAndMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	innerError error
}

func NewErrorWithCodeAndMessage(code string, message string, err error) *ErrorWithCodeAndMessage {
	return &ErrorWithCodeAndMessage{
		Code:    code,
		Message: message,

		innerError: err,
	}
}

func (err *ErrorWithCodeAndMessage) Error() string {
	code := err.Code
	message := err.Message
	if message == "" && err.innerError != nil {
		message = err.innerError.Error()
	}

	return fmt.Sprintf("%s: %s", code, message)
}

func (err *ErrorWithCodeAndMessage) Unwrap() error {
	return err.innerError
}
