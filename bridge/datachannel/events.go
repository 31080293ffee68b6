/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package datachannel

import (
	"encoding/json"

	"github.com/sasha-s/go-deadlock"
)

// EventType identifies the kind of an Event.
type EventType int

// Event types.
const (
	EventTypeSignalingState EventType = 1
	EventTypeICEState       EventType = 2
	EventTypeMessage        EventType = 3
)

// Signaling states reported with EventTypeSignalingState.
const (
	SignalingStateDisconnected = 0
	SignalingStateConnected    = 2
)

// Event is a notification sent to the registered EventSink. Events carry
// either a state or a message, depending on their type.
type Event struct {
	Type    EventType
	State   int
	Message string
}

// MarshalJSON implements json.Marshaler. Only the value matching the event
// type is included.
func (e *Event) MarshalJSON() ([]byte, error) {
	v := map[string]interface{}{
		"type": e.Type,
	}
	if e.Type == EventTypeMessage {
		v["message"] = e.Message
	} else {
		v["state"] = e.State
	}
	return json.Marshal(v)
}

// EventSink receives events of a Plugin. An error is terminal and always
// followed by EndOfStream.
type EventSink interface {
	Success(event *Event)
	Error(code string, message string, details interface{})
	EndOfStream()
}

// eventSlot holds the single registered EventSink.
type eventSlot struct {
	deadlock.RWMutex
	sink EventSink
}

func (slot *eventSlot) set(sink EventSink) {
	slot.Lock()
	slot.sink = sink
	slot.Unlock()
}

func (slot *eventSlot) get() EventSink {
	slot.RLock()
	defer slot.RUnlock()
	return slot.sink
}

func (slot *eventSlot) notifyEvent(event *Event) {
	if sink := slot.get(); sink != nil {
		sink.Success(event)
	}
}

func (slot *eventSlot) notifyError(description string) {
	if sink := slot.get(); sink != nil {
		sink.Error("", description, nil)
		sink.EndOfStream()
	}
}
