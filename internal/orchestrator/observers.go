/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package orchestrator

import (
	"fmt"

	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

// sessionObserver forwards peer connection callbacks to the execution
// context.
type sessionObserver struct {
	o *Orchestrator
}

func (so *sessionObserver) OnICECandidate(candidate *rtc.ICECandidate) {
	o := so.o
	o.dispatch(func() {
		if o.events != nil {
			o.events.OnICECandidate(candidate)
		}
	})
}

func (so *sessionObserver) OnICEConnectionChange(state rtc.ICEConnectionState) {
	o := so.o
	o.dispatch(func() {
		o.logger.WithField("state", state).Debugln("ice connection state change")
		if o.events != nil {
			o.events.OnICEConnectionChange(state)
		}
	})
}

func (so *sessionObserver) OnDataChannel(channel DataChannel) DataChannelObserver {
	so.o.logger.WithField("label", channel.Label()).Debugln("remote data channel announced")
	return &dataChannelObserver{o: so.o}
}

type descriptionKind int

const (
	descriptionCreate descriptionKind = iota
	descriptionSetLocal
	descriptionSetRemote
)

// descriptionObserver forwards the result of one create or set operation to
// the execution context.
type descriptionObserver struct {
	o    *Orchestrator
	kind descriptionKind
}

func (do *descriptionObserver) OnCreateSuccess(sdp *rtc.SessionDescription) {
	do.o.dispatch(func() {
		do.o.onCreateSuccess(sdp)
	})
}

func (do *descriptionObserver) OnSetSuccess() {
	do.o.dispatch(func() {
		do.o.onSetSuccess(do.kind)
	})
}

func (do *descriptionObserver) OnCreateFailure(err error) {
	do.o.dispatch(func() {
		do.o.reportError(fmt.Sprintf("create description error: %v", err))
	})
}

func (do *descriptionObserver) OnSetFailure(err error) {
	do.o.dispatch(func() {
		do.o.reportError(fmt.Sprintf("set description error: %v", err))
	})
}

// dataChannelObserver forwards data channel callbacks to the execution
// context. Only the local channel tracks the ready state.
type dataChannelObserver struct {
	o     *Orchestrator
	local bool
}

func (dco *dataChannelObserver) OnStateChange(state DataChannelState) {
	dco.o.dispatch(func() {
		dco.o.onDataChannelStateChange(dco.local, state)
	})
}

func (dco *dataChannelObserver) OnMessage(data []byte, isString bool) {
	dco.o.dispatch(func() {
		dco.o.onDataChannelMessage(data)
	})
}
