/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package datachannel

import (
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

// signalingEvents routes signaling events of a call to its orchestrator.
type signalingEvents struct {
	c *call
}

func (e *signalingEvents) OnConnectedToRoom(params *rtc.RoomParameters) {
	c := e.c
	if !c.p.isCurrent(c) {
		return
	}

	c.initiator.Store(params.Initiator)
	c.connected.Store(true)
	c.p.events.notifyEvent(&Event{
		Type:  EventTypeSignalingState,
		State: SignalingStateConnected,
	})

	o := c.orchestrator
	c.check(o.CreateSession(params))

	if params.Initiator {
		c.check(o.CreateOffer())
		return
	}

	if params.OfferSDP != nil {
		c.check(o.SetRemoteDescription(params.OfferSDP))
		// The answer is sent to the remote with OnLocalDescription.
		c.check(o.CreateAnswer())
	}
	for _, candidate := range params.ICECandidates {
		c.check(o.AddRemoteCandidate(candidate))
	}
}

func (e *signalingEvents) OnRemoteDescription(sdp *rtc.SessionDescription) {
	c := e.c
	if !c.p.isCurrent(c) {
		return
	}

	c.check(c.orchestrator.SetRemoteDescription(sdp))
	if !c.initiator.Load() {
		c.check(c.orchestrator.CreateAnswer())
	}
}

func (e *signalingEvents) OnRemoteICECandidate(candidate *rtc.ICECandidate) {
	c := e.c
	if !c.p.isCurrent(c) {
		return
	}

	c.check(c.orchestrator.AddRemoteCandidate(candidate))
}

func (e *signalingEvents) OnRemoteICECandidatesRemoved(candidates []*rtc.ICECandidate) {
	e.c.logger.WithField("count", len(candidates)).Debugln("remote candidates removed, ignored")
}

func (e *signalingEvents) OnChannelClose() {
	e.c.p.disconnectCall(e.c)
}

func (e *signalingEvents) OnChannelError(description string) {
	c := e.c
	if !c.p.isCurrent(c) {
		return
	}

	c.p.metrics.failed()
	c.p.events.notifyError(description)
	c.p.disconnectCall(c)
}

// check logs operations rejected by a closed orchestrator.
func (c *call) check(err error) {
	if err != nil {
		c.logger.WithError(err).Debugln("orchestrator operation rejected")
	}
}

// orchestratorEvents routes orchestrator events of a call to the signaling
// client and the event sink.
type orchestratorEvents struct {
	c *call
}

func (e *orchestratorEvents) OnLocalDescription(sdp *rtc.SessionDescription) {
	e.c.signaling.SendLocalDescription(sdp)
}

func (e *orchestratorEvents) OnICECandidate(candidate *rtc.ICECandidate) {
	e.c.signaling.SendLocalCandidate(candidate)
}

func (e *orchestratorEvents) OnICEConnectionChange(state rtc.ICEConnectionState) {
	e.c.logger.WithField("state", state).Debugln("ice connection state change")
	e.c.p.events.notifyEvent(&Event{
		Type:  EventTypeICEState,
		State: int(state),
	})
}

func (e *orchestratorEvents) OnMessage(message string) {
	e.c.p.metrics.messageReceived()
	e.c.p.events.notifyEvent(&Event{
		Type:    EventTypeMessage,
		Message: message,
	})
}

func (e *orchestratorEvents) OnPeerConnectionClosed() {
	e.c.p.events.notifyEvent(&Event{
		Type:  EventTypeSignalingState,
		State: SignalingStateDisconnected,
	})
}

func (e *orchestratorEvents) OnPeerConnectionError(description string) {
	e.c.p.metrics.failed()
	e.c.p.events.notifyError(description)
}
