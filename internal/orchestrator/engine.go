/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package orchestrator

import (
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

// Engine is the process wide transport engine. It must be created before any
// Orchestrator and outlive all of them.
type Engine interface {
	NewFactory() (Factory, error)
}

// Factory creates transport sessions. Each Orchestrator owns exactly one
// Factory which is disposed after its session.
type Factory interface {
	NewSession(config *SessionConfig, observer SessionObserver) (Session, error)
	Dispose() error
}

// BundlePolicy selects the media bundling policy.
type BundlePolicy int

// Bundle policies.
const (
	BundlePolicyBalanced BundlePolicy = iota
	BundlePolicyMaxBundle
)

// RTCPMuxPolicy selects the RTCP multiplexing policy.
type RTCPMuxPolicy int

// RTCP mux policies.
const (
	RTCPMuxPolicyNegotiate RTCPMuxPolicy = iota
	RTCPMuxPolicyRequire
)

// SessionConfig holds the transport policy for a new session.
type SessionConfig struct {
	ICEServers []*rtc.ICEServer

	GatherContinually    bool
	BundlePolicy         BundlePolicy
	RTCPMuxPolicy        RTCPMuxPolicy
	DisableTCPCandidates bool
}

// DataChannelInit configures a data channel. A nil MaxRetransmits means
// unbounded retransmission.
type DataChannelInit struct {
	Ordered        bool
	Negotiated     bool
	MaxRetransmits *uint16
}

// DataChannelState is the ready state of a data channel.
type DataChannelState int

// Data channel states.
const (
	DataChannelStateConnecting DataChannelState = iota
	DataChannelStateOpen
	DataChannelStateClosing
	DataChannelStateClosed
)

func (s DataChannelState) String() string {
	switch s {
	case DataChannelStateConnecting:
		return "connecting"
	case DataChannelStateOpen:
		return "open"
	case DataChannelStateClosing:
		return "closing"
	case DataChannelStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is a transport session (peer connection). Create and set methods
// return immediately, their result is reported to the provided observer.
// Implementations must run create and set operations in submission order.
type Session interface {
	CreateDataChannel(label string, init *DataChannelInit, observer DataChannelObserver) (DataChannel, error)

	CreateOffer(observer DescriptionObserver)
	CreateAnswer(observer DescriptionObserver)
	SetLocalDescription(observer DescriptionObserver, sdp *rtc.SessionDescription)
	SetRemoteDescription(observer DescriptionObserver, sdp *rtc.SessionDescription)

	AddICECandidate(candidate *rtc.ICECandidate) error

	Dispose() error
}

// DataChannel is a data channel of a Session.
type DataChannel interface {
	Label() string
	State() DataChannelState
	SendText(text string) error
	Dispose() error
}

// SessionObserver receives peer connection callbacks of a Session.
type SessionObserver interface {
	OnICECandidate(candidate *rtc.ICECandidate)
	OnICEConnectionChange(state rtc.ICEConnectionState)
	OnDataChannel(channel DataChannel) DataChannelObserver
}

// DescriptionObserver receives results of description create and set
// operations.
type DescriptionObserver interface {
	OnCreateSuccess(sdp *rtc.SessionDescription)
	OnSetSuccess()
	OnCreateFailure(err error)
	OnSetFailure(err error)
}

// DataChannelObserver receives data channel callbacks.
type DataChannelObserver interface {
	OnStateChange(state DataChannelState)
	OnMessage(data []byte, isString bool)
}
