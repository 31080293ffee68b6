/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package engine

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmdatachannel/internal/executor"
	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

var errSessionDisposed = errors.New("session disposed")

// session wraps a pion PeerConnection. Create and set operations are chained
// on their own executor so they run in submission order.
type session struct {
	deadlock.Mutex

	id     string
	logger logrus.FieldLogger

	pc       *webrtc.PeerConnection
	observer orchestrator.SessionObserver

	ops *executor.Executor

	disposed  bool
	onDispose func()
}

func newSession(id string, api *webrtc.API, configuration webrtc.Configuration, observer orchestrator.SessionObserver, logger logrus.FieldLogger) (*session, error) {
	pc, err := api.NewPeerConnection(configuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	s := &session{
		id:     id,
		logger: logger,

		pc:       pc,
		observer: observer,

		ops: executor.New(),
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			logger.Debugln("ICE gathering complete")
			return
		}
		init := candidate.ToJSON()
		c := &rtc.ICECandidate{
			Candidate: init.Candidate,
		}
		if init.SDPMid != nil {
			c.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			c.SDPMLineIndex = int(*init.SDPMLineIndex)
		}
		observer.OnICECandidate(c)
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.WithField("state", state).Debugln("ICE connection state changed")
		observer.OnICEConnectionChange(asICEConnectionState(state))
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		channel := newDataChannel(dc, logger)
		channel.observe(observer.OnDataChannel(channel))
	})

	return s, nil
}

// CreateDataChannel implements orchestrator.Session.
func (s *session) CreateDataChannel(label string, init *orchestrator.DataChannelInit, observer orchestrator.DataChannelObserver) (orchestrator.DataChannel, error) {
	ordered := init.Ordered
	dcInit := &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: init.MaxRetransmits,
	}
	if init.Negotiated {
		negotiated := true
		dcInit.Negotiated = &negotiated
	}

	dc, err := s.pc.CreateDataChannel(label, dcInit)
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}

	channel := newDataChannel(dc, s.logger)
	channel.observe(observer)
	return channel, nil
}

// CreateOffer implements orchestrator.Session.
func (s *session) CreateOffer(observer orchestrator.DescriptionObserver) {
	s.chain(func() {
		description, err := s.pc.CreateOffer(nil)
		if err != nil {
			observer.OnCreateFailure(fmt.Errorf("failed to create offer: %w", err))
			return
		}
		observer.OnCreateSuccess(rtc.NewSessionDescription(rtc.SDPTypeOffer, description.SDP))
	}, observer.OnCreateFailure)
}

// CreateAnswer implements orchestrator.Session.
func (s *session) CreateAnswer(observer orchestrator.DescriptionObserver) {
	s.chain(func() {
		description, err := s.pc.CreateAnswer(nil)
		if err != nil {
			observer.OnCreateFailure(fmt.Errorf("failed to create answer: %w", err))
			return
		}
		observer.OnCreateSuccess(rtc.NewSessionDescription(rtc.SDPTypeAnswer, description.SDP))
	}, observer.OnCreateFailure)
}

// SetLocalDescription implements orchestrator.Session.
func (s *session) SetLocalDescription(observer orchestrator.DescriptionObserver, sdp *rtc.SessionDescription) {
	s.chain(func() {
		if err := s.pc.SetLocalDescription(webrtc.SessionDescription{
			Type: asSDPType(sdp.Type),
			SDP:  sdp.SDP,
		}); err != nil {
			observer.OnSetFailure(fmt.Errorf("failed to set local description: %w", err))
			return
		}
		observer.OnSetSuccess()
	}, observer.OnSetFailure)
}

// SetRemoteDescription implements orchestrator.Session.
func (s *session) SetRemoteDescription(observer orchestrator.DescriptionObserver, sdp *rtc.SessionDescription) {
	s.chain(func() {
		if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: asSDPType(sdp.Type),
			SDP:  sdp.SDP,
		}); err != nil {
			observer.OnSetFailure(fmt.Errorf("failed to set remote description: %w", err))
			return
		}
		observer.OnSetSuccess()
	}, observer.OnSetFailure)
}

func (s *session) chain(f func(), onDisposed func(error)) {
	if !s.ops.Execute(f) {
		onDisposed(errSessionDisposed)
	}
}

// AddICECandidate implements orchestrator.Session.
func (s *session) AddICECandidate(candidate *rtc.ICECandidate) error {
	if candidate.Candidate == "" {
		// Some clients signal the end of candidates this way.
		return nil
	}
	mid := candidate.SDPMid
	index := uint16(candidate.SDPMLineIndex)
	if err := s.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}); err != nil {
		return fmt.Errorf("failed to add ice candidate: %w", err)
	}
	return nil
}

// Dispose implements orchestrator.Session.
func (s *session) Dispose() error {
	s.Lock()
	if s.disposed {
		s.Unlock()
		return nil
	}
	s.disposed = true
	onDispose := s.onDispose
	s.Unlock()

	s.ops.Stop()
	if onDispose != nil {
		onDispose()
	}

	s.logger.Debugln("closing peer connection")
	if err := s.pc.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}
