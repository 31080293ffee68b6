/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package engine

import (
	"errors"
	"sync/atomic"

	"github.com/orcaman/concurrent-map"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

var errFactoryDisposed = errors.New("factory disposed")

type factory struct {
	engine *Engine
	logger logrus.FieldLogger

	disposed int32
	sessions cmap.ConcurrentMap
}

func newFactory(e *Engine) *factory {
	return &factory{
		engine: e,
		logger: e.logger,

		sessions: cmap.New(),
	}
}

// NewSession implements orchestrator.Factory.
func (f *factory) NewSession(config *orchestrator.SessionConfig, observer orchestrator.SessionObserver) (orchestrator.Session, error) {
	if atomic.LoadInt32(&f.disposed) == 1 {
		return nil, errFactoryDisposed
	}

	id := newRandomString(12)
	logger := f.logger.WithField("session", id)

	api, err := f.engine.newAPI(logger, config.DisableTCPCandidates)
	if err != nil {
		return nil, err
	}

	if config.GatherContinually {
		// Gathering in pion runs until the agent is closed.
		logger.Debugln("continual gathering requested")
	}

	s, err := newSession(id, api, newConfiguration(config), observer, logger)
	if err != nil {
		return nil, err
	}

	f.sessions.Set(id, s)
	s.onDispose = func() {
		f.sessions.Remove(id)
	}

	return s, nil
}

// Dispose implements orchestrator.Factory. Sessions which are still around
// are disposed as well.
func (f *factory) Dispose() error {
	if !atomic.CompareAndSwapInt32(&f.disposed, 0, 1) {
		return nil
	}

	var err error
	for _, item := range f.sessions.Items() {
		if disposeErr := item.(*session).Dispose(); disposeErr != nil {
			err = disposeErr
		}
	}
	return err
}

func newConfiguration(config *orchestrator.SessionConfig) webrtc.Configuration {
	configuration := webrtc.Configuration{
		ICEServers:    make([]webrtc.ICEServer, 0, len(config.ICEServers)),
		BundlePolicy:  webrtc.BundlePolicyBalanced,
		RTCPMuxPolicy: webrtc.RTCPMuxPolicyNegotiate,
	}
	for _, server := range config.ICEServers {
		configuration.ICEServers = append(configuration.ICEServers, webrtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	if config.BundlePolicy == orchestrator.BundlePolicyMaxBundle {
		configuration.BundlePolicy = webrtc.BundlePolicyMaxBundle
	}
	if config.RTCPMuxPolicy == orchestrator.RTCPMuxPolicyRequire {
		configuration.RTCPMuxPolicy = webrtc.RTCPMuxPolicyRequire
	}

	return configuration
}

func asICEConnectionState(state webrtc.ICEConnectionState) rtc.ICEConnectionState {
	switch state {
	case webrtc.ICEConnectionStateChecking:
		return rtc.ICEConnectionStateChecking
	case webrtc.ICEConnectionStateConnected:
		return rtc.ICEConnectionStateConnected
	case webrtc.ICEConnectionStateCompleted:
		return rtc.ICEConnectionStateCompleted
	case webrtc.ICEConnectionStateFailed:
		return rtc.ICEConnectionStateFailed
	case webrtc.ICEConnectionStateDisconnected:
		return rtc.ICEConnectionStateDisconnected
	case webrtc.ICEConnectionStateClosed:
		return rtc.ICEConnectionStateClosed
	default:
		return rtc.ICEConnectionStateNew
	}
}

func asDataChannelState(state webrtc.DataChannelState) orchestrator.DataChannelState {
	switch state {
	case webrtc.DataChannelStateOpen:
		return orchestrator.DataChannelStateOpen
	case webrtc.DataChannelStateClosing:
		return orchestrator.DataChannelStateClosing
	case webrtc.DataChannelStateClosed:
		return orchestrator.DataChannelStateClosed
	default:
		return orchestrator.DataChannelStateConnecting
	}
}

func asSDPType(sdpType rtc.SDPType) webrtc.SDPType {
	switch sdpType {
	case rtc.SDPTypeAnswer:
		return webrtc.SDPTypeAnswer
	default:
		return webrtc.SDPTypeOffer
	}
}
