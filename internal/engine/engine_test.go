/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package engine

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	cfg "stash.kopano.io/kwm/kwmdatachannel/config"
	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

var logger = &logrus.Logger{
	Out:       os.Stderr,
	Formatter: &logrus.TextFormatter{DisableColors: true},
	Level:     logrus.DebugLevel,
}

type testDescriptionObserver struct {
	sdpCh chan *rtc.SessionDescription
	errCh chan error
	setCh chan struct{}
}

func newTestDescriptionObserver() *testDescriptionObserver {
	return &testDescriptionObserver{
		sdpCh: make(chan *rtc.SessionDescription, 1),
		errCh: make(chan error, 1),
		setCh: make(chan struct{}, 1),
	}
}

func (o *testDescriptionObserver) OnCreateSuccess(sdp *rtc.SessionDescription) { o.sdpCh <- sdp }
func (o *testDescriptionObserver) OnSetSuccess()                              { o.setCh <- struct{}{} }
func (o *testDescriptionObserver) OnCreateFailure(err error)                  { o.errCh <- err }
func (o *testDescriptionObserver) OnSetFailure(err error)                     { o.errCh <- err }

type testSessionObserver struct{}

func (o *testSessionObserver) OnICECandidate(candidate *rtc.ICECandidate)         {}
func (o *testSessionObserver) OnICEConnectionChange(state rtc.ICEConnectionState) {}
func (o *testSessionObserver) OnDataChannel(channel orchestrator.DataChannel) orchestrator.DataChannelObserver {
	return nil
}

type testDataChannelObserver struct{}

func (o *testDataChannelObserver) OnStateChange(state orchestrator.DataChannelState) {}
func (o *testDataChannelObserver) OnMessage(data []byte, isString bool)             {}

func TestNewNetworkTypes(t *testing.T) {
	e, err := New(&cfg.Config{
		Logger:          logger,
		ICENetworkTypes: []string{"udp4", "TCP4", "bogus"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(e.networkTypes) != 2 {
		t.Fatalf("wrong network types: got %v", e.networkTypes)
	}

	filtered := filterNetworkTypes(e.networkTypes, true)
	if len(filtered) != 1 || filtered[0] != webrtc.NetworkTypeUDP4 {
		t.Errorf("tcp types not filtered: got %v", filtered)
	}

	if _, err := New(&cfg.Config{
		Logger:          logger,
		ICENetworkTypes: []string{"bogus"},
	}); err == nil {
		t.Error("expected error for empty network type list")
	}
}

func TestNewInvalidPortRange(t *testing.T) {
	if _, err := New(&cfg.Config{
		Logger:                   logger,
		ICEEphemeralUDPPortRange: [2]uint16{20000, 10000},
	}); err == nil {
		t.Error("expected error for invalid port range")
	}
}

func TestNewConfiguration(t *testing.T) {
	configuration := newConfiguration(&orchestrator.SessionConfig{
		ICEServers: []*rtc.ICEServer{{
			URLs:       []string{"turn:turn.example.org:3478"},
			Username:   "user",
			Credential: "secret",
		}},
		BundlePolicy:  orchestrator.BundlePolicyMaxBundle,
		RTCPMuxPolicy: orchestrator.RTCPMuxPolicyRequire,
	})

	if configuration.BundlePolicy != webrtc.BundlePolicyMaxBundle {
		t.Errorf("wrong bundle policy: got %v", configuration.BundlePolicy)
	}
	if configuration.RTCPMuxPolicy != webrtc.RTCPMuxPolicyRequire {
		t.Errorf("wrong rtcp mux policy: got %v", configuration.RTCPMuxPolicy)
	}
	if len(configuration.ICEServers) != 1 || configuration.ICEServers[0].Username != "user" {
		t.Errorf("wrong ice servers: got %v", configuration.ICEServers)
	}
}

func TestStateMapping(t *testing.T) {
	for pionState, want := range map[webrtc.ICEConnectionState]rtc.ICEConnectionState{
		webrtc.ICEConnectionStateNew:          rtc.ICEConnectionStateNew,
		webrtc.ICEConnectionStateChecking:     rtc.ICEConnectionStateChecking,
		webrtc.ICEConnectionStateConnected:    rtc.ICEConnectionStateConnected,
		webrtc.ICEConnectionStateCompleted:    rtc.ICEConnectionStateCompleted,
		webrtc.ICEConnectionStateFailed:       rtc.ICEConnectionStateFailed,
		webrtc.ICEConnectionStateDisconnected: rtc.ICEConnectionStateDisconnected,
		webrtc.ICEConnectionStateClosed:       rtc.ICEConnectionStateClosed,
	} {
		if got := asICEConnectionState(pionState); got != want {
			t.Errorf("wrong state for %v: got %v want %v", pionState, got, want)
		}
	}
	if got := asDataChannelState(webrtc.DataChannelStateOpen); got != orchestrator.DataChannelStateOpen {
		t.Errorf("wrong data channel state: got %v", got)
	}
}

func TestSessionCreateOffer(t *testing.T) {
	e, err := New(&cfg.Config{
		Logger: logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	factory, err := e.NewFactory()
	if err != nil {
		t.Fatal(err)
	}
	defer factory.Dispose()

	session, err := factory.NewSession(&orchestrator.SessionConfig{
		BundlePolicy:         orchestrator.BundlePolicyMaxBundle,
		RTCPMuxPolicy:        orchestrator.RTCPMuxPolicyRequire,
		DisableTCPCandidates: true,
	}, &testSessionObserver{})
	if err != nil {
		t.Fatal(err)
	}

	channel, err := session.CreateDataChannel(orchestrator.DefaultDataChannelLabel, &orchestrator.DataChannelInit{
		Ordered: true,
	}, &testDataChannelObserver{})
	if err != nil {
		t.Fatal(err)
	}
	if channel.Label() != orchestrator.DefaultDataChannelLabel {
		t.Errorf("wrong label: got %v", channel.Label())
	}
	if channel.State() == orchestrator.DataChannelStateOpen {
		t.Error("data channel open before negotiation")
	}
	if err := channel.SendText("too early"); err == nil {
		t.Error("send on unopened data channel succeeded")
	}

	observer := newTestDescriptionObserver()
	session.CreateOffer(observer)
	select {
	case sdp := <-observer.sdpCh:
		if sdp.Type != rtc.SDPTypeOffer {
			t.Errorf("wrong sdp type: got %v", sdp.Type)
		}
		if !strings.Contains(sdp.SDP, "m=application") {
			t.Errorf("offer without application section: %v", sdp.SDP)
		}
	case err := <-observer.errCh:
		t.Fatal(err)
	case <-time.After(5 * time.Second):
		t.Fatal("offer not created")
	}

	if err := session.Dispose(); err != nil {
		t.Fatal(err)
	}

	// Operations after dispose fail instead of hanging.
	session.CreateOffer(observer)
	select {
	case err := <-observer.errCh:
		if err != errSessionDisposed {
			t.Errorf("wrong error: got %v want %v", err, errSessionDisposed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no failure after dispose")
	}
}
