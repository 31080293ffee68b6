/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package orchestrator_test

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator/orchestratortest"
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

var logger = &logrus.Logger{
	Out:       os.Stderr,
	Formatter: &logrus.TextFormatter{DisableColors: true},
	Level:     logrus.DebugLevel,
}

const waitTimeout = 5 * time.Second

func newTestOrchestrator(t *testing.T, autoComplete bool) (*orchestrator.Orchestrator, *orchestratortest.Engine) {
	engine := orchestratortest.NewEngine(autoComplete)
	o, err := orchestrator.New(engine, &orchestratortest.Events{Recorder: engine.Recorder}, &orchestrator.Options{
		Logger: logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	return o, engine
}

// settle flushes repeatedly so that callbacks queued by earlier operations
// have run as well.
func settle(o *orchestrator.Orchestrator) {
	for i := 0; i < 5; i++ {
		o.Flush()
	}
}

func mustCreateSession(t *testing.T, o *orchestrator.Orchestrator, engine *orchestratortest.Engine, params *rtc.RoomParameters) *orchestratortest.Session {
	if err := o.CreateFactory(); err != nil {
		t.Fatal(err)
	}
	if err := o.CreateSession(params); err != nil {
		t.Fatal(err)
	}
	session := engine.WaitForSession(waitTimeout)
	if session == nil {
		t.Fatal("session was not created")
	}
	return session
}

func candidate(text string) *rtc.ICECandidate {
	return &rtc.ICECandidate{
		SDPMid:        "0",
		SDPMLineIndex: 0,
		Candidate:     text,
	}
}

func assertBefore(t *testing.T, recorder *orchestratortest.Recorder, first, second string) {
	t.Helper()
	i, j := recorder.Index(first), recorder.Index(second)
	if i < 0 {
		t.Fatalf("missing entry %q in %v", first, recorder.Entries())
	}
	if j < 0 {
		t.Fatalf("missing entry %q in %v", second, recorder.Entries())
	}
	if i >= j {
		t.Errorf("entry %q (%d) not before %q (%d): %v", first, i, second, j, recorder.Entries())
	}
}

func TestNewRequiresOptions(t *testing.T) {
	engine := orchestratortest.NewEngine(true)
	if _, err := orchestrator.New(nil, nil, &orchestrator.Options{Logger: logger}); err == nil {
		t.Error("expected error without engine")
	}
	if _, err := orchestrator.New(engine, nil, nil); err == nil {
		t.Error("expected error without options")
	}
	if _, err := orchestrator.New(engine, nil, &orchestrator.Options{}); err == nil {
		t.Error("expected error without logger")
	}
}

func TestSendMessageBeforeSession(t *testing.T) {
	o, _ := newTestOrchestrator(t, true)
	defer o.Close()

	err := o.SendMessage("hello")
	if !errors.Is(err, orchestrator.ErrChannelUnavailable) {
		t.Errorf("wrong error: got %v want %v", err, orchestrator.ErrChannelUnavailable)
	}
}

func TestSessionPolicy(t *testing.T) {
	o, engine := newTestOrchestrator(t, true)
	defer o.Close()

	servers := []*rtc.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}}
	session := mustCreateSession(t, o, engine, &rtc.RoomParameters{ICEServers: servers})
	settle(o)

	config := session.Config
	if !config.GatherContinually {
		t.Error("gathering is not continual")
	}
	if config.BundlePolicy != orchestrator.BundlePolicyMaxBundle {
		t.Errorf("wrong bundle policy: got %v", config.BundlePolicy)
	}
	if config.RTCPMuxPolicy != orchestrator.RTCPMuxPolicyRequire {
		t.Errorf("wrong rtcp mux policy: got %v", config.RTCPMuxPolicy)
	}
	if !config.DisableTCPCandidates {
		t.Error("tcp candidates are not disabled")
	}
	if len(config.ICEServers) != 1 || config.ICEServers[0] != servers[0] {
		t.Errorf("room ice servers not used: got %v", config.ICEServers)
	}

	entry := "session:createDataChannel:" + orchestrator.DefaultDataChannelLabel + ":ordered=true"
	if engine.Recorder.Index(entry) < 0 {
		t.Errorf("data channel not created eagerly: %v", engine.Recorder.Entries())
	}
}

func TestInitiatorNegotiation(t *testing.T) {
	o, engine := newTestOrchestrator(t, false)
	recorder := engine.Recorder

	session := mustCreateSession(t, o, engine, &rtc.RoomParameters{Initiator: true})
	o.CreateOffer()
	o.AddRemoteCandidate(candidate("c1"))
	o.AddRemoteCandidate(candidate("c2"))
	o.AddRemoteCandidate(candidate("c3"))
	settle(o)

	// Create offer, then set local.
	if !session.Complete() {
		t.Fatal("create offer was not requested")
	}
	settle(o)
	if !session.Complete() {
		t.Fatal("set local description was not requested")
	}
	settle(o)

	if recorder.Index("events:local:offer") < 0 {
		t.Fatalf("offer not emitted: %v", recorder.Entries())
	}
	if recorder.Index("session:addCandidate:c1") >= 0 {
		t.Fatal("candidates drained before remote description was set")
	}

	o.SetRemoteDescription(rtc.NewSessionDescription(rtc.SDPTypeAnswer, "answer"))
	settle(o)
	if !session.Complete() {
		t.Fatal("set remote description was not requested")
	}
	settle(o)

	assertBefore(t, recorder, "events:local:offer", "session:addCandidate:c1")
	assertBefore(t, recorder, "session:addCandidate:c1", "session:addCandidate:c2")
	assertBefore(t, recorder, "session:addCandidate:c2", "session:addCandidate:c3")

	// Candidates after the drain are applied directly.
	o.AddRemoteCandidate(candidate("c4"))
	settle(o)
	assertBefore(t, recorder, "session:addCandidate:c3", "session:addCandidate:c4")

	session.DataChannel().Open()
	settle(o)
	if err := o.SendMessage("hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	settle(o)
	if recorder.Index("datachannel:send:hello") < 0 {
		t.Errorf("message was not written: %v", recorder.Entries())
	}

	if recorder.Count("events:local:offer") != 1 {
		t.Errorf("offer emitted more than once: %v", recorder.Entries())
	}
	if recorder.Index("session:create:answer") >= 0 {
		t.Error("answer created for initiator")
	}

	o.Close()
	<-o.Done()

	assertBefore(t, recorder, "datachannel:dispose", "session:dispose")
	assertBefore(t, recorder, "session:dispose", "factory:dispose")
	assertBefore(t, recorder, "factory:dispose", "events:closed")
}

func TestAnswererNegotiation(t *testing.T) {
	o, engine := newTestOrchestrator(t, true)
	recorder := engine.Recorder

	offer := rtc.NewSessionDescription(rtc.SDPTypeOffer, "offer")
	params := &rtc.RoomParameters{
		Initiator:     false,
		OfferSDP:      offer,
		ICECandidates: []*rtc.ICECandidate{candidate("c1"), candidate("c2")},
	}
	mustCreateSession(t, o, engine, params)
	o.SetRemoteDescription(params.OfferSDP)
	o.CreateAnswer()
	for _, c := range params.ICECandidates {
		o.AddRemoteCandidate(c)
	}

	if !recorder.WaitFor("session:addCandidate:c2", waitTimeout) {
		t.Fatalf("candidates not drained: %v", recorder.Entries())
	}
	assertBefore(t, recorder, "session:setRemote:offer", "session:create:answer")
	assertBefore(t, recorder, "session:setLocal:answer", "events:local:answer")
	assertBefore(t, recorder, "events:local:answer", "session:addCandidate:c1")
	assertBefore(t, recorder, "session:addCandidate:c1", "session:addCandidate:c2")

	if recorder.Index("events:local:offer") >= 0 {
		t.Error("offer emitted by answerer")
	}

	o.Close()
	<-o.Done()
}

func TestDrainOnce(t *testing.T) {
	o, engine := newTestOrchestrator(t, true)
	defer o.Close()
	recorder := engine.Recorder

	mustCreateSession(t, o, engine, &rtc.RoomParameters{Initiator: true})
	o.AddRemoteCandidate(candidate("c1"))
	o.CreateOffer()
	o.SetRemoteDescription(rtc.NewSessionDescription(rtc.SDPTypeAnswer, "answer"))
	if !recorder.WaitFor("session:addCandidate:c1", waitTimeout) {
		t.Fatalf("candidate not drained: %v", recorder.Entries())
	}

	// Additional completion signals must not replay the queue.
	o.SetRemoteDescription(rtc.NewSessionDescription(rtc.SDPTypeAnswer, "answer"))
	o.SetRemoteDescription(rtc.NewSessionDescription(rtc.SDPTypeAnswer, "answer"))
	settle(o)

	if n := recorder.Count("session:addCandidate:c1"); n != 1 {
		t.Errorf("candidate applied wrong number of times: got %v want %v", n, 1)
	}
}

func TestRoleExclusivity(t *testing.T) {
	o, engine := newTestOrchestrator(t, true)
	defer o.Close()
	recorder := engine.Recorder

	mustCreateSession(t, o, engine, &rtc.RoomParameters{Initiator: true})
	o.CreateOffer()
	o.CreateAnswer()
	settle(o)

	if recorder.Index("session:create:answer") >= 0 {
		t.Errorf("answer created after offer: %v", recorder.Entries())
	}
	if n := recorder.Count("session:create:offer"); n != 1 {
		t.Errorf("wrong number of offers: got %v want %v", n, 1)
	}
}

func TestCloseWithoutSession(t *testing.T) {
	o, engine := newTestOrchestrator(t, true)

	if err := o.Close(); err != nil {
		t.Fatal(err)
	}
	if err := o.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-o.Done():
	case <-time.After(waitTimeout):
		t.Fatal("orchestrator did not finish")
	}
	if err := o.Close(); err != nil {
		t.Fatal(err)
	}

	if n := engine.Recorder.Count("events:closed"); n != 1 {
		t.Errorf("wrong number of closed events: got %v want %v", n, 1)
	}
}

func TestCloseTwiceWithSession(t *testing.T) {
	o, engine := newTestOrchestrator(t, true)

	mustCreateSession(t, o, engine, &rtc.RoomParameters{Initiator: true})
	o.Close()
	o.Close()
	<-o.Done()

	recorder := engine.Recorder
	if n := recorder.Count("events:closed"); n != 1 {
		t.Errorf("wrong number of closed events: got %v want %v", n, 1)
	}
	if n := recorder.Count("session:dispose"); n != 1 {
		t.Errorf("session disposed wrong number of times: got %v want %v", n, 1)
	}
}

func TestPostCloseSilence(t *testing.T) {
	o, engine := newTestOrchestrator(t, false)
	recorder := engine.Recorder

	session := mustCreateSession(t, o, engine, &rtc.RoomParameters{Initiator: true})
	o.CreateOffer()
	settle(o)

	o.Close()
	<-o.Done()

	// Late transport callbacks.
	session.Complete()
	session.Observer.OnICECandidate(candidate("late"))
	session.Observer.OnICEConnectionChange(rtc.ICEConnectionStateConnected)
	session.DataChannel().Receive("late")

	if err := o.AddRemoteCandidate(candidate("late")); !errors.Is(err, orchestrator.ErrClosed) {
		t.Errorf("wrong error: got %v want %v", err, orchestrator.ErrClosed)
	}
	if err := o.SendMessage("late"); err == nil {
		t.Error("send after close succeeded")
	}

	entries := recorder.Entries()
	if entries[len(entries)-1] != "events:closed" {
		t.Errorf("events delivered after close: %v", entries)
	}
}

func TestCreateFailureIsTerminalError(t *testing.T) {
	o, engine := newTestOrchestrator(t, true)
	defer o.Close()
	engine.FailCreate = true

	mustCreateSession(t, o, engine, &rtc.RoomParameters{Initiator: true})
	o.CreateOffer()
	if !engine.Recorder.WaitFor("events:error", waitTimeout) {
		t.Fatalf("error not reported: %v", engine.Recorder.Entries())
	}
	if engine.Recorder.Index("events:local:offer") >= 0 {
		t.Error("offer emitted after failure")
	}
}

func TestSetFailureIsTerminalError(t *testing.T) {
	o, engine := newTestOrchestrator(t, false)
	defer o.Close()

	session := mustCreateSession(t, o, engine, &rtc.RoomParameters{})
	o.SetRemoteDescription(rtc.NewSessionDescription(rtc.SDPTypeOffer, "offer"))
	settle(o)
	if !session.Fail(errors.New("bad sdp")) {
		t.Fatal("set remote description was not requested")
	}
	if !engine.Recorder.WaitFor("events:error", waitTimeout) {
		t.Fatalf("error not reported: %v", engine.Recorder.Entries())
	}
}

func TestTransportEventsForwarded(t *testing.T) {
	o, engine := newTestOrchestrator(t, true)
	defer o.Close()
	recorder := engine.Recorder

	session := mustCreateSession(t, o, engine, &rtc.RoomParameters{Initiator: true})
	session.Observer.OnICECandidate(candidate("local1"))
	session.Observer.OnICEConnectionChange(rtc.ICEConnectionStateConnected)
	session.DataChannel().Receive("hi there")

	for _, entry := range []string{
		"events:candidate:local1",
		"events:ice:connected",
		"events:message:hi there",
	} {
		if !recorder.WaitFor(entry, waitTimeout) {
			t.Errorf("missing event %q: %v", entry, recorder.Entries())
		}
	}
}

func TestCandidateWithoutSessionDropped(t *testing.T) {
	o, engine := newTestOrchestrator(t, true)
	defer o.Close()

	if err := o.AddRemoteCandidate(candidate("early")); err != nil {
		t.Fatal(err)
	}
	mustCreateSession(t, o, engine, &rtc.RoomParameters{Initiator: true})
	o.CreateOffer()
	o.SetRemoteDescription(rtc.NewSessionDescription(rtc.SDPTypeAnswer, "answer"))
	settle(o)

	if engine.Recorder.Index("session:addCandidate:early") >= 0 {
		t.Error("candidate without session was applied")
	}
}
