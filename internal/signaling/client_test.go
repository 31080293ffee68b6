/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package signaling

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
	"stash.kopano.io/kwm/kwmdatachannel/internal/signaling/signalingtest"
)

var logger = &logrus.Logger{
	Out:       ioutil.Discard,
	Formatter: &logrus.TextFormatter{},
	Level:     logrus.DebugLevel,
}

const waitTimeout = 5 * time.Second

type recordedEvents struct {
	params  chan *rtc.RoomParameters
	entries chan string
}

func newRecordedEvents() *recordedEvents {
	return &recordedEvents{
		params:  make(chan *rtc.RoomParameters, 1),
		entries: make(chan string, 100),
	}
}

func (e *recordedEvents) OnConnectedToRoom(params *rtc.RoomParameters) {
	e.params <- params
}

func (e *recordedEvents) OnRemoteDescription(sdp *rtc.SessionDescription) {
	e.entries <- fmt.Sprintf("description:%s:%s", sdp.Type, sdp.SDP)
}

func (e *recordedEvents) OnRemoteICECandidate(candidate *rtc.ICECandidate) {
	e.entries <- "candidate:" + candidate.String()
}

func (e *recordedEvents) OnRemoteICECandidatesRemoved(candidates []*rtc.ICECandidate) {
	e.entries <- fmt.Sprintf("removed:%d", len(candidates))
}

func (e *recordedEvents) OnChannelClose() {
	e.entries <- "close"
}

func (e *recordedEvents) OnChannelError(description string) {
	e.entries <- "error:" + description
}

func (e *recordedEvents) waitParams(t *testing.T) *rtc.RoomParameters {
	t.Helper()
	select {
	case params := <-e.params:
		return params
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for room parameters")
	}
	return nil
}

func (e *recordedEvents) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-e.entries:
		if got != want {
			t.Errorf("unexpected event: got %v want %v", got, want)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("timeout waiting for event %v", want)
	}
}

func connectClient(t *testing.T, server *signalingtest.Server) (*Client, *recordedEvents) {
	t.Helper()
	events := newRecordedEvents()
	client, err := NewClient(events, &Options{
		Logger:     logger,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err = client.Connect(server.URL, "room1"); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return client, events
}

func TestNewClientRequiresArguments(t *testing.T) {
	if _, err := NewClient(nil, &Options{Logger: logger}); err == nil {
		t.Errorf("expected error for nil events")
	}
	if _, err := NewClient(newRecordedEvents(), nil); err == nil {
		t.Errorf("expected error for nil options")
	}
}

func TestConnectInitiator(t *testing.T) {
	server := signalingtest.NewServer()
	defer server.Close()
	server.PCConfig = `{"iceServers":[{"urls":"stun:stun.example.org:3478"},{"urls":["turn:turn.example.org"],"username":"u","credential":"p"}]}`

	client, events := connectClient(t, server)
	defer client.Disconnect()

	params := events.waitParams(t)
	if !params.Initiator {
		t.Errorf("initiator mismatch: got %v want %v", params.Initiator, true)
	}
	if params.ClientID != "client1" {
		t.Errorf("client id mismatch: got %v want %v", params.ClientID, "client1")
	}
	if len(params.ICEServers) != 2 {
		t.Fatalf("ice servers mismatch: got %v want %v", len(params.ICEServers), 2)
	}
	if params.ICEServers[1].Username != "u" {
		t.Errorf("ice server username mismatch: got %v want %v", params.ICEServers[1].Username, "u")
	}
	if params.OfferSDP != nil {
		t.Errorf("initiator received offer: got %v", params.OfferSDP)
	}
	if !server.WaitFor("register:client1", waitTimeout) {
		t.Errorf("client did not register: %v", server.Log())
	}

	client.SendLocalDescription(rtc.NewSessionDescription(rtc.SDPTypeOffer, "v=0"))
	client.SendLocalCandidate(&rtc.ICECandidate{SDPMid: "0", SDPMLineIndex: 0, Candidate: "candidate:1"})

	if !server.WaitFor(`message:client1:{"type":"offer","sdp":"v=0"}`, waitTimeout) {
		t.Errorf("offer not posted: %v", server.Log())
	}
	if !server.WaitFor(`message:client1:{"type":"candidate","label":0,"id":"0","candidate":"candidate:1"}`, waitTimeout) {
		t.Errorf("candidate not posted: %v", server.Log())
	}
}

func TestConnectAnswerer(t *testing.T) {
	server := signalingtest.NewServer()
	defer server.Close()
	server.AddMessage("room1", "peer", `{"type":"offer","sdp":"v=0 offer"}`)
	server.AddMessage("room1", "peer", `{"type":"candidate","label":0,"id":"data","candidate":"candidate:2"}`)

	client, events := connectClient(t, server)
	defer client.Disconnect()

	params := events.waitParams(t)
	if params.Initiator {
		t.Errorf("initiator mismatch: got %v want %v", params.Initiator, false)
	}
	if params.OfferSDP == nil || params.OfferSDP.SDP != "v=0 offer" {
		t.Fatalf("offer mismatch: got %v", params.OfferSDP)
	}
	if len(params.ICECandidates) != 1 || params.ICECandidates[0].SDPMid != "data" {
		t.Errorf("candidates mismatch: got %v", params.ICECandidates)
	}
	if !server.WaitFor("register:client1", waitTimeout) {
		t.Fatalf("client did not register: %v", server.Log())
	}

	client.SendLocalDescription(rtc.NewSessionDescription(rtc.SDPTypeAnswer, "v=0 answer"))
	if !server.WaitFor(`send:client1:{"type":"answer","sdp":"v=0 answer"}`, waitTimeout) {
		t.Errorf("answer not sent over websocket: %v", server.Log())
	}
	if server.Has(`message:client1:{"type":"answer","sdp":"v=0 answer"}`) {
		t.Errorf("answerer posted message to room server")
	}
}

func TestConnectTwice(t *testing.T) {
	server := signalingtest.NewServer()
	defer server.Close()

	client, events := connectClient(t, server)
	defer client.Disconnect()
	events.waitParams(t)

	if err := client.Connect(server.URL, "room1"); err != ErrAlreadyConnected {
		t.Errorf("second connect: got %v want %v", err, ErrAlreadyConnected)
	}
}

func TestRemoteMessages(t *testing.T) {
	server := signalingtest.NewServer()
	defer server.Close()

	client, events := connectClient(t, server)
	defer client.Disconnect()
	events.waitParams(t)
	if !server.WaitFor("register:client1", waitTimeout) {
		t.Fatalf("client did not register: %v", server.Log())
	}

	if err := server.SendTo("room1", "client1", `{"type":"answer","sdp":"v=0 answer"}`); err != nil {
		t.Fatal(err)
	}
	events.expect(t, "description:answer:v=0 answer")

	if err := server.SendTo("room1", "client1", `{"type":"candidate","label":1,"id":"data","candidate":"candidate:3"}`); err != nil {
		t.Fatal(err)
	}
	events.expect(t, "candidate:data:1:candidate:3")

	if err := server.SendTo("room1", "client1", `{"type":"remove-candidates","candidates":[{"type":"candidate","label":0,"id":"0","candidate":"c1"},{"type":"candidate","label":0,"id":"0","candidate":"c2"}]}`); err != nil {
		t.Fatal(err)
	}
	events.expect(t, "removed:2")

	if err := server.SendTo("room1", "client1", `{"type":"offer","sdp":"v=0"}`); err != nil {
		t.Fatal(err)
	}
	events.expect(t, "error:Received offer for call initiator")
}

func TestRemoteBye(t *testing.T) {
	server := signalingtest.NewServer()
	defer server.Close()

	client, events := connectClient(t, server)
	defer client.Disconnect()
	events.waitParams(t)
	if !server.WaitFor("register:client1", waitTimeout) {
		t.Fatalf("client did not register: %v", server.Log())
	}

	if err := server.SendTo("room1", "client1", `{"type":"bye"}`); err != nil {
		t.Fatal(err)
	}
	events.expect(t, "close")
}

func TestWebsocketErrorMessage(t *testing.T) {
	server := signalingtest.NewServer()
	defer server.Close()

	client, events := connectClient(t, server)
	defer client.Disconnect()
	events.waitParams(t)
	if !server.WaitFor("register:client1", waitTimeout) {
		t.Fatalf("client did not register: %v", server.Log())
	}

	if err := server.SendErrorTo("room1", "client1", "unknown client"); err != nil {
		t.Fatal(err)
	}
	events.expect(t, "error:WebSocket error message: unknown client")
}

func TestJoinRoomFull(t *testing.T) {
	server := signalingtest.NewServer()
	defer server.Close()
	server.JoinResult = ResultFull

	client, events := connectClient(t, server)
	defer client.Disconnect()

	events.expect(t, "error:Room response error: FULL")
}

func TestDisconnect(t *testing.T) {
	server := signalingtest.NewServer()
	defer server.Close()

	client, events := connectClient(t, server)
	events.waitParams(t)

	if err := client.Disconnect(); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	select {
	case <-client.Done():
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for disconnect")
	}
	// Disconnect again is a no-op.
	client.Disconnect()

	if !server.WaitFor("delete:client1", waitTimeout) {
		t.Fatalf("websocket registration not deleted: %v", server.Log())
	}

	log := server.Log()
	index := func(entry string) int {
		for i, e := range log {
			if e == entry {
				return i
			}
		}
		return -1
	}
	leave := index("leave:client1")
	bye := index(`send:client1:{"type":"bye"}`)
	del := index("delete:client1")
	if leave < 0 || bye < 0 || del < 0 {
		t.Fatalf("incomplete leave sequence: %v", log)
	}
	if !(leave < bye && bye < del) {
		t.Errorf("leave sequence out of order: %v", log)
	}

	select {
	case entry := <-events.entries:
		t.Errorf("unexpected event after disconnect: %v", entry)
	default:
	}
}

func TestParsePCConfig(t *testing.T) {
	servers, err := parsePCConfig(`{"iceServers":[{"urls":"stun:a"},{"urls":["turn:b","turn:c"]},{"urls":[]}]}`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("servers mismatch: got %v want %v", len(servers), 2)
	}
	if len(servers[1].URLs) != 2 {
		t.Errorf("urls mismatch: got %v want %v", len(servers[1].URLs), 2)
	}

	if _, err = parsePCConfig(`{"iceServers":[{"urls":42}]}`); err == nil {
		t.Errorf("expected error for invalid urls")
	}
}

func TestBoolUnmarshal(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  bool
		err   bool
	}{
		{`"true"`, true, false},
		{`"false"`, false, false},
		{`true`, true, false},
		{`false`, false, false},
		{`"maybe"`, false, true},
	} {
		var b Bool
		err := json.Unmarshal([]byte(tc.input), &b)
		if (err != nil) != tc.err {
			t.Errorf("%s: unexpected error result: %v", tc.input, err)
			continue
		}
		if bool(b) != tc.want {
			t.Errorf("%s: got %v want %v", tc.input, b, tc.want)
		}
	}
}

func TestJoinURL(t *testing.T) {
	got := joinURL("https://example.org/", "message", "room 1", "client1")
	want := "https://example.org/message/room%201/client1"
	if got != want {
		t.Errorf("got %v want %v", got, want)
	}
}
