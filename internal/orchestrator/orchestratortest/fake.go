/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package orchestratortest provides an in memory transport engine and event
// recorder for tests.
package orchestratortest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

// Recorder collects entries from all fakes in order.
type Recorder struct {
	mutex   sync.Mutex
	entries []string
}

// Add appends a formatted entry.
func (r *Recorder) Add(format string, args ...interface{}) {
	r.mutex.Lock()
	r.entries = append(r.entries, fmt.Sprintf(format, args...))
	r.mutex.Unlock()
}

// Entries returns a copy of all entries.
func (r *Recorder) Entries() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.entries...)
}

// Index returns the position of the first matching entry or -1.
func (r *Recorder) Index(entry string) int {
	for i, e := range r.Entries() {
		if e == entry {
			return i
		}
	}
	return -1
}

// Count returns how often the entry was recorded.
func (r *Recorder) Count(entry string) int {
	n := 0
	for _, e := range r.Entries() {
		if e == entry {
			n++
		}
	}
	return n
}

// WaitFor waits until entry has been recorded or the timeout expired.
func (r *Recorder) WaitFor(entry string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.Index(entry) >= 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Engine is a fake orchestrator.Engine.
type Engine struct {
	Recorder *Recorder

	// AutoComplete makes sessions report success for every create and set
	// operation immediately.
	AutoComplete bool
	// FailCreate makes sessions report create failures.
	FailCreate bool

	mutex     sync.Mutex
	factories []*Factory
}

// NewEngine creates a fake engine with a fresh Recorder.
func NewEngine(autoComplete bool) *Engine {
	return &Engine{
		Recorder:     &Recorder{},
		AutoComplete: autoComplete,
	}
}

// NewFactory implements orchestrator.Engine.
func (e *Engine) NewFactory() (orchestrator.Factory, error) {
	e.Recorder.Add("engine:newFactory")
	f := &Factory{engine: e}

	e.mutex.Lock()
	e.factories = append(e.factories, f)
	e.mutex.Unlock()

	return f, nil
}

// Session returns the most recently created session or nil.
func (e *Engine) Session() *Session {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	for i := len(e.factories) - 1; i >= 0; i-- {
		if s := e.factories[i].current(); s != nil {
			return s
		}
	}
	return nil
}

// WaitForSession waits until a session was created.
func (e *Engine) WaitForSession(timeout time.Duration) *Session {
	deadline := time.Now().Add(timeout)
	for {
		if s := e.Session(); s != nil {
			return s
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Factory is a fake orchestrator.Factory.
type Factory struct {
	engine *Engine

	mutex   sync.Mutex
	session *Session
}

func (f *Factory) current() *Session {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.session
}

// NewSession implements orchestrator.Factory.
func (f *Factory) NewSession(config *orchestrator.SessionConfig, observer orchestrator.SessionObserver) (orchestrator.Session, error) {
	f.engine.Recorder.Add("factory:newSession")
	s := &Session{
		engine:   f.engine,
		Config:   config,
		Observer: observer,
	}

	f.mutex.Lock()
	f.session = s
	f.mutex.Unlock()

	return s, nil
}

// Dispose implements orchestrator.Factory.
func (f *Factory) Dispose() error {
	f.engine.Recorder.Add("factory:dispose")
	return nil
}

// Session is a fake orchestrator.Session.
type Session struct {
	engine *Engine

	Config   *orchestrator.SessionConfig
	Observer orchestrator.SessionObserver

	mutex       sync.Mutex
	dataChannel *DataChannel
	pending     []pendingOperation
	remoteSet   bool
	disposed    bool
}

type pendingOperation struct {
	observer orchestrator.DescriptionObserver
	sdp      *rtc.SessionDescription
}

// CreateDataChannel implements orchestrator.Session.
func (s *Session) CreateDataChannel(label string, init *orchestrator.DataChannelInit, observer orchestrator.DataChannelObserver) (orchestrator.DataChannel, error) {
	s.engine.Recorder.Add("session:createDataChannel:%s:ordered=%v", label, init.Ordered)
	dc := &DataChannel{
		recorder: s.engine.Recorder,
		label:    label,
		observer: observer,
	}

	s.mutex.Lock()
	s.dataChannel = dc
	s.mutex.Unlock()

	return dc, nil
}

// DataChannel returns the data channel created on this session.
func (s *Session) DataChannel() *DataChannel {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.dataChannel
}

func (s *Session) create(sdpType rtc.SDPType, observer orchestrator.DescriptionObserver) {
	s.engine.Recorder.Add("session:create:%s", sdpType)
	if s.engine.FailCreate {
		observer.OnCreateFailure(errors.New("create failed"))
		return
	}
	sdp := rtc.NewSessionDescription(sdpType, "fake "+string(sdpType))
	if s.engine.AutoComplete {
		observer.OnCreateSuccess(sdp)
		return
	}
	s.queue(observer, sdp)
}

// CreateOffer implements orchestrator.Session.
func (s *Session) CreateOffer(observer orchestrator.DescriptionObserver) {
	s.create(rtc.SDPTypeOffer, observer)
}

// CreateAnswer implements orchestrator.Session.
func (s *Session) CreateAnswer(observer orchestrator.DescriptionObserver) {
	s.create(rtc.SDPTypeAnswer, observer)
}

// SetLocalDescription implements orchestrator.Session.
func (s *Session) SetLocalDescription(observer orchestrator.DescriptionObserver, sdp *rtc.SessionDescription) {
	s.engine.Recorder.Add("session:setLocal:%s", sdp.Type)
	if s.engine.AutoComplete {
		observer.OnSetSuccess()
		return
	}
	s.queue(observer, nil)
}

// SetRemoteDescription implements orchestrator.Session.
func (s *Session) SetRemoteDescription(observer orchestrator.DescriptionObserver, sdp *rtc.SessionDescription) {
	s.engine.Recorder.Add("session:setRemote:%s", sdp.Type)
	s.mutex.Lock()
	s.remoteSet = true
	s.mutex.Unlock()
	if s.engine.AutoComplete {
		observer.OnSetSuccess()
		return
	}
	s.queue(observer, nil)
}

func (s *Session) queue(observer orchestrator.DescriptionObserver, sdp *rtc.SessionDescription) {
	s.mutex.Lock()
	s.pending = append(s.pending, pendingOperation{observer, sdp})
	s.mutex.Unlock()
}

// Pending returns the number of operations waiting for Complete.
func (s *Session) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.pending)
}

// Complete reports success for the oldest pending operation. It returns
// false if nothing was pending.
func (s *Session) Complete() bool {
	s.mutex.Lock()
	if len(s.pending) == 0 {
		s.mutex.Unlock()
		return false
	}
	op := s.pending[0]
	s.pending = s.pending[1:]
	s.mutex.Unlock()

	if op.sdp != nil {
		op.observer.OnCreateSuccess(op.sdp)
	} else {
		op.observer.OnSetSuccess()
	}
	return true
}

// Fail reports failure for the oldest pending operation.
func (s *Session) Fail(err error) bool {
	s.mutex.Lock()
	if len(s.pending) == 0 {
		s.mutex.Unlock()
		return false
	}
	op := s.pending[0]
	s.pending = s.pending[1:]
	s.mutex.Unlock()

	if op.sdp != nil {
		op.observer.OnCreateFailure(err)
	} else {
		op.observer.OnSetFailure(err)
	}
	return true
}

// AddICECandidate implements orchestrator.Session.
func (s *Session) AddICECandidate(candidate *rtc.ICECandidate) error {
	s.engine.Recorder.Add("session:addCandidate:%s", candidate.Candidate)
	return nil
}

// Dispose implements orchestrator.Session.
func (s *Session) Dispose() error {
	s.engine.Recorder.Add("session:dispose")
	s.mutex.Lock()
	s.disposed = true
	s.mutex.Unlock()
	return nil
}

// Disposed reports whether Dispose was called.
func (s *Session) Disposed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.disposed
}

// DataChannel is a fake orchestrator.DataChannel.
type DataChannel struct {
	recorder *Recorder
	label    string
	observer orchestrator.DataChannelObserver

	mutex sync.Mutex
	state orchestrator.DataChannelState
}

// Label implements orchestrator.DataChannel.
func (dc *DataChannel) Label() string {
	return dc.label
}

// State implements orchestrator.DataChannel.
func (dc *DataChannel) State() orchestrator.DataChannelState {
	dc.mutex.Lock()
	defer dc.mutex.Unlock()
	return dc.state
}

// SendText implements orchestrator.DataChannel.
func (dc *DataChannel) SendText(text string) error {
	if dc.State() != orchestrator.DataChannelStateOpen {
		return errors.New("data channel not open")
	}
	dc.recorder.Add("datachannel:send:%s", text)
	return nil
}

// Dispose implements orchestrator.DataChannel.
func (dc *DataChannel) Dispose() error {
	dc.recorder.Add("datachannel:dispose")
	dc.setState(orchestrator.DataChannelStateClosed)
	return nil
}

// Open switches the channel to open and notifies its observer.
func (dc *DataChannel) Open() {
	dc.setState(orchestrator.DataChannelStateOpen)
}

// Receive delivers a text message to the channel observer.
func (dc *DataChannel) Receive(text string) {
	dc.observer.OnMessage([]byte(text), true)
}

func (dc *DataChannel) setState(state orchestrator.DataChannelState) {
	dc.mutex.Lock()
	dc.state = state
	dc.mutex.Unlock()
	dc.observer.OnStateChange(state)
}

// Events is a fake orchestrator.Events recording into a Recorder.
type Events struct {
	Recorder *Recorder
}

// OnLocalDescription implements orchestrator.Events.
func (e *Events) OnLocalDescription(sdp *rtc.SessionDescription) {
	e.Recorder.Add("events:local:%s", sdp.Type)
}

// OnICECandidate implements orchestrator.Events.
func (e *Events) OnICECandidate(candidate *rtc.ICECandidate) {
	e.Recorder.Add("events:candidate:%s", candidate.Candidate)
}

// OnICEConnectionChange implements orchestrator.Events.
func (e *Events) OnICEConnectionChange(state rtc.ICEConnectionState) {
	e.Recorder.Add("events:ice:%s", state)
}

// OnMessage implements orchestrator.Events.
func (e *Events) OnMessage(message string) {
	e.Recorder.Add("events:message:%s", message)
}

// OnPeerConnectionClosed implements orchestrator.Events.
func (e *Events) OnPeerConnectionClosed() {
	e.Recorder.Add("events:closed")
}

// OnPeerConnectionError implements orchestrator.Events.
func (e *Events) OnPeerConnectionError(description string) {
	e.Recorder.Add("events:error")
}
