/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package orchestrator drives the negotiation and lifecycle of a single peer
// connection with one ordered and reliable data channel.
package orchestrator

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmdatachannel/internal/executor"
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

// DefaultDataChannelLabel is the label of the data channel created with
// each session.
const DefaultDataChannelLabel = "P2P MSG DC"

// Events receives the outward notifications of an Orchestrator. All methods
// are called from the Orchestrator's execution context.
type Events interface {
	OnLocalDescription(sdp *rtc.SessionDescription)
	OnICECandidate(candidate *rtc.ICECandidate)
	OnICEConnectionChange(state rtc.ICEConnectionState)
	OnMessage(message string)
	OnPeerConnectionClosed()
	OnPeerConnectionError(description string)
}

// Options define the settings of an Orchestrator.
type Options struct {
	Logger logrus.FieldLogger

	// ICEServers are used when the room parameters provide none.
	ICEServers []*rtc.ICEServer

	DataChannelLabel string
}

// Orchestrator owns a transport session and its negotiation state. All
// operations are queued to a sequential execution context and return
// without waiting for their effect.
type Orchestrator struct {
	logger  logrus.FieldLogger
	options *Options
	engine  Engine

	exec *executor.Executor

	channelOpen atomic.Bool

	// Fields below are only accessed from exec.
	events      Events
	factory     Factory
	session     Session
	dataChannel DataChannel
	state       *negotiationState
	isError     bool
	closed      bool
}

// New creates an Orchestrator using the provided engine which reports to the
// provided events.
func New(engine Engine, events Events, options *Options) (*Orchestrator, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	if options.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	o := &Orchestrator{
		logger:  options.Logger,
		options: options,
		engine:  engine,

		exec: executor.New(),

		events: events,
	}

	return o, nil
}

func (o *Orchestrator) execute(f func()) error {
	if !o.exec.Execute(f) {
		return ErrClosed
	}
	return nil
}

// dispatch queues a transport callback. Callbacks arriving after close are
// dropped here or by the session check.
func (o *Orchestrator) dispatch(f func()) {
	o.exec.Execute(func() {
		if o.session == nil {
			return
		}
		f()
	})
}

// CreateFactory obtains the transport factory from the engine. It must be
// called once before CreateSession.
func (o *Orchestrator) CreateFactory() error {
	return o.execute(func() {
		if o.closed {
			return
		}
		if o.factory != nil {
			o.logger.Warnln("factory already created, ignored")
			return
		}

		factory, err := o.engine.NewFactory()
		if err != nil {
			o.reportError(fmt.Sprintf("failed to create factory: %v", err))
			return
		}
		o.factory = factory
		o.logger.Debugln("factory created")
	})
}

// CreateSession creates the transport session for the provided room
// parameters together with the data channel.
func (o *Orchestrator) CreateSession(params *rtc.RoomParameters) error {
	return o.execute(func() {
		if o.closed {
			return
		}
		if o.session != nil {
			o.logger.Warnln("session already created, ignored")
			return
		}
		if o.factory == nil {
			o.reportError("failed to create session: factory not created")
			return
		}

		config := &SessionConfig{
			ICEServers: o.options.ICEServers,

			GatherContinually:    true,
			BundlePolicy:         BundlePolicyMaxBundle,
			RTCPMuxPolicy:        RTCPMuxPolicyRequire,
			DisableTCPCandidates: true,
		}
		if params != nil && len(params.ICEServers) > 0 {
			config.ICEServers = params.ICEServers
		}

		session, err := o.factory.NewSession(config, &sessionObserver{o})
		if err != nil {
			o.reportError(fmt.Sprintf("failed to create session: %v", err))
			return
		}
		o.session = session
		o.state = &negotiationState{}

		label := o.options.DataChannelLabel
		if label == "" {
			label = DefaultDataChannelLabel
		}
		dataChannel, err := session.CreateDataChannel(label, &DataChannelInit{
			Ordered: true,
		}, &dataChannelObserver{o: o, local: true})
		if err != nil {
			o.reportError(fmt.Sprintf("failed to create data channel: %v", err))
			return
		}
		o.dataChannel = dataChannel

		o.logger.WithField("label", label).Debugln("session created")
	})
}

// CreateOffer makes this side the initiator and requests an offer.
func (o *Orchestrator) CreateOffer() error {
	return o.execute(func() {
		if o.session == nil {
			return
		}
		if !o.state.setRole(RoleInitiator) {
			o.logger.WithField("role", o.state.role).Warnln("create offer ignored, role already set")
			return
		}

		o.logger.Debugln("creating offer")
		o.session.CreateOffer(&descriptionObserver{o, descriptionCreate})
	})
}

// CreateAnswer makes this side the answerer and requests an answer. The
// remote offer must have been set before.
func (o *Orchestrator) CreateAnswer() error {
	return o.execute(func() {
		if o.session == nil {
			return
		}
		if !o.state.setRole(RoleAnswerer) {
			o.logger.WithField("role", o.state.role).Warnln("create answer ignored, role already set")
			return
		}

		o.logger.Debugln("creating answer")
		o.session.CreateAnswer(&descriptionObserver{o, descriptionCreate})
	})
}

// SetRemoteDescription applies the provided remote description.
func (o *Orchestrator) SetRemoteDescription(sdp *rtc.SessionDescription) error {
	return o.execute(func() {
		if o.session == nil {
			return
		}

		o.logger.WithField("type", sdp.Type).Debugln("setting remote description")
		o.session.SetRemoteDescription(&descriptionObserver{o, descriptionSetRemote}, sdp)
	})
}

// AddRemoteCandidate queues the provided candidate until negotiation has
// completed, or adds it to the session directly afterwards. Candidates
// without a session are dropped.
func (o *Orchestrator) AddRemoteCandidate(candidate *rtc.ICECandidate) error {
	return o.execute(func() {
		if o.session == nil {
			o.logger.Debugln("remote candidate without session, dropped")
			return
		}

		if o.state.queue.add(candidate) {
			o.logger.WithField("queued", o.state.queue.len()).Debugln("remote candidate queued")
			return
		}
		if err := o.session.AddICECandidate(candidate); err != nil {
			o.logger.WithError(err).Warnln("failed to add remote candidate")
		}
	})
}

// SendMessage writes the provided text to the data channel. It fails with
// ErrChannelUnavailable when the data channel is not open.
func (o *Orchestrator) SendMessage(text string) error {
	if !o.channelOpen.Load() {
		return ErrChannelUnavailable
	}

	return o.execute(func() {
		if o.dataChannel == nil {
			o.logger.Warnln("send without data channel, dropped")
			return
		}
		if err := o.dataChannel.SendText(text); err != nil {
			o.logger.WithError(err).Errorln("failed to send data channel message")
		}
	})
}

// Close disposes the data channel, session and factory and notifies the
// closed event. Calling Close more than once is a no-op.
func (o *Orchestrator) Close() error {
	err := o.execute(func() {
		o.closeInternal()
		o.exec.Stop()
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Done returns a channel which is closed once Close has completed and all
// queued operations have run.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.exec.Done()
}

func (o *Orchestrator) closeInternal() {
	if o.closed {
		return
	}
	o.closed = true
	o.channelOpen.Store(false)

	o.logger.Debugln("closing")
	if o.dataChannel != nil {
		if err := o.dataChannel.Dispose(); err != nil {
			o.logger.WithError(err).Warnln("failed to dispose data channel")
		}
		o.dataChannel = nil
	}
	if o.session != nil {
		if err := o.session.Dispose(); err != nil {
			o.logger.WithError(err).Warnln("failed to dispose session")
		}
		o.session = nil
	}
	if o.factory != nil {
		if err := o.factory.Dispose(); err != nil {
			o.logger.WithError(err).Warnln("failed to dispose factory")
		}
		o.factory = nil
	}
	o.state = nil
	o.logger.Debugln("closed")

	events := o.events
	o.events = nil
	if events != nil {
		events.OnPeerConnectionClosed()
	}
}

// reportError notifies the first terminal error of this Orchestrator.
func (o *Orchestrator) reportError(description string) {
	o.logger.WithField("error", description).Errorln("peer connection error")
	if o.isError {
		return
	}
	o.isError = true
	if o.events != nil {
		o.events.OnPeerConnectionError(description)
	}
}

func (o *Orchestrator) onCreateSuccess(sdp *rtc.SessionDescription) {
	if o.state.localDescription != nil {
		o.reportError("multiple local descriptions created")
		return
	}
	o.state.localDescription = sdp

	o.logger.WithField("type", sdp.Type).Debugln("setting local description")
	o.session.SetLocalDescription(&descriptionObserver{o, descriptionSetLocal}, sdp)
}

func (o *Orchestrator) onSetSuccess(kind descriptionKind) {
	state := o.state
	switch kind {
	case descriptionSetLocal:
		state.localDescriptionSet = true
	case descriptionSetRemote:
		state.remoteDescriptionSet = true
	}

	switch state.role {
	case RoleInitiator:
		if !state.localDescriptionSet {
			return
		}
		if !state.remoteDescriptionSet {
			// The remote side needs our offer before it can respond.
			o.emitLocalDescription()
			return
		}
		o.drainCandidates()

	case RoleAnswerer:
		if !state.localDescriptionSet {
			return
		}
		o.emitLocalDescription()
		o.drainCandidates()
	}
}

func (o *Orchestrator) emitLocalDescription() {
	if o.state.localEmitted {
		return
	}
	o.state.localEmitted = true

	o.logger.WithField("type", o.state.localDescription.Type).Debugln("local description ready")
	if o.events != nil {
		o.events.OnLocalDescription(o.state.localDescription)
	}
}

func (o *Orchestrator) drainCandidates() {
	if o.state.queue.isDrained() {
		return
	}

	candidates := o.state.queue.drain()
	o.logger.WithField("count", len(candidates)).Debugln("draining remote candidates")
	for _, candidate := range candidates {
		if err := o.session.AddICECandidate(candidate); err != nil {
			o.logger.WithError(err).Warnln("failed to add queued remote candidate")
		}
	}
}

func (o *Orchestrator) onDataChannelStateChange(local bool, state DataChannelState) {
	o.logger.WithFields(logrus.Fields{
		"local": local,
		"state": state,
	}).Debugln("data channel state change")
	if local {
		o.channelOpen.Store(state == DataChannelStateOpen)
	}
}

func (o *Orchestrator) onDataChannelMessage(data []byte) {
	if o.events != nil {
		o.events.OnMessage(string(data))
	}
}
