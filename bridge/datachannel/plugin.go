/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package datachannel binds the signaling client and the connection
// orchestrator into a Plugin which connects to a room and exchanges text
// messages with the remote peer.
package datachannel

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
	"stash.kopano.io/kwm/kwmdatachannel/internal/signaling"
)

// Options define the settings of a Plugin.
type Options struct {
	Logger     logrus.FieldLogger
	HTTPClient *http.Client

	// ICEServers are used when the room provides none.
	ICEServers []*rtc.ICEServer

	DataChannelLabel string
}

// Plugin connects to one room at a time. Its operations acknowledge
// immediately, results are reported as events to the registered EventSink.
type Plugin struct {
	deadlock.Mutex

	id     string
	when   time.Time
	logger logrus.FieldLogger

	engine  orchestrator.Engine
	options *Options
	metrics *metrics

	events eventSlot

	call *call
}

// call is one room connection of a Plugin.
type call struct {
	p      *Plugin
	logger logrus.FieldLogger

	roomURL string
	roomID  string

	orchestrator *orchestrator.Orchestrator
	signaling    *signaling.Client

	initiator atomic.Bool
	connected atomic.Bool

	closeOnce sync.Once
}

// NewPlugin creates a Plugin with the provided id which creates its
// transport sessions with the provided engine.
func NewPlugin(id string, engine orchestrator.Engine, options *Options) (*Plugin, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	if options.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	p := &Plugin{
		id:     id,
		when:   time.Now(),
		logger: options.Logger.WithField("plugin", id),

		engine:  engine,
		options: options,
	}

	return p, nil
}

// ID returns the id of the accociated Plugin.
func (p *Plugin) ID() string {
	return p.id
}

// Listen registers the provided sink for events, replacing any previously
// registered sink.
func (p *Plugin) Listen(sink EventSink) {
	p.events.set(sink)
}

// Cancel removes the registered sink.
func (p *Plugin) Cancel() {
	p.events.set(nil)
}

// unlisten removes the provided sink if it is still registered.
func (p *Plugin) unlisten(sink EventSink) {
	p.events.Lock()
	if p.events.sink == sink {
		p.events.sink = nil
	}
	p.events.Unlock()
}

// ConnectToRoom starts joining the room. The peer connection is created and
// negotiated once the room was joined.
func (p *Plugin) ConnectToRoom(roomURL, roomID string) error {
	if roomURL == "" || roomID == "" {
		return ErrInvalidRoom
	}

	p.Lock()
	if p.call != nil {
		p.Unlock()
		return ErrAlreadyConnected
	}
	c, err := p.newCall(roomURL, roomID)
	if err != nil {
		p.Unlock()
		return err
	}
	p.call = c
	p.Unlock()

	c.logger.Infoln("connecting to room")
	p.metrics.connect()

	if err = c.orchestrator.CreateFactory(); err != nil {
		p.disconnectCall(c)
		return err
	}
	if err = c.signaling.Connect(roomURL, roomID); err != nil {
		p.disconnectCall(c)
		return err
	}
	return nil
}

func (p *Plugin) newCall(roomURL, roomID string) (*call, error) {
	c := &call{
		p: p,
		logger: p.logger.WithFields(logrus.Fields{
			"room_url": roomURL,
			"room_id":  roomID,
		}),

		roomURL: roomURL,
		roomID:  roomID,
	}

	var err error
	c.orchestrator, err = orchestrator.New(p.engine, &orchestratorEvents{c}, &orchestrator.Options{
		Logger: c.logger.WithField("scope", "orchestrator"),

		ICEServers:       p.options.ICEServers,
		DataChannelLabel: p.options.DataChannelLabel,
	})
	if err != nil {
		return nil, err
	}

	c.signaling, err = signaling.NewClient(&signalingEvents{c}, &signaling.Options{
		Logger:     c.logger.WithField("scope", "signaling"),
		HTTPClient: p.options.HTTPClient,
	})
	if err != nil {
		c.orchestrator.Close()
		return nil, err
	}

	return c, nil
}

// SendMessage sends the provided text over the data channel.
func (p *Plugin) SendMessage(message string) error {
	c := p.current()
	if c == nil {
		return ErrNotConnected
	}

	if err := c.orchestrator.SendMessage(message); err != nil {
		return err
	}
	p.metrics.messageSent()
	return nil
}

// Disconnect leaves the room and closes the peer connection. It is a no-op
// when not connected.
func (p *Plugin) Disconnect() error {
	p.Lock()
	c := p.call
	p.call = nil
	p.Unlock()

	if c != nil {
		c.close()
	}
	return nil
}

// Close disconnects and removes the registered sink.
func (p *Plugin) Close() error {
	err := p.Disconnect()
	p.Cancel()
	return err
}

// Connected reports whether the accociated Plugin has joined a room.
func (p *Plugin) Connected() bool {
	c := p.current()
	return c != nil && c.connected.Load()
}

func (p *Plugin) current() *call {
	p.Lock()
	defer p.Unlock()
	return p.call
}

func (p *Plugin) isCurrent(c *call) bool {
	return p.current() == c
}

// disconnectCall tears down the provided call if it is still the active one.
func (p *Plugin) disconnectCall(c *call) {
	p.Lock()
	if p.call != c {
		p.Unlock()
		return
	}
	p.call = nil
	p.Unlock()

	c.close()
}

func (c *call) close() {
	c.closeOnce.Do(func() {
		c.logger.Infoln("disconnecting from room")
		c.connected.Store(false)
		c.signaling.Disconnect()
		c.orchestrator.Close()
	})
}

// Resource returns the API representation of the accociated Plugin.
func (p *Plugin) Resource() *PluginResource {
	resource := &PluginResource{
		ID:   p.id,
		When: p.when,
	}
	if c := p.current(); c != nil {
		resource.RoomURL = c.roomURL
		resource.RoomID = c.roomID
		resource.Connected = c.connected.Load()
		resource.Initiator = c.initiator.Load()
	}
	return resource
}
