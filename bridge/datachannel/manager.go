/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package datachannel

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/orcaman/concurrent-map"
	"github.com/rogpeppe/fastuuid"
	"github.com/sirupsen/logrus"

	cfg "stash.kopano.io/kwm/kwmdatachannel/config"
	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

var guidGenerator = fastuuid.MustNewGenerator()

// Manager holds the plugins created through the API.
type Manager struct {
	logger logrus.FieldLogger
	ctx    context.Context
	config *cfg.Config

	engine  orchestrator.Engine
	options *Options
	metrics *metrics

	wg      sync.WaitGroup
	plugins cmap.ConcurrentMap
}

// NewManager creates a Manager whose plugins use the provided engine. All
// plugins are closed when the provided context is done.
func NewManager(ctx context.Context, config *cfg.Config, engine orchestrator.Engine) (*Manager, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}

	m := &Manager{
		logger: config.Logger.WithField("manager", "datachannel"),
		ctx:    ctx,
		config: config,

		engine: engine,
		options: &Options{
			Logger:     config.Logger,
			HTTPClient: config.HTTPClient,

			ICEServers:       ICEServersFromURLs(config.ICEServers),
			DataChannelLabel: config.DataChannelLabel,
		},
		metrics: newMetrics(config.Metrics),

		plugins: cmap.New(),
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-ctx.Done()
		m.closeAll()
	}()

	return m, nil
}

// ICEServersFromURLs creates an ICE server entry for each provided URL.
func ICEServersFromURLs(urls []string) []*rtc.ICEServer {
	var servers []*rtc.ICEServer
	for _, u := range urls {
		if u == "" {
			continue
		}
		servers = append(servers, &rtc.ICEServer{
			URLs: []string{u},
		})
	}
	return servers
}

// Create adds a new Plugin.
func (m *Manager) Create() (*Plugin, error) {
	if m.ctx.Err() != nil {
		return nil, m.ctx.Err()
	}

	p, err := NewPlugin(guidGenerator.Hex128(), m.engine, m.options)
	if err != nil {
		return nil, err
	}
	p.metrics = m.metrics

	m.plugins.Set(p.ID(), p)
	m.metrics.pluginAdded()
	m.logger.WithField("plugin", p.ID()).Debugln("plugin created")

	return p, nil
}

// Get returns the Plugin with the provided id.
func (m *Manager) Get(id string) (*Plugin, bool) {
	if v, ok := m.plugins.Get(id); ok {
		return v.(*Plugin), true
	}
	return nil, false
}

// Remove closes and removes the Plugin with the provided id.
func (m *Manager) Remove(id string) bool {
	v, ok := m.plugins.Pop(id)
	if !ok {
		return false
	}

	p := v.(*Plugin)
	p.Close()
	m.metrics.pluginRemoved()
	m.logger.WithField("plugin", id).Debugln("plugin removed")

	return true
}

// Plugins returns all plugins sorted by creation time.
func (m *Manager) Plugins() []*Plugin {
	plugins := make([]*Plugin, 0, m.plugins.Count())
	for _, v := range m.plugins.Items() {
		plugins = append(plugins, v.(*Plugin))
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].when.Before(plugins[j].when)
	})
	return plugins
}

func (m *Manager) closeAll() {
	for _, id := range m.plugins.Keys() {
		m.Remove(id)
	}
	m.logger.Debugln("all plugins closed")
}

// Wait blocks until the accociated Manager's context is done and all plugins
// were closed.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// NumActive returns the number of plugins which are connected to a room.
func (m *Manager) NumActive() uint64 {
	var active uint64
	for _, v := range m.plugins.Items() {
		if v.(*Plugin).Connected() {
			active++
		}
	}
	return active
}
