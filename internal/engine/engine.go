/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package engine implements the orchestrator transport engine with
// pion/webrtc.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	cfg "stash.kopano.io/kwm/kwmdatachannel/config"
	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
)

// Engine holds the process wide WebRTC settings. Create it once at startup
// before any orchestrator, it has no teardown of its own. Each orchestrator
// gets its own Factory which must be disposed.
type Engine struct {
	config *cfg.Config
	logger logrus.FieldLogger

	networkTypes    []webrtc.NetworkType
	interfaceFilter map[string]bool
}

// New creates the Engine from the provided configuration.
func New(config *cfg.Config) (*Engine, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	logger := config.Logger.WithField("engine", "pion")

	e := &Engine{
		config: config,
		logger: logger,
	}

	if len(config.ICEInterfaces) > 0 {
		logger.WithField("interfaces", config.ICEInterfaces).Debugln("enabling ICE interface filter")
		e.interfaceFilter = make(map[string]bool)
		for _, ifName := range config.ICEInterfaces {
			e.interfaceFilter[ifName] = true
		}
	}

	networkTypeStrings := config.ICENetworkTypes
	if len(networkTypeStrings) == 0 {
		networkTypeStrings = []string{"udp4", "udp6", "tcp4", "tcp6"}
	}
	for _, networkTypeString := range networkTypeStrings {
		var nt webrtc.NetworkType
		switch strings.ToLower(networkTypeString) {
		case "udp4":
			nt = webrtc.NetworkTypeUDP4
		case "udp6":
			nt = webrtc.NetworkTypeUDP6
		case "tcp4":
			nt = webrtc.NetworkTypeTCP4
		case "tcp6":
			nt = webrtc.NetworkTypeTCP6
		default:
			logger.WithField("type", networkTypeString).Warnln("unsupported network type, skipped")
			continue
		}
		e.networkTypes = append(e.networkTypes, nt)
	}
	if len(e.networkTypes) == 0 {
		return nil, errors.New("ICE network type list is empty")
	}

	if config.ICEEphemeralUDPPortRange[1] != 0 && config.ICEEphemeralUDPPortRange[1] <= config.ICEEphemeralUDPPortRange[0] {
		return nil, fmt.Errorf("invalid ICE port range %d:%d", config.ICEEphemeralUDPPortRange[0], config.ICEEphemeralUDPPortRange[1])
	}

	return e, nil
}

// NewFactory implements orchestrator.Engine.
func (e *Engine) NewFactory() (orchestrator.Factory, error) {
	return newFactory(e), nil
}

// newAPI creates a pion API for one session. TCP candidates are left out
// when disableTCP is set.
func (e *Engine) newAPI(logger logrus.FieldLogger, disableTCP bool) (*webrtc.API, error) {
	s := webrtc.SettingEngine{
		LoggerFactory: &loggerFactory{
			logger: logger,
			debug:  e.config.WebRTCDebug,
		},
	}

	if e.interfaceFilter != nil {
		s.SetInterfaceFilter(func(i string) bool {
			return e.interfaceFilter[i]
		})
	}

	networkTypes := filterNetworkTypes(e.networkTypes, disableTCP)
	if len(networkTypes) == 0 {
		return nil, errors.New("no ICE network types left")
	}
	s.SetNetworkTypes(networkTypes)

	if e.config.ICEEphemeralUDPPortRange[1] != 0 {
		if err := s.SetEphemeralUDPPortRange(e.config.ICEEphemeralUDPPortRange[0], e.config.ICEEphemeralUDPPortRange[1]); err != nil {
			return nil, fmt.Errorf("failed to set ICE port range: %w", err)
		}
	}

	return webrtc.NewAPI(webrtc.WithSettingEngine(s)), nil
}

func filterNetworkTypes(networkTypes []webrtc.NetworkType, disableTCP bool) []webrtc.NetworkType {
	if !disableTCP {
		return networkTypes
	}
	result := make([]webrtc.NetworkType, 0, len(networkTypes))
	for _, nt := range networkTypes {
		switch nt {
		case webrtc.NetworkTypeTCP4, webrtc.NetworkTypeTCP6:
			continue
		}
		result = append(result, nt)
	}
	return result
}
