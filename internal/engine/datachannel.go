/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package engine

import (
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
)

type dataChannel struct {
	dc     *webrtc.DataChannel
	logger logrus.FieldLogger
}

func newDataChannel(dc *webrtc.DataChannel, logger logrus.FieldLogger) *dataChannel {
	return &dataChannel{
		dc:     dc,
		logger: logger.WithField("datachannel", dc.Label()),
	}
}

func (channel *dataChannel) observe(observer orchestrator.DataChannelObserver) {
	if observer == nil {
		return
	}
	channel.dc.OnOpen(func() {
		channel.logger.Debugln("data channel open")
		observer.OnStateChange(orchestrator.DataChannelStateOpen)
	})
	channel.dc.OnClose(func() {
		channel.logger.Debugln("data channel closed")
		observer.OnStateChange(orchestrator.DataChannelStateClosed)
	})
	channel.dc.OnError(func(err error) {
		channel.logger.WithError(err).Warnln("data channel error")
	})
	channel.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		observer.OnMessage(msg.Data, msg.IsString)
	})
}

// Label implements orchestrator.DataChannel.
func (channel *dataChannel) Label() string {
	return channel.dc.Label()
}

// State implements orchestrator.DataChannel.
func (channel *dataChannel) State() orchestrator.DataChannelState {
	return asDataChannelState(channel.dc.ReadyState())
}

// SendText implements orchestrator.DataChannel.
func (channel *dataChannel) SendText(text string) error {
	return channel.dc.SendText(text)
}

// Dispose implements orchestrator.DataChannel.
func (channel *dataChannel) Dispose() error {
	return channel.dc.Close()
}
