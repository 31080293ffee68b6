/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package engine

import (
	pionLogging "github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

// leveledLogrusLogger passes pion log messages to logrus. Debug and trace
// output of pion is very verbose, it is only forwarded when enabled.
type leveledLogrusLogger struct {
	logrus.FieldLogger

	debug bool
}

func (ll *leveledLogrusLogger) Debug(msg string) {
	if ll.debug {
		ll.FieldLogger.Debug(msg)
	}
}
func (ll *leveledLogrusLogger) Debugf(format string, args ...interface{}) {
	if ll.debug {
		ll.FieldLogger.Debugf(format, args...)
	}
}
func (ll *leveledLogrusLogger) Error(msg string) {
	ll.FieldLogger.Error(msg)
}
func (ll *leveledLogrusLogger) Info(msg string) {
	ll.FieldLogger.Info(msg)
}
func (ll *leveledLogrusLogger) Trace(msg string) {
}
func (ll *leveledLogrusLogger) Tracef(format string, args ...interface{}) {
}
func (ll *leveledLogrusLogger) Warn(msg string) {
	ll.FieldLogger.Warn(msg)
}

type loggerFactory struct {
	logger logrus.FieldLogger
	debug  bool
}

func (factory *loggerFactory) NewLogger(scope string) pionLogging.LeveledLogger {
	return &leveledLogrusLogger{
		FieldLogger: factory.logger.WithField("webrtc", scope),
		debug:       factory.debug,
	}
}
