/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stash.kopano.io/kwm/kwmdatachannel/bridge/datachannel"
	"stash.kopano.io/kwm/kwmdatachannel/internal/engine"
	"stash.kopano.io/kwm/kwmdatachannel/internal/orchestrator"
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

func commandConnect() *cobra.Command {
	connectCmd := &cobra.Command{
		Use:   "connect [...args]",
		Short: "Connect to a room and exchange messages read from stdin",
		Run: func(cmd *cobra.Command, args []string) {
			if err := connect(cmd, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	addCommonFlags(connectCmd.Flags())
	connectCmd.Flags().String("room-url", "https://appr.tc", "URL of the room server")
	connectCmd.Flags().String("room-id", "", "ID of the room to join")

	return connectCmd
}

// consoleSink prints events to stdout.
type consoleSink struct {
	logger logrus.FieldLogger
	doneCh chan error
}

func (s *consoleSink) Success(event *datachannel.Event) {
	switch event.Type {
	case datachannel.EventTypeMessage:
		fmt.Fprintf(os.Stdout, "< %s\n", event.Message)
	case datachannel.EventTypeICEState:
		s.logger.WithField("state", rtc.ICEConnectionState(event.State)).Infoln("ice connection state")
	case datachannel.EventTypeSignalingState:
		if event.State == datachannel.SignalingStateConnected {
			s.logger.Infoln("connected to room")
		} else {
			s.logger.Infoln("disconnected")
			s.done(nil)
		}
	}
}

func (s *consoleSink) Error(code string, message string, details interface{}) {
	s.done(errors.New(message))
}

func (s *consoleSink) EndOfStream() {
	s.done(nil)
}

func (s *consoleSink) done(err error) {
	select {
	case s.doneCh <- err:
	default:
	}
}

func connect(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(!v.GetBool("log-timestamp"), v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %v", err)
	}

	roomURL := v.GetString("room-url")
	roomID := v.GetString("room-id")
	if roomID == "" {
		return fmt.Errorf("room-id required but not given")
	}

	config, err := newConfig(v, logger)
	if err != nil {
		return err
	}

	e, err := engine.New(config)
	if err != nil {
		return fmt.Errorf("failed to create webrtc engine: %w", err)
	}

	p, err := datachannel.NewPlugin("console", e, &datachannel.Options{
		Logger:     logger,
		HTTPClient: config.HTTPClient,

		ICEServers:       datachannel.ICEServersFromURLs(config.ICEServers),
		DataChannelLabel: config.DataChannelLabel,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	sink := &consoleSink{
		logger: logger,
		doneCh: make(chan error, 1),
	}
	p.Listen(sink)

	if err = p.ConnectToRoom(roomURL, roomID); err != nil {
		return fmt.Errorf("failed to connect to room: %w", err)
	}

	linesCh := make(chan string)
	go func() {
		defer close(linesCh)
		reader := bufio.NewReader(os.Stdin)
		for {
			line, readErr := reader.ReadString('\n')
			if len(line) > 0 && line != "\n" {
				linesCh <- line[:len(line)-1]
			}
			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					logger.WithError(readErr).Errorln("failed to read stdin")
				}
				return
			}
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case line, ok := <-linesCh:
			if !ok {
				p.Disconnect()
				select {
				case err = <-sink.doneCh:
				case <-time.After(5 * time.Second):
				}
				return err
			}
			if sendErr := p.SendMessage(line); sendErr != nil {
				if errors.Is(sendErr, orchestrator.ErrChannelUnavailable) {
					logger.Warnln("data channel not open yet, message dropped")
					continue
				}
				logger.WithError(sendErr).Errorln("failed to send message")
			}

		case err = <-sink.doneCh:
			// Leave requests run in the background.
			p.Disconnect()
			time.Sleep(100 * time.Millisecond)
			return err

		case reason := <-signalCh:
			logger.WithField("signal", reason).Warnln("received signal")
			p.Disconnect()
			return nil
		}
	}
}
