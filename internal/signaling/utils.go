/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package signaling

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

func asWebsocketURL(uriString string) (string, error) {
	uri, err := url.Parse(uriString)
	if err != nil {
		return "", err
	}

	switch uri.Scheme {
	case "https":
		uri.Scheme = "wss"
	case "http":
		uri.Scheme = "ws"
	}

	return uri.String(), nil
}

func joinURL(base string, elements ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, element := range elements {
		b.WriteString("/")
		b.WriteString(url.PathEscape(element))
	}
	return b.String()
}

func newDescriptionMessage(sdp *rtc.SessionDescription) *Message {
	return &Message{
		Type: string(sdp.Type),
		SDP:  sdp.SDP,
	}
}

func newCandidateMessage(candidate *rtc.ICECandidate) *Message {
	label := candidate.SDPMLineIndex
	return &Message{
		Type:      TypeCandidate,
		Label:     &label,
		ID:        candidate.SDPMid,
		Candidate: candidate.Candidate,
	}
}

func (m *Message) description() *rtc.SessionDescription {
	return rtc.NewSessionDescription(rtc.SDPType(m.Type), m.SDP)
}

func (m *Message) candidate() *rtc.ICECandidate {
	c := &rtc.ICECandidate{
		SDPMid:    m.ID,
		Candidate: m.Candidate,
	}
	if m.Label != nil {
		c.SDPMLineIndex = *m.Label
	}
	return c
}

// parseJoinParameters converts the room response parameters. Queued
// messages are only relevant for the answering side.
func parseJoinParameters(params *JoinParameters) (*rtc.RoomParameters, error) {
	result := &rtc.RoomParameters{
		Initiator:  bool(params.IsInitiator),
		RoomID:     params.RoomID,
		ClientID:   params.ClientID,
		WSSURL:     params.WSSURL,
		WSSPostURL: params.WSSPostURL,
	}

	if !result.Initiator {
		for _, messageString := range params.Messages {
			message := &Message{}
			if err := json.Unmarshal([]byte(messageString), message); err != nil {
				return nil, fmt.Errorf("failed to parse room message: %w", err)
			}
			switch message.Type {
			case TypeOffer:
				result.OfferSDP = message.description()
			case TypeCandidate:
				result.ICECandidates = append(result.ICECandidates, message.candidate())
			}
		}
	}

	if params.PCConfig != "" {
		iceServers, err := parsePCConfig(params.PCConfig)
		if err != nil {
			return nil, err
		}
		result.ICEServers = iceServers
	}

	return result, nil
}

func parsePCConfig(pcConfig string) ([]*rtc.ICEServer, error) {
	config := &PCConfig{}
	if err := json.Unmarshal([]byte(pcConfig), config); err != nil {
		return nil, fmt.Errorf("failed to parse pc config: %w", err)
	}

	var result []*rtc.ICEServer
	for _, server := range config.ICEServers {
		iceServer := &rtc.ICEServer{
			Username:   server.Username,
			Credential: server.Credential,
		}
		if len(server.URLs) > 0 {
			var urls []string
			if err := json.Unmarshal(server.URLs, &urls); err != nil {
				var single string
				if err = json.Unmarshal(server.URLs, &single); err != nil {
					return nil, fmt.Errorf("failed to parse ice server urls: %w", err)
				}
				urls = []string{single}
			}
			iceServer.URLs = urls
		}
		if len(iceServer.URLs) > 0 {
			result = append(result, iceServer)
		}
	}
	return result, nil
}
