/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package orchestrator

import (
	"stash.kopano.io/kwm/kwmdatachannel/internal/rtc"
)

// Role is the negotiation role of a session.
type Role int

// Roles.
const (
	RoleUnset Role = iota
	RoleInitiator
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleAnswerer:
		return "answerer"
	default:
		return "unset"
	}
}

// candidateQueue collects remote candidates until it is drained once. After
// the drain it stays drained.
type candidateQueue struct {
	drained    bool
	candidates []*rtc.ICECandidate
}

// add queues the candidate and reports true, or reports false when the queue
// was already drained.
func (q *candidateQueue) add(candidate *rtc.ICECandidate) bool {
	if q.drained {
		return false
	}
	q.candidates = append(q.candidates, candidate)
	return true
}

// drain returns the queued candidates in insertion order and switches the
// queue to drained. Subsequent calls return nil.
func (q *candidateQueue) drain() []*rtc.ICECandidate {
	if q.drained {
		return nil
	}
	candidates := q.candidates
	q.candidates = nil
	q.drained = true
	return candidates
}

func (q *candidateQueue) isDrained() bool {
	return q.drained
}

func (q *candidateQueue) len() int {
	return len(q.candidates)
}

// negotiationState is only accessed from the orchestrator's executor.
type negotiationState struct {
	role Role

	localDescription     *rtc.SessionDescription
	localDescriptionSet  bool
	localEmitted         bool
	remoteDescriptionSet bool

	queue candidateQueue
}

// setRole assigns the role once. It reports false if a different role was
// set before.
func (ns *negotiationState) setRole(role Role) bool {
	if ns.role != RoleUnset && ns.role != role {
		return false
	}
	ns.role = role
	return true
}
