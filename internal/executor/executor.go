/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package executor provides a sequential execution context which runs
// submitted functions one after another on a single goroutine.
package executor

import (
	"github.com/sasha-s/go-deadlock"
)

// Executor runs submitted functions in submission order. Submitting never
// blocks.
type Executor struct {
	mutex   deadlock.Mutex
	queue   []func()
	wakeCh  chan struct{}
	stopped bool
	doneCh  chan struct{}
}

// New creates a new Executor and starts its worker.
func New() *Executor {
	e := &Executor{
		wakeCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
	go e.run()

	return e
}

// Execute queues f for execution. It returns false when the Executor was
// stopped and f has been discarded.
func (e *Executor) Execute(f func()) bool {
	e.mutex.Lock()
	if e.stopped {
		e.mutex.Unlock()
		return false
	}
	e.queue = append(e.queue, f)
	e.mutex.Unlock()

	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
	return true
}

// Stop rejects all further submissions. Functions already queued still run.
// Stop may be called from within a running function.
func (e *Executor) Stop() {
	e.mutex.Lock()
	e.stopped = true
	e.mutex.Unlock()

	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

// Done returns a channel which is closed when the Executor has been stopped
// and its queue is empty.
func (e *Executor) Done() <-chan struct{} {
	return e.doneCh
}

func (e *Executor) run() {
	defer close(e.doneCh)

	var batch []func()
	for {
		e.mutex.Lock()
		batch, e.queue = e.queue, nil
		stopped := e.stopped
		e.mutex.Unlock()

		for _, f := range batch {
			f()
		}

		if len(batch) == 0 {
			if stopped {
				return
			}
			<-e.wakeCh
		}
	}
}
