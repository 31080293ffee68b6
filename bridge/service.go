/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package bridge

import (
	_ "stash.kopano.io/kwm/kwmdatachannel" // Import to ensure correct path.
)

// Service is an interface for services providing information about activity.
type Service interface {
	NumActive() uint64
}

// Waiter is implemented by services which release their resources in the
// background after their context is done.
type Waiter interface {
	Wait()
}

// Services is a defined collection of services which handle activity.
type Services struct {
	DataChannelManager Service
}

// Services returns all active services of the accociated Services as iterable.
func (services *Services) Services() []Service {
	s := make([]Service, 0)

	if services.DataChannelManager != nil {
		s = append(s, services.DataChannelManager)
	}

	return s
}

// Wait blocks until all services which implement Waiter are done.
func (services *Services) Wait() {
	for _, service := range services.Services() {
		if waiter, ok := service.(Waiter); ok {
			waiter.Wait()
		}
	}
}
