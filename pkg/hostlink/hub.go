// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import (
	"sync"

	"github.com/markv9401/gatepro/pkg/cover"
)

// subscriptionBuffer is the number of states a subscriber may lag behind
const subscriptionBuffer = 8

// Hub broadcasts gate state to all subscribers
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]bool
	latest      *cover.State
	closed      bool
}

// Subscription receives state updates
type Subscription struct {
	send chan cover.State
	hub  *Hub
}

// NewHub creates a new broadcast hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscription]bool),
	}
}

// Subscribe creates a new subscription. The latest state, if any, is
// delivered first.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		send: make(chan cover.State, subscriptionBuffer),
		hub:  h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.send)
		return sub
	}
	if h.latest != nil {
		sub.send <- *h.latest
	}
	h.subscribers[sub] = true
	return sub
}

// Broadcast sends state to all subscribers. Slow subscribers miss updates.
func (h *Hub) Broadcast(s cover.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest = &s
	for sub := range h.subscribers {
		select {
		case sub.send <- s:
		default:
			// Drop if subscriber is slow
		}
	}
}

// Latest returns the most recent state
func (h *Hub) Latest() (cover.State, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return cover.State{}, false
	}
	return *h.latest, true
}

// Count returns the number of subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close shuts down the hub and ends every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		close(sub.send)
		delete(h.subscribers, sub)
	}
}

// C returns the channel for receiving updates
func (s *Subscription) C() <-chan cover.State {
	return s.send
}

// Unsubscribe removes this subscription
func (s *Subscription) Unsubscribe() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subscribers[s]; ok {
		delete(s.hub.subscribers, s)
		close(s.send)
	}
}
