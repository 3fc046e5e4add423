// SPDX-License-Identifier: MIT

// Package bus is the in-process observer fabric for pipeline events
// (scanned:<kind>, indexed:<kind>, duplicate:<kind>, skipped:<kind>).
// Emission is a direct call into each observer; observers must not block.
package bus

import "sync"

// Event is one emitted observation.
type Event struct {
	Topic   string
	Payload any
}

// Observer receives events. Notify may be called concurrently.
type Observer interface {
	Notify(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Notify(ev Event) { f(ev) }

// Bus fans events out to attached observers.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
}

func New() *Bus {
	return &Bus{}
}

// Attach registers an observer for all subsequent events.
func (b *Bus) Attach(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Emit delivers the event to every observer in attach order.
func (b *Bus) Emit(topic string, payload any) {
	b.mu.RLock()
	obs := b.observers
	b.mu.RUnlock()
	for _, o := range obs {
		o.Notify(Event{Topic: topic, Payload: payload})
	}
}
