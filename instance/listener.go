// Package instance implements the per-tag scheduler: the worker loop
// that buffers measurements, ticks the filter at a fixed rate, and
// multiplexes command/listener fan-out.
package instance

import (
	"log"
	"sync"
	"sync/atomic"
)

// listenerCapacity is the bounded channel size for fan-out listeners,
// sized to absorb small bursts.
const listenerCapacity = 10

// ListenerHandle is returned to a subscriber; closing it (or letting it
// be garbage collected after calling Close) sets the disconnected flag
// the fan-out consults on its next send attempt.
type ListenerHandle struct {
	disconnected *atomic.Bool
}

// Close marks this listener disconnected. The fan-out purges the entry
// lazily on its next send attempt.
func (h *ListenerHandle) Close() {
	h.disconnected.Store(true)
}

type listenerEntry[T any] struct {
	ch           chan T
	disconnected *atomic.Bool
	meta         any // per-listener state, e.g. a TrackingListener's num_particles
}

// UpdateListener is the generic fan-out primitive: a set of {sender,
// disconnected flag} entries, with non-blocking send and lazy purge of
// disconnected entries.
type UpdateListener[T any] struct {
	mu      sync.Mutex
	entries []*listenerEntry[T]
	name    string // used only for log messages
}

// NewUpdateListener constructs an empty fan-out set. name identifies the
// listener kind in warning logs (e.g. "state", "measurement").
func NewUpdateListener[T any](name string) *UpdateListener[T] {
	return &UpdateListener[T]{name: name}
}

// Add purges already-disconnected entries, then registers a new bounded
// receiver and returns it along with a handle whose Close marks it
// disconnected.
func (u *UpdateListener[T]) Add() (<-chan T, *ListenerHandle) {
	return u.AddWithMeta(nil)
}

// AddWithMeta is like Add but stashes per-listener state (e.g. a
// TrackingListener's requested num_particles) alongside the entry, for
// SendFunc to consult.
func (u *UpdateListener[T]) AddWithMeta(meta any) (<-chan T, *ListenerHandle) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.purgeLocked()

	flag := &atomic.Bool{}
	ch := make(chan T, listenerCapacity)
	u.entries = append(u.entries, &listenerEntry[T]{ch: ch, disconnected: flag, meta: meta})
	return ch, &ListenerHandle{disconnected: flag}
}

func (u *UpdateListener[T]) purgeLocked() {
	kept := u.entries[:0]
	for _, e := range u.entries {
		if !e.disconnected.Load() {
			kept = append(kept, e)
		}
	}
	u.entries = kept
}

// Send computes the value to deliver (once per call, not per listener —
// callers needing a per-listener payload should close over listener
// state themselves) and attempts a non-blocking send to every
// registered entry. An entry whose send would block is either
// swap-removed (if its disconnected flag is set) or logged and skipped
// (the listener is behind).
func (u *UpdateListener[T]) Send(value T) {
	u.mu.Lock()
	defer u.mu.Unlock()

	i := 0
	for i < len(u.entries) {
		e := u.entries[i]
		select {
		case e.ch <- value:
			i++
		default:
			if e.disconnected.Load() {
				last := len(u.entries) - 1
				u.entries[i] = u.entries[last]
				u.entries = u.entries[:last]
				continue
			}
			log.Printf("warn: %s listener is behind, dropping update", u.name)
			i++
		}
	}
}

// SendFunc sends a per-listener payload: fn is invoked once per entry
// with that entry's stashed meta (e.g. a requested num_particles),
// letting each listener receive a differently shaped payload from the
// same tick.
func (u *UpdateListener[T]) SendFunc(fn func(meta any) T) {
	u.mu.Lock()
	defer u.mu.Unlock()

	i := 0
	for i < len(u.entries) {
		e := u.entries[i]
		select {
		case e.ch <- fn(e.meta):
			i++
		default:
			if e.disconnected.Load() {
				last := len(u.entries) - 1
				u.entries[i] = u.entries[last]
				u.entries = u.entries[:last]
				continue
			}
			log.Printf("warn: %s listener is behind, dropping update", u.name)
			i++
		}
	}
}

// Len reports the number of currently registered entries (including any
// not yet purged), for diagnostics/tests.
func (u *UpdateListener[T]) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.entries)
}
