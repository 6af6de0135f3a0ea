// Package runtime owns event propagation between the stores and the
// realtime gateway: the broadcast registry, the supervised workers, and
// the fan-out pipeline.
package runtime

import (
	"sync"

	"pairchat/contract"

	"github.com/google/uuid"
)

type set map[string]struct{}

// Registry maps conversations to the sinks of their subscribed
// connections. It is created once, owned by the runtime, and injected
// into the gateway; there is no package-level instance.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]contract.EventSink // connection id -> sink
	members  map[uuid.UUID]set             // conversation -> connection ids
	joined   map[string]map[uuid.UUID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]contract.EventSink),
		members:  make(map[uuid.UUID]set),
		joined:   make(map[string]map[uuid.UUID]struct{}),
	}
}

// GetSinksForConversation retrieves all active sinks subscribed to one
// conversation's broadcast group. It performs a two-step lookup:
// membership first, then resolution to live sinks via the session map,
// so a connection subscribed to several conversations is managed in a
// single place. Returns nil for unknown or empty groups.
func (r *Registry) GetSinksForConversation(conversationID uuid.UUID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group, ok := r.members[conversationID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for connectionID := range group {
		if sink, exists := r.sessions[connectionID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// Subscribe registers the connection's sink and adds the connection to
// the conversation's broadcast group, initializing the group on the fly.
func (r *Registry) Subscribe(connectionID string, conversationID uuid.UUID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[connectionID] = sink

	if _, ok := r.members[conversationID]; !ok {
		r.members[conversationID] = make(set)
	}
	r.members[conversationID][connectionID] = struct{}{}

	if _, ok := r.joined[connectionID]; !ok {
		r.joined[connectionID] = make(map[uuid.UUID]struct{})
	}
	r.joined[connectionID][conversationID] = struct{}{}
}

// Unsubscribe removes the connection from one broadcast group. No-op if
// the connection never joined it. The session itself stays registered
// until UnsubscribeAll.
func (r *Registry) Unsubscribe(connectionID string, conversationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeMembership(connectionID, conversationID)
}

// UnsubscribeAll drops the connection from every group and removes its
// session. Called on disconnect; leaves no empty sets behind.
func (r *Registry) UnsubscribeAll(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conversationID := range r.joined[connectionID] {
		r.removeMembership(connectionID, conversationID)
	}
	delete(r.sessions, connectionID)
}

func (r *Registry) removeMembership(connectionID string, conversationID uuid.UUID) {
	if group, ok := r.members[conversationID]; ok {
		delete(group, connectionID)
		// If no one is left in the group, remove the entry entirely
		if len(group) == 0 {
			delete(r.members, conversationID)
		}
	}
	if joined, ok := r.joined[connectionID]; ok {
		delete(joined, conversationID)
		if len(joined) == 0 {
			delete(r.joined, connectionID)
		}
	}
}
