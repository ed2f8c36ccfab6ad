package runtime

import "roomcast/contract"

// Registry is the set of live sessions of one room.
//
// It is owned by the room coordinator and must only be touched from the
// coordinator loop. That single-writer rule is what makes it safe
// without a lock, and it is why no other component ever gets a direct
// reference to it.
type Registry struct {
	sessions map[string]contract.Sink
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]contract.Sink)}
}

func (r *Registry) Add(sink contract.Sink) {
	r.sessions[sink.ID()] = sink
}

// Remove reports whether the session was still registered, so callers
// can make removal-triggered side effects idempotent.
func (r *Registry) Remove(sink contract.Sink) bool {
	if _, ok := r.sessions[sink.ID()]; !ok {
		return false
	}
	delete(r.sessions, sink.ID())
	return true
}

func (r *Registry) Len() int {
	return len(r.sessions)
}

// Sinks returns a snapshot slice, so a broadcast pass can remove
// members while iterating.
func (r *Registry) Sinks() []contract.Sink {
	sinks := make([]contract.Sink, 0, len(r.sessions))
	for _, sink := range r.sessions {
		sinks = append(sinks, sink)
	}
	return sinks
}
