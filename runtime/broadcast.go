package runtime

import (
	"fmt"
	"log/slog"

	"roomcast/domain/event"
)

// Broadcaster fans one event out to every session of a registry. It is
// pure fan-out: it never touches the durable log.
type Broadcaster struct {
	log *slog.Logger
}

func NewBroadcaster(log *slog.Logger) *Broadcaster {
	return &Broadcaster{log: log}
}

// Broadcast delivers the encoded envelope to every registered session.
// A session whose send fails is removed from the registry and closed in
// the same pass, and delivery continues to the remaining sessions.
// Returns the number of sessions dropped.
func (b *Broadcaster) Broadcast(registry *Registry, env event.Envelope) int {
	payload, err := env.Encode()
	if err != nil {
		b.log.Error(fmt.Sprintf("Cannot encode %s event, skipping broadcast", env.Type), "error", err)
		return 0
	}

	dropped := 0
	for _, sink := range registry.Sinks() {
		sendErr := sink.Send(payload)
		if sendErr == nil {
			continue
		}
		registry.Remove(sink)
		_ = sink.Close()
		dropped++
		b.log.Warn("Dropping session after failed send",
			"session_id", sink.ID(),
			"event", env.Type,
			"error", sendErr)
	}
	return dropped
}
