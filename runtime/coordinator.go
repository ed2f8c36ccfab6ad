// Package runtime coordinates room state: one coordinator per room key,
// a registry of live sessions, and the broadcast fan-out. It contains
// no transport or storage details beyond the repository contract.
package runtime

import (
	"context"
	"log/slog"

	"roomcast/contract"
	"roomcast/domain"
	"roomcast/domain/event"
	errs "roomcast/errors"
	"roomcast/observability"
	"roomcast/repositories"
)

// Coordinator is the single logical thread of control of one room. It
// owns the room's durable log and session registry exclusively: every
// mutation goes through the mailbox and is processed one command at a
// time, which gives all sessions an identical broadcast order.
type Coordinator struct {
	key         domain.RoomKey
	log         *slog.Logger
	store       repositories.IMessageLog
	registry    *Registry
	engine      *Broadcaster
	mailbox     chan domain.Command
	replayLimit int
	stats       *observability.Manager
}

func NewCoordinator(log *slog.Logger, key domain.RoomKey, store repositories.IMessageLog,
	stats *observability.Manager, replayLimit, bufferSize int) *Coordinator {
	return &Coordinator{
		key:         key,
		log:         log,
		store:       store,
		registry:    NewRegistry(),
		engine:      NewBroadcaster(log),
		mailbox:     make(chan domain.Command, bufferSize),
		replayLimit: replayLimit,
		stats:       stats,
	}
}

func (c *Coordinator) Key() domain.RoomKey { return c.key }

// Dispatch queues one command for the room. It blocks while the mailbox
// is full so the per-session command order is preserved, and gives up
// only when ctx is cancelled.
func (c *Coordinator) Dispatch(ctx context.Context, cmd domain.Command) error {
	select {
	case c.mailbox <- cmd:
		return nil
	case <-ctx.Done():
		return errs.ErrRoomStopped
	}
}

// Run consumes the mailbox until ctx is cancelled. It is the only
// goroutine that ever touches the registry or writes the log.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info("Room coordinator ready", "room", c.key)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case cmd := <-c.mailbox:
			c.handle(cmd)
		}
	}
}

func (c *Coordinator) handle(cmd domain.Command) {
	switch cmd := cmd.(type) {
	case domain.OpenSession:
		c.handleOpen(cmd.Sink)
	case domain.InboundText:
		c.handleInbound(cmd.Text)
	case domain.CloseSession:
		c.handleClose(cmd.Sink)
	default:
		c.log.Warn("Unknown room command", "room", c.key)
	}
}

// handleOpen registers the session, replays recent history to it alone,
// then announces the new member count to everyone including the joiner.
// Because the whole sequence runs inside one mailbox turn, the joiner
// observes history strictly before any later live message.
func (c *Coordinator) handleOpen(sink contract.Sink) {
	c.registry.Add(sink)
	c.stats.SessionOpened()
	c.replay(sink)
	c.broadcast(event.Count(c.registry.Len()))
}

// replay sends the most recent messages, oldest first, to one session.
// A replay failure is treated like a broken connection: the session is
// dropped and the rest of the room is unaffected.
func (c *Coordinator) replay(sink contract.Sink) {
	history, err := c.store.Recent(c.replayLimit)
	if err != nil {
		c.log.Error("History replay failed", "room", c.key, "error", err)
		return
	}
	for _, msg := range history {
		payload, err := event.Message(msg.Content).Encode()
		if err != nil {
			c.log.Error("Cannot encode history message", "room", c.key, "error", err)
			return
		}
		if err := sink.Send(payload); err != nil {
			c.log.Warn("Dropping session during replay",
				"room", c.key, "session_id", sink.ID(), "error", err)
			if c.registry.Remove(sink) {
				_ = sink.Close()
				c.stats.SessionClosed()
			}
			return
		}
	}
}

// handleInbound appends the payload to the durable log and broadcasts
// it, or wipes the log when the control token arrives. A store failure
// fails closed: nothing is broadcast that was not durably applied.
func (c *Coordinator) handleInbound(text string) {
	if text == domain.ClearToken {
		if err := c.store.Clear(); err != nil {
			c.log.Error("Clear failed, keeping history", "room", c.key, "error", err)
			return
		}
		c.stats.LogCleared()
		c.broadcast(event.Clear())
		return
	}

	msg, err := c.store.Append(text)
	if err != nil {
		c.log.Error("Dropping message that could not be persisted", "room", c.key, "error", err)
		return
	}
	c.stats.MessageStored()
	c.broadcast(event.Message(msg.Content))
}

// handleClose is idempotent: only the removal that actually took a
// session out of the registry announces a new count.
func (c *Coordinator) handleClose(sink contract.Sink) {
	if !c.registry.Remove(sink) {
		return
	}
	_ = sink.Close()
	c.stats.SessionClosed()
	c.broadcast(event.Count(c.registry.Len()))
}

// broadcast fans the event out and, whenever the pass dropped broken
// sessions, follows up with a fresh count so the survivors see the
// reduced membership. The loop terminates because the registry strictly
// shrinks on every extra pass.
func (c *Coordinator) broadcast(env event.Envelope) {
	for {
		dropped := c.engine.Broadcast(c.registry, env)
		if dropped == 0 {
			return
		}
		c.stats.SessionsDropped(dropped)
		env = event.Count(c.registry.Len())
	}
}

func (c *Coordinator) shutdown() {
	for _, sink := range c.registry.Sinks() {
		if c.registry.Remove(sink) {
			_ = sink.Close()
			c.stats.SessionClosed()
		}
	}
	if err := c.store.Close(); err != nil {
		c.log.Warn("Closing room log failed", "room", c.key, "error", err)
	}
	c.log.Info("Room coordinator stopped", "room", c.key)
}
