package domain

import "roomcast/contract"

// Command is one unit of work for a room coordinator. Commands are
// delivered through the coordinator mailbox and processed one at a
// time, which is what serializes all mutations of room state.
type Command interface {
	Session() contract.Sink
}

// OpenSession registers a freshly upgraded connection with the room.
type OpenSession struct {
	Sink contract.Sink
}

func (c OpenSession) Session() contract.Sink { return c.Sink }

// InboundText carries one raw text frame read from a session.
type InboundText struct {
	Sink contract.Sink
	Text string
}

func (c InboundText) Session() contract.Sink { return c.Sink }

// CloseSession reports that a session's connection is gone. Closing an
// already removed session is a no-op.
type CloseSession struct {
	Sink contract.Sink
}

func (c CloseSession) Session() contract.Sink { return c.Sink }
