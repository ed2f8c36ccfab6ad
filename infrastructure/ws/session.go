package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"roomcast/domain"
	errs "roomcast/errors"
	"roomcast/runtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Session adapts one websocket connection to the coordinator's Sink
// contract. Outbound frames go through a buffered channel drained by
// writePump, so a slow consumer can never block the room: when the
// buffer is full, Send fails and the coordinator drops the session.
type Session struct {
	id        string
	conn      *websocket.Conn
	log       *slog.Logger
	send      chan []byte
	quit      chan struct{}
	closeOnce sync.Once
}

func NewSession(log *slog.Logger, conn *websocket.Conn, bufferSize int) *Session {
	return &Session{
		id:   uuid.NewString(),
		conn: conn,
		log:  log,
		send: make(chan []byte, bufferSize),
		quit: make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Send queues one outbound frame without blocking. Only the room
// coordinator calls Send; any error tells it to treat the session as
// closed.
func (s *Session) Send(payload []byte) error {
	select {
	case <-s.quit:
		return errs.ErrSessionClosed
	default:
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return errs.ErrSlowConsumer
	}
}

// Close is idempotent. It signals writePump, which sends the websocket
// close frame and tears the connection down.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	return nil
}

// readPump feeds inbound frames into the room mailbox. It runs on the
// handler goroutine; its exit is the only disconnect signal a room ever
// gets, closing the connection being the one cancellation primitive.
func (s *Session) readPump(ctx context.Context, room *runtime.Coordinator) {
	defer func() {
		_ = room.Dispatch(ctx, domain.CloseSession{Sink: s})
		_ = s.conn.Close()
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				s.log.Warn("Unexpected websocket close", "session_id", s.id, "error", err)
			}
			return
		}
		if err := room.Dispatch(ctx, domain.InboundText{Sink: s, Text: string(raw)}); err != nil {
			return
		}
	}
}

// writePump owns all writes on the connection: queued frames, keepalive
// pings, and the final close frame.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.quit:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
