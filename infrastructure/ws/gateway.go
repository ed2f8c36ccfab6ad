// Package ws is the websocket edge of the room server: it upgrades
// inbound requests, wraps the resulting streams as sessions, and hands
// them to their room coordinator. It never buffers or inspects payload
// data itself.
package ws

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"roomcast/domain"
	"roomcast/runtime"

	"github.com/gorilla/websocket"
)

// Gateway validates upgrade handshakes and delegates accepted streams
// to the room resolver.
type Gateway struct {
	log            *slog.Logger
	resolver       *runtime.Resolver
	upgrader       websocket.Upgrader
	defaultRoom    domain.RoomKey
	bufferSize     int
	maxMessageSize int64
}

func NewGateway(log *slog.Logger, resolver *runtime.Resolver, defaultRoom domain.RoomKey,
	bufferSize int, maxMessageSize int64, allowedOrigins []string) *Gateway {
	return &Gateway{
		log:      log,
		resolver: resolver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		defaultRoom:    defaultRoom,
		bufferSize:     bufferSize,
		maxMessageSize: maxMessageSize,
	}
}

// HandleUpgrade is the GET /ws handler. Requests that do not carry the
// websocket upgrade header are rejected with 426 before any session or
// room state exists. The room key comes from the "room" query
// parameter, defaulting to the global room.
func (g *Gateway) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		http.Error(w, "Not a websocket request", http.StatusUpgradeRequired)
		return
	}

	key := g.defaultRoom
	if param := r.URL.Query().Get("room"); param != "" {
		key = domain.RoomKey(param)
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		g.log.Warn("Websocket handshake failed", "error", err)
		return
	}
	if g.maxMessageSize > 0 {
		conn.SetReadLimit(g.maxMessageSize)
	}

	// The room is resolved only once the handshake has succeeded, so a
	// failed handshake never leaves an empty coordinator behind for an
	// arbitrary room key.
	room, err := g.resolver.Room(key)
	if err != nil {
		g.log.Error("Cannot resolve room", "room", key, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "room unavailable"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	session := NewSession(g.log, conn, g.bufferSize)
	if err := room.Dispatch(r.Context(), domain.OpenSession{Sink: session}); err != nil {
		_ = conn.Close()
		return
	}

	go session.writePump()
	session.readPump(r.Context(), room)
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browser requests from the configured origins. With no
// configured origins, only same-host requests pass.
func originChecker(allowedOrigins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed[strings.TrimRight(origin, "/")]; ok {
			return true
		}
		if len(allowed) == 0 {
			return strings.EqualFold(originHost(origin), r.Host)
		}
		return false
	}
}

func originHost(origin string) string {
	origin = strings.TrimPrefix(origin, "https://")
	origin = strings.TrimPrefix(origin, "http://")
	return strings.TrimSuffix(origin, "/")
}
