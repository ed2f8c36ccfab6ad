package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"roomcast/domain/event"
	"roomcast/infrastructure/ws"
	"roomcast/observability"
	"roomcast/runtime"
	"roomcast/runtime/workers"
)

const eventTimeout = 5 * time.Second

type BaseWebsocketSuite struct {
	suite.Suite
	Config   Config
	baseURL  string
	shutdown func()
}

// SetupSuite loads the environment configuration before running tests.
// Without an explicit target it boots a full in-process server so the
// suite stays runnable on a laptop.
func (s *BaseWebsocketSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	if s.Config.TargetURL != "" {
		s.baseURL = s.Config.TargetURL
		s.shutdown = func() {}
		return
	}
	s.startLocalServer()
}

func (s *BaseWebsocketSuite) TearDownSuite() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

func (s *BaseWebsocketSuite) startLocalServer() {
	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	log := slog.Default()
	sup := workers.NewSupervisor(log)
	resolver := runtime.NewResolver(ctx, log, db, sup, observability.NewManager(), 10, 64)
	gateway := ws.NewGateway(log, resolver, "global-room", 64, 4096, nil)

	router := chi.NewRouter()
	router.Get("/ws", gateway.HandleUpgrade)

	server := httptest.NewServer(router)
	s.baseURL = "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	s.shutdown = func() {
		cancel()
		server.Close()
		time.Sleep(50 * time.Millisecond)
		_ = db.Close()
	}
}

// Dial connects a named participant to the given room and prints a
// colorized header so interleaved event logs stay readable.
func (s *BaseWebsocketSuite) Dial(t *testing.T, name, room string) *websocket.Conn {
	header := fmt.Sprintf("  ====== %s joins %s ======", name, room)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	conn, _, err := websocket.DefaultDialer.Dial(s.baseURL+"?room="+room, nil)
	s.Require().NoError(err)
	return conn
}

func (s *BaseWebsocketSuite) ReadEvent(t *testing.T, name string, conn *websocket.Conn) event.Envelope {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(eventTimeout)))
	_, payload, err := conn.ReadMessage()
	s.Require().NoError(err)

	if s.Config.DebugEvents {
		line := fmt.Sprintf("%s <- %s", name, payload)
		if s.Config.Colours {
			line = color.Gray.Render(line)
		}
		t.Log(line)
	}

	var env event.Envelope
	s.Require().NoError(json.Unmarshal(payload, &env))
	return env
}

func (s *BaseWebsocketSuite) SendText(conn *websocket.Conn, text string) {
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(text)))
}
