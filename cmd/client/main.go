// Command client is an interactive participant: stdin lines become
// frames, received events are printed colorized. Useful for poking a
// running server by hand.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"roomcast/domain/event"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	ServerURL string `env:"ROOMCAST_URL,default=ws://localhost:8080/ws"`
	Room      string `env:"ROOM"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	url := config.ServerURL
	if config.Room != "" {
		url = fmt.Sprintf("%s?room=%s", url, config.Room)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", url, err)
	}
	defer conn.Close()
	color.Cyan.Printf("Connected to %s (send %q to wipe history)\n", url, "/clear")

	// Reader goroutine: one line per event until the server hangs up.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			printEvent(payload)
		}
	}()

	// Stdin loop feeding outbound frames.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return exitOK, nil
		case <-done:
			return exitRuntime, fmt.Errorf("server closed the connection")
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if line == "" {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return exitRuntime, fmt.Errorf("send failed: %w", err)
			}
		}
	}
}

func printEvent(payload []byte) {
	var env event.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		color.Gray.Printf("?? %s\n", payload)
		return
	}
	switch env.Type {
	case event.TypeMessage:
		color.Green.Printf("msg   %v\n", env.Value)
	case event.TypeCount:
		color.Yellow.Printf("count %v participants\n", env.Value)
	case event.TypeClear:
		color.Red.Println("history cleared")
	default:
		color.Gray.Printf("?? %s\n", payload)
	}
}
