// Command viewer dumps the persisted message log of one room as a
// table, opening the store read-only so it can run next to a live
// server.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"roomcast/domain"
	"roomcast/repositories"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	Room           string `env:"ROOM,default=global-room"`
	Limit          int    `env:"VIEWER_LIMIT,default=50"`
}

func main() {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// BypassLockGuard allows opening while the server holds the lock.
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	messages, err := repositories.ReadRecent(db, domain.RoomKey(config.Room), config.Limit)
	if err != nil {
		log.Fatalf("Failed to read messages: %v", err)
	}

	fmt.Printf("Room %q: %d most recent messages\n", config.Room, len(messages))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "At (UTC)", "Content"})
	for _, row := range lo.Map(messages, toRow) {
		table.Append(row)
	}
	table.Render()
}

func toRow(msg domain.Message, _ int) []string {
	return []string{
		fmt.Sprintf("%d", msg.ID),
		msg.At.Format(time.DateTime),
		msg.Content,
	}
}
