package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roomcast/observability"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Room      string
	ID        uint64
	Timestamp string
	Content   string
}

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  observability.Stats
}

// StartDebugServer exposes a read-only view of the persisted message
// log plus the live counters on a dedicated port. It is an operator
// tool, deliberately kept off the public listener.
func StartDebugServer(log *slog.Logger, db *badger.DB, port int, stats *observability.Manager) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := PageData{Prefix: prefix}
		if stats != nil {
			data.Stats = stats.Latest()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapRow(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		addr := fmt.Sprintf("localhost:%d", port)
		log.Info("Debug inspect server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn("Debug inspect server stopped", "error", err)
		}
	}()
}

// mapRow decodes one stored message into a display row. Keys look like
// "msg:{room}:{id_padded}"; unknown values fall back to raw display.
func mapRow(key string, val []byte) InspectRow {
	row := InspectRow{Key: key, Room: "-", Timestamp: "--:--:--"}

	if parts := strings.Split(key, ":"); len(parts) >= 3 {
		row.Room = parts[1]
		if room, err := url.QueryUnescape(parts[1]); err == nil {
			row.Room = room
		}
	}

	var rec struct {
		ID      uint64 `json:"id"`
		Content string `json:"content"`
		At      int64  `json:"at"`
	}
	if err := json.Unmarshal(val, &rec); err != nil {
		row.Content = fmt.Sprintf("raw (%d bytes)", len(val))
		return row
	}
	row.ID = rec.ID
	row.Timestamp = time.Unix(0, rec.At).UTC().Format("15:04:05")
	row.Content = rec.Content
	return row
}
