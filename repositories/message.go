//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_log.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"roomcast/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// seqBandwidth is the number of ids a sequence leases at once. Unused
// ids of a lease are lost on restart, which keeps ids monotonic but
// not necessarily contiguous.
const seqBandwidth = 128

type IMessageLog interface {
	Append(content string) (domain.Message, error)
	Recent(limit int) ([]domain.Message, error)
	Clear() error
	Close() error
}

// MessageLog is the durable, append-only message log of a single room,
// stored in BadgerDB. The key is formatted as "msg:{room_escaped}:{id_padded}" to:
//  1. Ensure id ordering using 20-digit zero padding (lexicographical order).
//  2. Keep every room under its own prefix so logs never interleave,
//     escaping the room key so it cannot smuggle the ":" delimiter.
type MessageLog struct {
	db  *badger.DB
	key domain.RoomKey
	seq *badger.Sequence
	log *slog.Logger
}

// NewMessageLog opens (or creates) the log for one room key. The id
// sequence is persisted next to the messages, so ids keep increasing
// across process restarts.
func NewMessageLog(db *badger.DB, key domain.RoomKey, log *slog.Logger) (*MessageLog, error) {
	seq, err := db.GetSequence(seqKey(key), seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("sequence for room %q: %w", key, err)
	}
	return &MessageLog{db: db, key: key, seq: seq, log: log}, nil
}

type record struct {
	ID      uint64 `json:"id"`
	Content string `json:"content"`
	At      int64  `json:"at"`
}

// encodeKey escapes the room key before it enters a storage key. Room
// keys arrive from the wire and may contain the ":" delimiter; escaping
// keeps every room under a prefix no other key can produce, so one room
// can never read or clear another room's log.
func encodeKey(key domain.RoomKey) string {
	return url.QueryEscape(string(key))
}

func msgPrefix(key domain.RoomKey) []byte {
	return []byte(fmt.Sprintf("msg:%s:", encodeKey(key)))
}

func seqKey(key domain.RoomKey) []byte {
	return []byte(fmt.Sprintf("seq:%s", encodeKey(key)))
}

// Append assigns the next id, persists the message, and returns the
// stored record. Nothing was written if an error is returned.
func (m *MessageLog) Append(content string) (domain.Message, error) {
	n, err := m.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("next message id: %w", err)
	}
	msg := domain.Message{
		ID:      n + 1, // ids start at 1
		Content: content,
		At:      time.Now().UTC(),
	}
	bytes, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, err
	}
	storageKey := fmt.Sprintf("%s%020d", msgPrefix(m.key), msg.ID)
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(storageKey), bytes)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("persist message %d: %w", msg.ID, err)
	}
	return msg, nil
}

// Recent returns the most recent messages of the room, oldest first.
func (m *MessageLog) Recent(limit int) ([]domain.Message, error) {
	return ReadRecent(m.db, m.key, limit)
}

// ReadRecent is the read side of the log, usable on a read-only store
// handle (the viewer opens Badger without write access). It iterates in
// reverse until the limit is reached, then flips the result, so a
// bounded window never scans the whole log.
func ReadRecent(db *badger.DB, key domain.RoomKey, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	var records []record
	prefix := msgPrefix(key)
	err := db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the highest possible id, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("99999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(records) == limit {
				break
			}
			var rec record
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read recent messages: %w", err)
	}

	lo.Reverse(records)
	return lo.Map(records, func(rec record, _ int) domain.Message {
		return toMessage(rec)
	}), nil
}

// Clear removes every persisted message of the room. The id sequence is
// left untouched so ids stay monotonic across clears.
func (m *MessageLog) Clear() error {
	if err := m.db.DropPrefix(msgPrefix(m.key)); err != nil {
		return fmt.Errorf("clear room %q: %w", m.key, err)
	}
	return nil
}

// Close releases the unused part of the id lease back to the store.
func (m *MessageLog) Close() error {
	return m.seq.Release()
}

func fromMessage(msg domain.Message) record {
	return record{
		ID:      msg.ID,
		Content: msg.Content,
		At:      msg.At.UnixNano(),
	}
}

func toMessage(rec record) domain.Message {
	return domain.Message{
		ID:      rec.ID,
		Content: rec.Content,
		At:      time.Unix(0, rec.At).UTC(),
	}
}
