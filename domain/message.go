// Package domain contains core concepts of the broadcast room system.
// This file defines Message records and related rules.
// Messages are immutable once appended to a room's log.
package domain

import (
	"time"
)

// Message represents one immutable entry of a room's durable log.
type Message struct {
	ID      uint64    // monotonically increasing per room
	Content string
	At      time.Time
}
