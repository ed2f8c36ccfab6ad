package domain

// RoomKey identifies one independently coordinated broadcast channel.
// The minimal deployment uses a single fixed key; the resolver accepts
// any key so the design generalizes to per-path rooms.
type RoomKey string

// DefaultRoomKey is the key of the global room, matching the single
// fixed room of the minimal deployment.
const DefaultRoomKey RoomKey = "global-room"

// ClearToken is the inbound control frame that wipes a room's log.
const ClearToken = "/clear"
