package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"roomcast/contract"
	"roomcast/domain"
	"roomcast/observability"
	"roomcast/repositories"

	"github.com/dgraph-io/badger/v4"
)

// Resolver maps room keys to their single live coordinator. It only
// hands out coordinator handles; room state itself is never touched
// here.
type Resolver struct {
	mu          sync.Mutex
	log         *slog.Logger
	db          *badger.DB
	supervisor  contract.ISupervisor
	stats       *observability.Manager
	rooms       map[domain.RoomKey]*Coordinator
	replayLimit int
	bufferSize  int

	// baseCtx bounds coordinator lifetimes to the server, not to the
	// request that happened to create a room first.
	baseCtx context.Context
}

func NewResolver(baseCtx context.Context, log *slog.Logger, db *badger.DB,
	supervisor contract.ISupervisor, stats *observability.Manager,
	replayLimit, bufferSize int) *Resolver {
	return &Resolver{
		log:         log,
		db:          db,
		supervisor:  supervisor,
		stats:       stats,
		rooms:       make(map[domain.RoomKey]*Coordinator),
		replayLimit: replayLimit,
		bufferSize:  bufferSize,
		baseCtx:     baseCtx,
	}
}

// Room returns the unique live coordinator for key, creating and
// starting one on first access. Concurrent first access races resolve
// to a single instance: the mutex makes creation idempotent, so no two
// coordinators ever hold state for the same key. A failure to open the
// room's log is surfaced to the caller and leaves no partial state
// behind.
func (r *Resolver) Room(key domain.RoomKey) (*Coordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if coordinator, ok := r.rooms[key]; ok {
		return coordinator, nil
	}

	store, err := repositories.NewMessageLog(r.db, key, r.log)
	if err != nil {
		return nil, fmt.Errorf("open log for room %q: %w", key, err)
	}

	coordinator := NewCoordinator(r.log, key, store, r.stats, r.replayLimit, r.bufferSize)
	r.rooms[key] = coordinator
	r.supervisor.Start(r.baseCtx, coordinator)
	r.stats.RoomCreated()
	r.log.Info("Room coordinator created", "room", key)
	return coordinator, nil
}
