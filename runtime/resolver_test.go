package runtime

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"roomcast/observability"
	"roomcast/runtime/workers"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sup := workers.NewSupervisor(slog.Default())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = db.Close()
	})

	return NewResolver(ctx, slog.Default(), db, sup, observability.NewManager(), 10, 64)
}

func Test_Resolver_Returns_Same_Coordinator_For_Same_Key(t *testing.T) {
	req := require.New(t)
	resolver := newTestResolver(t)

	first, err := resolver.Room("alpha")
	req.NoError(err)
	second, err := resolver.Room("alpha")
	req.NoError(err)
	req.Same(first, second)

	other, err := resolver.Room("beta")
	req.NoError(err)
	req.NotSame(first, other)
}

func Test_Resolver_Concurrent_First_Access_Creates_One_Coordinator(t *testing.T) {
	req := require.New(t)
	resolver := newTestResolver(t)

	const callers = 32
	coordinators := make([]*Coordinator, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := resolver.Room("contended")
			require.NoError(t, err)
			coordinators[i] = room
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		req.Same(coordinators[0], coordinators[i])
	}
}
