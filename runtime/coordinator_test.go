package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"roomcast/domain"
	"roomcast/domain/event"
	errs "roomcast/errors"
	"roomcast/mocks"
	"roomcast/observability"
	"roomcast/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const settleTime = 2 * time.Second

// fakeSink records everything a session would have received. It can be
// switched into failing mode to simulate a broken connection.
type fakeSink struct {
	id       string
	mu       sync.Mutex
	payloads [][]byte
	failing  bool
	closed   bool
}

func newFakeSink(id string) *fakeSink {
	return &fakeSink{id: id}
}

func (f *fakeSink) ID() string { return f.id }

func (f *fakeSink) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errs.ErrSlowConsumer
	}
	f.payloads = append(f.payloads, append([]byte{}, payload...))
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) fail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = true
}

func (f *fakeSink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSink) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSink) events(t *testing.T) []event.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var events []event.Envelope
	for _, payload := range f.payloads {
		var env event.Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		events = append(events, env)
	}
	return events
}

// JSON numbers decode as float64, so expectations are built with the
// same helpers the assertions use.
func msgEvent(content string) event.Envelope {
	return event.Envelope{Type: event.TypeMessage, Value: content}
}

func countEvent(n int) event.Envelope {
	return event.Envelope{Type: event.TypeCount, Value: float64(n)}
}

func clearEvent() event.Envelope {
	return event.Envelope{Type: event.TypeClear}
}

func newBadgerLog(t *testing.T) repositories.IMessageLog {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := repositories.NewMessageLog(db, "test-room", slog.Default())
	require.NoError(t, err)
	return store
}

// newRoom starts a coordinator loop and tears it down with the test.
func newRoom(t *testing.T, store repositories.IMessageLog, replayLimit int) *Coordinator {
	t.Helper()
	room := NewCoordinator(slog.Default(), "test-room", store, observability.NewManager(), replayLimit, 64)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = room.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return room
}

func dispatch(t *testing.T, room *Coordinator, cmd domain.Command) {
	t.Helper()
	require.NoError(t, room.Dispatch(context.Background(), cmd))
}

func waitReceived(t *testing.T, sink *fakeSink, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return sink.received() >= n },
		settleTime, 5*time.Millisecond,
		"session %s should have received %d events", sink.ID(), n)
}

func Test_Joins_Then_Message_Reach_Everyone_In_Order(t *testing.T) {
	req := require.New(t)
	room := newRoom(t, newBadgerLog(t), 10)
	a, b, c := newFakeSink("a"), newFakeSink("b"), newFakeSink("c")

	dispatch(t, room, domain.OpenSession{Sink: a})
	dispatch(t, room, domain.OpenSession{Sink: b})
	dispatch(t, room, domain.OpenSession{Sink: c})
	dispatch(t, room, domain.InboundText{Sink: a, Text: "hello"})

	waitReceived(t, a, 4)
	waitReceived(t, b, 3)
	waitReceived(t, c, 2)

	req.Equal([]event.Envelope{countEvent(1), countEvent(2), countEvent(3), msgEvent("hello")}, a.events(t))
	req.Equal([]event.Envelope{countEvent(2), countEvent(3), msgEvent("hello")}, b.events(t))
	req.Equal([]event.Envelope{countEvent(3), msgEvent("hello")}, c.events(t))
}

func Test_Message_Order_Is_Identical_For_All_Sessions(t *testing.T) {
	req := require.New(t)
	room := newRoom(t, newBadgerLog(t), 10)
	a, b := newFakeSink("a"), newFakeSink("b")

	dispatch(t, room, domain.OpenSession{Sink: a})
	dispatch(t, room, domain.OpenSession{Sink: b})
	for i := 0; i < 5; i++ {
		dispatch(t, room, domain.InboundText{Sink: a, Text: fmt.Sprintf("m%d", i)})
	}

	waitReceived(t, a, 7)
	waitReceived(t, b, 6)

	// Skip the join counts, the message suffix must match exactly.
	req.Equal(a.events(t)[2:], b.events(t)[1:])
}

func Test_Replay_Oldest_First_Before_Live_Messages(t *testing.T) {
	req := require.New(t)
	store := newBadgerLog(t)
	for _, content := range []string{"first", "second", "third"} {
		_, err := store.Append(content)
		req.NoError(err)
	}

	room := newRoom(t, store, 10)
	a := newFakeSink("a")
	dispatch(t, room, domain.OpenSession{Sink: a})
	dispatch(t, room, domain.InboundText{Sink: a, Text: "live"})

	waitReceived(t, a, 5)
	req.Equal([]event.Envelope{
		msgEvent("first"), msgEvent("second"), msgEvent("third"),
		countEvent(1),
		msgEvent("live"),
	}, a.events(t))
}

func Test_Replay_Is_Bounded_By_Limit(t *testing.T) {
	req := require.New(t)
	store := newBadgerLog(t)
	for i := 1; i <= 15; i++ {
		_, err := store.Append(fmt.Sprintf("m%d", i))
		req.NoError(err)
	}

	room := newRoom(t, store, 10)
	a := newFakeSink("a")
	dispatch(t, room, domain.OpenSession{Sink: a})

	waitReceived(t, a, 11)
	events := a.events(t)
	req.Len(events, 11)
	req.Equal(msgEvent("m6"), events[0], "replay must start at the oldest of the last 10")
	req.Equal(msgEvent("m15"), events[9])
	req.Equal(countEvent(1), events[10])
}

func Test_Clear_Wipes_History_And_Notifies_Everyone(t *testing.T) {
	req := require.New(t)
	store := newBadgerLog(t)
	room := newRoom(t, store, 10)
	a, b := newFakeSink("a"), newFakeSink("b")

	dispatch(t, room, domain.OpenSession{Sink: a})
	dispatch(t, room, domain.OpenSession{Sink: b})
	dispatch(t, room, domain.InboundText{Sink: a, Text: "doomed"})
	dispatch(t, room, domain.InboundText{Sink: b, Text: domain.ClearToken})

	waitReceived(t, a, 4)
	waitReceived(t, b, 3)
	req.Equal(clearEvent(), a.events(t)[3])
	req.Equal(clearEvent(), b.events(t)[2])

	recent, err := store.Recent(10)
	req.NoError(err)
	req.Empty(recent, "log must be empty after clear")

	// A new joiner gets no replay of pre-clear messages.
	c := newFakeSink("c")
	dispatch(t, room, domain.OpenSession{Sink: c})
	waitReceived(t, c, 1)
	req.Equal([]event.Envelope{countEvent(3)}, c.events(t))
}

func Test_Close_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	room := newRoom(t, newBadgerLog(t), 10)
	a, b := newFakeSink("a"), newFakeSink("b")

	dispatch(t, room, domain.OpenSession{Sink: a})
	dispatch(t, room, domain.OpenSession{Sink: b})
	dispatch(t, room, domain.CloseSession{Sink: a})
	dispatch(t, room, domain.CloseSession{Sink: a})
	dispatch(t, room, domain.InboundText{Sink: b, Text: "probe"})

	waitReceived(t, b, 3)
	req.Equal([]event.Envelope{
		countEvent(2),
		countEvent(1),
		msgEvent("probe"),
	}, b.events(t), "the second close must not produce another count")
	req.True(a.isClosed())
}

func Test_Broken_Session_Does_Not_Stop_Broadcast(t *testing.T) {
	req := require.New(t)
	room := newRoom(t, newBadgerLog(t), 10)
	a, b, c := newFakeSink("a"), newFakeSink("b"), newFakeSink("c")

	dispatch(t, room, domain.OpenSession{Sink: a})
	dispatch(t, room, domain.OpenSession{Sink: b})
	dispatch(t, room, domain.OpenSession{Sink: c})
	waitReceived(t, a, 3)

	b.fail()
	dispatch(t, room, domain.InboundText{Sink: a, Text: "hello"})

	// Healthy sessions get the message and then the reduced count.
	waitReceived(t, a, 5)
	waitReceived(t, c, 3)
	req.Equal([]event.Envelope{msgEvent("hello"), countEvent(2)}, a.events(t)[3:])
	req.Equal([]event.Envelope{msgEvent("hello"), countEvent(2)}, c.events(t)[1:])
	req.True(b.isClosed(), "broken session must be closed")
	req.Equal(2, b.received(), "broken session must not receive anything after its failure")
}

func Test_Persist_Failure_Suppresses_Broadcast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockIMessageLog(ctrl)
	store.EXPECT().Recent(gomock.Any()).Return(nil, nil).AnyTimes()
	store.EXPECT().Close().Return(nil).AnyTimes()
	store.EXPECT().Append("will not persist").Return(domain.Message{}, fmt.Errorf("disk full")).Times(1)

	room := newRoom(t, store, 10)
	a := newFakeSink("a")
	dispatch(t, room, domain.OpenSession{Sink: a})
	waitReceived(t, a, 1)

	dispatch(t, room, domain.InboundText{Sink: a, Text: "will not persist"})
	dispatch(t, room, domain.CloseSession{Sink: a})

	require.Eventually(t, a.isClosed, settleTime, 5*time.Millisecond)
	req.Equal([]event.Envelope{countEvent(1)}, a.events(t),
		"a message that could not be persisted must not be broadcast")
}

func Test_Clear_Failure_Keeps_History(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockIMessageLog(ctrl)
	store.EXPECT().Recent(gomock.Any()).Return(nil, nil).AnyTimes()
	store.EXPECT().Close().Return(nil).AnyTimes()
	store.EXPECT().Clear().Return(fmt.Errorf("io error")).Times(1)

	room := newRoom(t, store, 10)
	a := newFakeSink("a")
	dispatch(t, room, domain.OpenSession{Sink: a})
	waitReceived(t, a, 1)

	dispatch(t, room, domain.InboundText{Sink: a, Text: domain.ClearToken})
	dispatch(t, room, domain.CloseSession{Sink: a})

	require.Eventually(t, a.isClosed, settleTime, 5*time.Millisecond)
	req.Equal([]event.Envelope{countEvent(1)}, a.events(t),
		"a failed clear must not emit a clear event")
}
