package runtime

import (
	"log/slog"
	"testing"

	"roomcast/domain/event"
	errs "roomcast/errors"
	"roomcast/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func Test_Broadcast_Delivers_To_Every_Session(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := NewRegistry()
	payload := []byte(`{"type":"msg","value":"hello"}`)
	for _, id := range []string{"a", "b", "c"} {
		sink := mocks.NewMockSink(ctrl)
		sink.EXPECT().ID().Return(id).AnyTimes()
		sink.EXPECT().Send(payload).Return(nil).Times(1)
		registry.Add(sink)
	}

	dropped := NewBroadcaster(slog.Default()).Broadcast(registry, event.Message("hello"))
	req.Zero(dropped)
	req.Equal(3, registry.Len())
}

func Test_Broadcast_Drops_Failing_Session_And_Continues(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := NewRegistry()

	healthy := mocks.NewMockSink(ctrl)
	healthy.EXPECT().ID().Return("healthy").AnyTimes()
	healthy.EXPECT().Send(gomock.Any()).Return(nil).Times(1)

	broken := mocks.NewMockSink(ctrl)
	broken.EXPECT().ID().Return("broken").AnyTimes()
	broken.EXPECT().Send(gomock.Any()).Return(errs.ErrSlowConsumer).Times(1)
	broken.EXPECT().Close().Return(nil).Times(1)

	registry.Add(healthy)
	registry.Add(broken)

	dropped := NewBroadcaster(slog.Default()).Broadcast(registry, event.Count(2))
	req.Equal(1, dropped)
	req.Equal(1, registry.Len())
	req.False(registry.Remove(broken), "broken session must already be gone")
}
