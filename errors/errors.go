package errors

import "fmt"

var (
	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrSessionClosed = fmt.Errorf("session closed")
	ErrSlowConsumer  = fmt.Errorf("session send buffer full")
	ErrRoomStopped   = fmt.Errorf("room coordinator stopped")
)
