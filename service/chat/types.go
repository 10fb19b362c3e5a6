package chat

import (
	"context"
	"time"

	"PPGate/tools/security"
)

// IdentityVerifier resolves the credential presented at upgrade time.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (security.Identity, error)
}

// Transport is the part of *websocket.Conn the gateway writes through.
// WriteControl and Close may be called concurrently with WriteMessage;
// WriteMessage itself is only ever called from the connection's writer.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler creates timers; tests substitute a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
func (realScheduler) Now() time.Time                            { return time.Now() }
