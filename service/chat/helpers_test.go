package chat

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"PPGate/tools/errs"
	"PPGate/tools/security"
)

var errAuthForTest = errs.ErrAuth.WrapMsg("unknown credential")

type fakeTransport struct {
	frames chan []byte

	mu       sync.Mutex
	pings    int
	pingErr  error
	writeErr error
	closed   bool
	pong     func(string) error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan []byte, 64)}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	err := f.writeErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.frames <- append([]byte(nil), data...)
	return nil
}

func (f *fakeTransport) WriteControl(mt int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mt == websocket.PingMessage {
		f.pings++
		return f.pingErr
	}
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) SetPongHandler(h func(string) error) {
	f.mu.Lock()
	f.pong = h
	f.mu.Unlock()
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeTransport) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Pong simulates the peer answering a ping.
func (f *fakeTransport) Pong() {
	f.mu.Lock()
	h := f.pong
	f.mu.Unlock()
	if h != nil {
		_ = h("")
	}
}

func nextFrame(t *testing.T, f *fakeTransport) []byte {
	t.Helper()
	select {
	case b := <-f.frames:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func expectSilence(t *testing.T, f *fakeTransport) {
	t.Helper()
	select {
	case b := <-f.frames:
		t.Fatalf("unexpected frame: %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func nextRoster(t *testing.T, f *fakeTransport) []RosterEntry {
	t.Helper()
	var r RosterFrame
	if err := json.Unmarshal(nextFrame(t, f), &r); err != nil {
		t.Fatalf("roster frame: %v", err)
	}
	return r.Online
}

func rosterIDs(r []RosterEntry) []string {
	out := make([]string, 0, len(r))
	for _, e := range r {
		out = append(out, e.UserID)
	}
	sort.Strings(out)
	return out
}

// newTestConn builds a connection with its writer running; userID "" leaves
// it anonymous.
func newTestConn(t *testing.T, userID, username string) (*WsConn, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c := newWsConn(uuid.NewString(), "test", ft, connOptions{queue: 16})
	if userID != "" {
		if err := c.Authenticate(security.Identity{UserID: userID, Username: username}); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(c.Close)
	return c, ft
}

type fakeTimer struct {
	s       *fakeScheduler
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeScheduler is a manual clock. Callbacks run on the goroutine calling
// Advance, in deadline order.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Unix(1_700_000_000, 0)}
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, at: s.now.Add(d), f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	for {
		var due *fakeTimer
		for _, t := range s.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if due == nil || t.at.Before(due.at) {
				due = t
			}
		}
		if due == nil {
			break
		}
		due.fired = true
		if due.at.After(s.now) {
			s.now = due.at
		}
		s.mu.Unlock()
		due.f()
		s.mu.Lock()
	}
	s.now = target
	s.mu.Unlock()
}

// Pending counts timers that are armed and not yet fired.
func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	keys   []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}

type staticVerifier map[string]security.Identity

func (v staticVerifier) Verify(ctx context.Context, credential string) (security.Identity, error) {
	if err := ctx.Err(); err != nil {
		return security.Identity{}, err
	}
	id, ok := v[credential]
	if !ok {
		return security.Identity{}, errAuthForTest
	}
	return id, nil
}
