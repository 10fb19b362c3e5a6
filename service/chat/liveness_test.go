package chat

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"PPGate/tools/errs"
)

type livenessProbe struct {
	probes atomic.Int32
	deaths atomic.Int32
	err    error
	cause  atomic.Value
}

func (p *livenessProbe) probe() error {
	p.probes.Add(1)
	return p.err
}

func (p *livenessProbe) dead(cause error) {
	p.deaths.Add(1)
	p.cause.Store(cause)
}

func newTestLiveness(p *livenessProbe) (*Liveness, *fakeScheduler) {
	s := newFakeScheduler()
	l := NewLiveness(LivenessConfig{Interval: 5 * time.Second, Timeout: time.Second, Scheduler: s}, p.probe, p.dead)
	return l, s
}

func TestLivenessAckKeepsConnectionAlive(t *testing.T) {
	p := &livenessProbe{}
	l, s := newTestLiveness(p)
	l.Start()

	s.Advance(4999 * time.Millisecond)
	if p.probes.Load() != 0 {
		t.Fatal("probe sent before interval")
	}
	s.Advance(time.Millisecond)
	if p.probes.Load() != 1 || l.State() != StateProbeOutstanding {
		t.Fatalf("probes=%d state=%s", p.probes.Load(), l.State())
	}

	l.Ack()
	if l.State() != StateActive {
		t.Fatalf("state after ack = %s", l.State())
	}
	s.Advance(2 * time.Second)
	if p.deaths.Load() != 0 {
		t.Fatal("acknowledged probe must not evict")
	}
	s.Advance(3 * time.Second)
	l.Ack()

	for i := 0; i < 3; i++ {
		s.Advance(5 * time.Second)
		l.Ack()
	}
	if p.deaths.Load() != 0 || l.State() != StateActive || p.probes.Load() != 5 {
		t.Fatalf("deaths=%d probes=%d state=%s", p.deaths.Load(), p.probes.Load(), l.State())
	}
}

func TestLivenessCadenceAnchoredToProbe(t *testing.T) {
	p := &livenessProbe{}
	l, s := newTestLiveness(p)
	l.Start()

	s.Advance(5 * time.Second)
	s.Advance(500 * time.Millisecond)
	l.Ack()
	s.Advance(4499 * time.Millisecond)
	if got := p.probes.Load(); got != 1 {
		t.Fatalf("probes = %d, want 1", got)
	}
	s.Advance(time.Millisecond)
	if got := p.probes.Load(); got != 2 {
		t.Fatalf("probes = %d, want 2", got)
	}
}

func TestLivenessTimeoutEvictsOnce(t *testing.T) {
	p := &livenessProbe{}
	l, s := newTestLiveness(p)
	l.Start()

	s.Advance(5 * time.Second)
	s.Advance(999 * time.Millisecond)
	if p.deaths.Load() != 0 {
		t.Fatal("evicted before timeout")
	}
	s.Advance(time.Millisecond)
	if p.deaths.Load() != 1 || l.State() != StateDead {
		t.Fatalf("deaths=%d state=%s", p.deaths.Load(), l.State())
	}
	cause, _ := p.cause.Load().(error)
	if !errors.Is(cause, errs.ErrLivenessTimeout) {
		t.Fatalf("cause = %v", cause)
	}

	// a late pong must not bring it back, and nothing else fires
	l.Ack()
	s.Advance(time.Minute)
	if p.deaths.Load() != 1 || p.probes.Load() != 1 || l.State() != StateDead {
		t.Fatalf("deaths=%d probes=%d state=%s", p.deaths.Load(), p.probes.Load(), l.State())
	}
	if s.Pending() != 0 {
		t.Fatalf("pending timers = %d", s.Pending())
	}
}

func TestLivenessStopCancelsTimers(t *testing.T) {
	p := &livenessProbe{}
	l, s := newTestLiveness(p)
	l.Start()
	s.Advance(5 * time.Second)

	l.Stop()
	s.Advance(time.Minute)
	if p.deaths.Load() != 0 {
		t.Fatal("stopped monitor must not report death")
	}
	if p.probes.Load() != 1 {
		t.Fatalf("probes = %d", p.probes.Load())
	}
	if s.Pending() != 0 {
		t.Fatalf("pending timers = %d", s.Pending())
	}

	l.Start()
	s.Advance(time.Minute)
	if p.probes.Load() != 1 {
		t.Fatal("restart after stop must be ignored")
	}
}

func TestLivenessProbeFailureIsFatal(t *testing.T) {
	p := &livenessProbe{err: errors.New("broken pipe")}
	l, s := newTestLiveness(p)
	l.Start()
	s.Advance(5 * time.Second)

	if p.deaths.Load() != 1 || l.State() != StateDead {
		t.Fatalf("deaths=%d state=%s", p.deaths.Load(), l.State())
	}
	s.Advance(time.Second)
	if p.deaths.Load() != 1 {
		t.Fatal("timeout fired after probe failure")
	}
}

func TestLivenessAckWithoutProbeIgnored(t *testing.T) {
	p := &livenessProbe{}
	l, s := newTestLiveness(p)
	l.Start()
	l.Ack()
	s.Advance(5 * time.Second)
	if p.probes.Load() != 1 {
		t.Fatalf("probes = %d", p.probes.Load())
	}
}
