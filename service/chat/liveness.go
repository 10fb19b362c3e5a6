package chat

import (
	"sync"
	"time"

	"PPGate/tools/errs"
)

type LivenessState int32

const (
	StateActive LivenessState = iota
	StateProbeOutstanding
	StateDead
)

func (s LivenessState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateProbeOutstanding:
		return "probe_outstanding"
	default:
		return "dead"
	}
}

const (
	DefaultPingInterval = 5 * time.Second
	DefaultPongTimeout  = time.Second
)

type LivenessConfig struct {
	Interval  time.Duration
	Timeout   time.Duration
	Scheduler Scheduler
}

// Liveness drives the probe/ack cycle of a single connection:
//
//	ACTIVE --interval--> PROBE_OUTSTANDING --ack--> ACTIVE
//	                     PROBE_OUTSTANDING --timeout--> DEAD
//
// Every transition bumps gen; a timer that fires with a stale gen is a no-op,
// so a late ack can never resurrect a dead connection and a cancelled timer
// can never evict a live one.
type Liveness struct {
	mu        sync.Mutex
	state     LivenessState
	started   bool
	gen       uint64
	lastProbe time.Time
	next      Timer
	deadline  Timer

	interval time.Duration
	timeout  time.Duration
	sched    Scheduler
	probe    func() error
	onDead   func(error)
}

func NewLiveness(cfg LivenessConfig, probe func() error, onDead func(error)) *Liveness {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPingInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPongTimeout
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = realScheduler{}
	}
	return &Liveness{
		state:    StateActive,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		sched:    cfg.Scheduler,
		probe:    probe,
		onDead:   onDead,
	}
}

func (l *Liveness) State() LivenessState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start arms the first probe. Calling it twice, or after Stop, does nothing.
func (l *Liveness) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.state == StateDead {
		return
	}
	l.started = true
	l.scheduleProbeLocked(l.interval)
}

// Ack records a pong. Outside PROBE_OUTSTANDING it is ignored.
func (l *Liveness) Ack() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateProbeOutstanding {
		return
	}
	if l.deadline != nil {
		l.deadline.Stop()
		l.deadline = nil
	}
	l.state = StateActive
	l.gen++
	// keep the cadence anchored to the previous probe
	wait := l.interval - l.sched.Now().Sub(l.lastProbe)
	if wait < 0 {
		wait = 0
	}
	l.scheduleProbeLocked(wait)
}

// Stop cancels every pending timer without invoking onDead.
func (l *Liveness) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateDead {
		return
	}
	l.state = StateDead
	l.gen++
	l.stopTimersLocked()
}

func (l *Liveness) scheduleProbeLocked(d time.Duration) {
	gen := l.gen
	l.next = l.sched.AfterFunc(d, func() { l.sendProbe(gen) })
}

func (l *Liveness) stopTimersLocked() {
	if l.next != nil {
		l.next.Stop()
		l.next = nil
	}
	if l.deadline != nil {
		l.deadline.Stop()
		l.deadline = nil
	}
}

func (l *Liveness) sendProbe(gen uint64) {
	l.mu.Lock()
	if gen != l.gen || l.state != StateActive {
		l.mu.Unlock()
		return
	}
	l.state = StateProbeOutstanding
	l.gen++
	probeGen := l.gen
	l.next = nil
	l.lastProbe = l.sched.Now()
	l.deadline = l.sched.AfterFunc(l.timeout, func() { l.expire(probeGen, errs.ErrLivenessTimeout.Wrap()) })
	l.mu.Unlock()

	// the probe goes out after the state flip so a fast pong is never lost
	if err := l.probe(); err != nil {
		l.expire(probeGen, errs.ErrLivenessTimeout.Cause(err))
	}
}

func (l *Liveness) expire(gen uint64, cause error) {
	l.mu.Lock()
	if gen != l.gen || l.state != StateProbeOutstanding {
		l.mu.Unlock()
		return
	}
	l.state = StateDead
	l.gen++
	l.stopTimersLocked()
	l.mu.Unlock()

	if l.onDead != nil {
		l.onDead(cause)
	}
}
