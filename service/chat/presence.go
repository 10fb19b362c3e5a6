package chat

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"PPGate/logger"
	"PPGate/service/events"
)

// Presence pushes the full roster to every admitted connection whenever the
// registry changes. It runs inside the registry's change notification, so it
// only enqueues and never writes to a transport directly.
type Presence struct {
	reg       *ConnManager
	events    events.Publisher
	metrics   *Metrics
	gatewayID string
}

// NewPresence subscribes to reg. pub must not block; wrap network publishers
// in events.Async.
func NewPresence(reg *ConnManager, pub events.Publisher, m *Metrics, gatewayID string) *Presence {
	if pub == nil {
		pub = events.Noop{}
	}
	p := &Presence{reg: reg, events: pub, metrics: m, gatewayID: gatewayID}
	reg.OnChange(p.broadcast)
	return p
}

// Announce re-sends the current roster to everyone.
func (p *Presence) Announce() {
	p.reg.View(p.broadcast)
}

func (p *Presence) broadcast(s Snapshot) {
	frame, err := json.Marshal(RosterFrame{Online: s.Roster})
	if err != nil {
		logger.Error("marshal roster", zap.Error(err))
		return
	}
	for _, c := range s.Conns {
		c.Enqueue(frame)
	}
	if p.metrics != nil {
		p.metrics.broadcasts.Inc()
		p.metrics.connections.Set(float64(len(s.Conns)))
		p.metrics.online.Set(float64(len(s.Roster)))
	}
	if err := p.events.Publish(context.Background(), events.TopicPresenceChanged, p.gatewayID, frame); err != nil {
		logger.Debug("presence event not published", zap.Error(err))
	}
}
