package chat

import (
	"sort"
	"sync"

	"PPGate/tools/errs"
)

// Snapshot is the registry as seen by one change notification.
type Snapshot struct {
	Conns  []*WsConn
	Roster []RosterEntry
}

// ConnManager is the connection registry. Observers registered with OnChange
// run while the write lock is held, so each notification sees exactly the
// membership produced by its mutation and notifications are totally ordered.
// Observers must not block and must not call back into the manager.
type ConnManager struct {
	mu        sync.RWMutex
	byID      map[string]*WsConn
	byUser    map[string]map[string]*WsConn
	observers []func(Snapshot)
}

func NewConnManager() *ConnManager {
	return &ConnManager{
		byID:   make(map[string]*WsConn),
		byUser: make(map[string]map[string]*WsConn),
	}
}

func (m *ConnManager) OnChange(f func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, f)
}

// Admit adds c. The identity bound at this point is frozen for the lifetime
// of the connection.
func (m *ConnManager) Admit(c *WsConn) error {
	if c == nil {
		return errs.ErrArgs.WrapMsg("nil conn")
	}
	if c.Closed() {
		return errs.ErrArgs.WrapMsg("conn already closed", "conn", c.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[c.ID]; ok {
		return errs.ErrRecordExists.WrapMsg("conn already admitted", "conn", c.ID)
	}
	c.markAdmitted()
	m.byID[c.ID] = c
	if id, ok := c.Identity(); ok {
		set := m.byUser[id.UserID]
		if set == nil {
			set = make(map[string]*WsConn)
			m.byUser[id.UserID] = set
		}
		set[c.ID] = c
	}
	m.notifyLocked()
	return nil
}

// Remove evicts c and reports whether it was present. Only the first call
// for a connection returns true.
func (m *ConnManager) Remove(c *WsConn) bool {
	if c == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[c.ID]; !ok {
		return false
	}
	delete(m.byID, c.ID)
	if id, ok := c.Identity(); ok {
		if set := m.byUser[id.UserID]; set != nil {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(m.byUser, id.UserID)
			}
		}
	}
	m.notifyLocked()
	return true
}

// View runs f against the current snapshot, serialized with mutations.
func (m *ConnManager) View(f func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(m.snapshotLocked())
}

func (m *ConnManager) All() []*WsConn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connsLocked()
}

// ForUser returns every live connection authenticated as userID.
func (m *ConnManager) ForUser(userID string) []*WsConn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.byUser[userID]
	out := make([]*WsConn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (m *ConnManager) Roster() []RosterEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rosterLocked()
}

func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func (m *ConnManager) notifyLocked() {
	if len(m.observers) == 0 {
		return
	}
	s := m.snapshotLocked()
	for _, f := range m.observers {
		f(s)
	}
}

func (m *ConnManager) snapshotLocked() Snapshot {
	return Snapshot{Conns: m.connsLocked(), Roster: m.rosterLocked()}
}

func (m *ConnManager) connsLocked() []*WsConn {
	out := make([]*WsConn, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out
}

// rosterLocked lists each authenticated user once, ordered by username.
func (m *ConnManager) rosterLocked() []RosterEntry {
	out := make([]RosterEntry, 0, len(m.byUser))
	for uid, set := range m.byUser {
		for _, c := range set {
			id, _ := c.Identity()
			out = append(out, RosterEntry{UserID: uid, Username: id.Username})
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
