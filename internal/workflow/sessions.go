package workflow

import (
	"sync"
	"time"
)

const (
	// Sessions with nothing unsaved are dropped after this much idle time.
	settledSessionTTL = 30 * time.Minute
	// Any session, even one holding a draft, is dropped after this.
	abandonedSessionTTL = 24 * time.Hour
	sweepInterval       = time.Minute
)

type sessionEntry struct {
	session  *Session
	lastUsed time.Time
}

// Sessions keeps one Session per key (a Slack user in a channel) so drafts
// of different users never mix. Idle sessions are evicted lazily from Get.
type Sessions struct {
	store Store
	now   func() time.Time

	mu        sync.Mutex
	sessions  map[string]*sessionEntry
	lastSweep time.Time
}

func NewSessions(store Store, now func() time.Time) *Sessions {
	return &Sessions{store: store, now: now, sessions: make(map[string]*sessionEntry)}
}

func SessionKey(userID, channelID string) string {
	return userID + ":" + channelID
}

func (m *Sessions) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

// Get returns the session for key, creating an empty one on first use.
func (m *Sessions) Get(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	if now.Sub(m.lastSweep) >= sweepInterval {
		m.sweep(now)
		m.lastSweep = now
	}
	e, ok := m.sessions[key]
	if !ok {
		e = &sessionEntry{session: NewSession(m.store, m.now)}
		m.sessions[key] = e
	}
	e.lastUsed = now
	return e.session
}

// Lookup returns the session for key without creating one.
func (m *Sessions) Lookup(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[key]
	if !ok {
		return nil, false
	}
	return e.session, true
}

func (m *Sessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweep drops idle sessions. A session whose lock is held is mid-request
// and always kept. Callers hold m.mu.
func (m *Sessions) sweep(now time.Time) {
	for key, e := range m.sessions {
		idle := now.Sub(e.lastUsed)
		if idle < settledSessionTTL {
			continue
		}
		if !e.session.mu.TryLock() {
			continue
		}
		state := e.session.state
		e.session.mu.Unlock()

		settled := state == StateEmpty || state == StateSubmitted
		if settled || idle >= abandonedSessionTTL {
			delete(m.sessions, key)
		}
	}
}
