package relay

import (
	"sync"
	"time"
)

// DefaultSessionTTL is used when a SessionManager is constructed
// without an explicit TTL.
const DefaultSessionTTL = 30 * time.Second

// ManagerConfig configures a SessionManager.
type ManagerConfig struct {
	// SessionTTL is both the pre-streaming inactivity deadline each
	// Session arms at creation and the delay between a session going
	// inactive and its removal from the manager's index becoming
	// final (its id is already unreachable via GetSession the instant
	// it goes inactive — see DESIGN.md's "manager index visibility"
	// decision, recorded there rather than here since it's a design
	// rationale, not an API contract).
	SessionTTL time.Duration
}

// SessionManager creates sessions with fresh identifiers, indexes live
// sessions, and schedules their removal a configured interval after
// they become inactive. Removal from the lookup surface (GetSession)
// happens synchronously with a session going inactive; only the map
// entry itself lingers for the TTL, so a slow client holding a stale
// id gets a clean ErrSessionNotFound instead of racing a periodic
// sweep.
type SessionManager struct {
	ttl time.Duration

	mu    sync.Mutex
	index map[string]*Session
}

// NewManager constructs a SessionManager. A zero cfg.SessionTTL is
// replaced with DefaultSessionTTL.
func NewManager(cfg ManagerConfig) *SessionManager {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		ttl:   ttl,
		index: make(map[string]*Session),
	}
}

// CreateSession allocates a fresh identifier, constructs a Session
// bound to this manager's TTL, inserts it into the index, and returns
// the handle.
func (m *SessionManager) CreateSession() *Session {
	id := generateID()
	s := newSession(id, m.ttl, m.onSessionInactive)

	m.mu.Lock()
	m.index[id] = s
	m.mu.Unlock()

	return s
}

// GetSession returns the live Session for id, or ErrSessionNotFound if
// no such session exists, or it has reached a terminal state or gone
// inactive — even if it has not yet been destroyed. The underlying map
// entry survives until the TTL elapses (see onSessionInactive), but
// GetSession consults the session's state and Session.Active(), not
// map presence: the state turns terminal the instant the transition
// happens, before event handlers run and Active() flips to false, so a
// lookup never returns a session that has reached a terminal state.
func (m *SessionManager) GetSession(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.index[id]
	m.mu.Unlock()
	if !ok || !s.Active() || s.State().terminal() {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Len reports the number of map entries the manager is still holding,
// including inactive sessions whose TTL has not yet elapsed. It is not
// the count GetSession would return not-present for.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.index)
}

// onSessionInactive is the Session.onInactive hook: it schedules the
// session's removal from the index m.ttl after it went inactive. The
// delay gives any goroutine that already holds the *Session (e.g. one
// mid-read of BytesTransferred) a grace window before its entry
// disappears, while GetSession stops handing out new references to it
// immediately.
func (m *SessionManager) onSessionInactive(s *Session) {
	time.AfterFunc(m.ttl, func() {
		m.mu.Lock()
		delete(m.index, s.ID())
		m.mu.Unlock()
	})
}
