package relay

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Session tracks one source-to-destination pairing through its finite
// state machine. It is created only by SessionManager.CreateSession,
// mutated only by its own registration methods, by signals from its
// attached streams, by its timeout timer, or by an explicit
// Deactivate, and is safe for concurrent use: every transition is
// serialized behind mu, since any of those triggers can fire from a
// different goroutine at any time and at most one of them may win a
// given session.
type Session struct {
	id     string
	events *emitter

	mu          sync.Mutex
	state       State
	source      Source
	destination Destination
	clientErr   *ClientError
	active      bool
	createdAt   time.Time
	deadline    time.Time
	ttl         time.Duration
	timer       *time.Timer
	srcEnded    bool

	bytesTransferred int64 // atomic; advances only while state == STREAMING

	// onInactive is invoked exactly once, outside mu, the instant the
	// session becomes inactive (any terminal transition, or
	// Deactivate). SessionManager uses it to schedule removal of its
	// own reference after a grace period; lookups already stop
	// returning the session because GetSession checks its state.
	onInactive func(*Session)
}

func newSession(id string, ttl time.Duration, onInactive func(*Session)) *Session {
	now := time.Now()
	s := &Session{
		id:         id,
		events:     newEmitter(),
		state:      CREATED,
		active:     true,
		createdAt:  now,
		deadline:   now.Add(ttl),
		ttl:        ttl,
		onInactive: onInactive,
	}
	s.timer = time.AfterFunc(ttl, s.onDeadline)
	return s
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current state label.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the session still holds its resources; it
// turns false once they have been released.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// BytesTransferred returns the running count of bytes the destination
// has accepted so far. Safe to read from any goroutine.
func (s *Session) BytesTransferred() int64 {
	return atomic.LoadInt64(&s.bytesTransferred)
}

// ClientError returns the structured error recorded by
// RegisterClientError, or nil if none was ever registered.
func (s *Session) ClientError() *ClientError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientErr
}

// CreatedAt returns the time the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Deadline returns the time at which the pre-streaming timeout fires,
// unless the session has already left the pre-streaming phase.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// RegisterSource attaches src as the session's producer. It fails with
// a *DuplicateEndpointError if a source is already registered, or
// ErrSessionTerminal if the session has already reached a terminal
// state or been deactivated.
func (s *Session) RegisterSource(src Source) error {
	if src == nil {
		return errors.New("relay: nil source")
	}

	s.mu.Lock()
	if s.state.terminal() || !s.active {
		s.mu.Unlock()
		return ErrSessionTerminal
	}
	if s.source != nil {
		s.mu.Unlock()
		return &DuplicateEndpointError{Endpoint: EndpointSource}
	}

	s.source = src
	switch s.state {
	case CREATED:
		s.state = SRC_CONNECTED
	case DST_CONNECTED:
		s.state = STREAMING
	}
	enteredStreaming := s.state == STREAMING
	if enteredStreaming {
		s.timer.Stop()
	}
	s.mu.Unlock()

	if enteredStreaming {
		s.startPipe()
	}
	return nil
}

// RegisterDestination attaches dst as the session's consumer. Fails
// the same way RegisterSource does, symmetrically.
func (s *Session) RegisterDestination(dst Destination) error {
	if dst == nil {
		return errors.New("relay: nil destination")
	}

	s.mu.Lock()
	if s.state.terminal() || !s.active {
		s.mu.Unlock()
		return ErrSessionTerminal
	}
	if s.destination != nil {
		s.mu.Unlock()
		return &DuplicateEndpointError{Endpoint: EndpointDestination}
	}

	s.destination = dst
	switch s.state {
	case CREATED:
		s.state = DST_CONNECTED
	case SRC_CONNECTED:
		s.state = STREAMING
	}
	enteredStreaming := s.state == STREAMING
	if enteredStreaming {
		s.timer.Stop()
	}
	s.mu.Unlock()

	if enteredStreaming {
		s.startPipe()
	}
	return nil
}

// RegisterClientError records err on the session, transitions it to
// CLIENT_ERROR, and emits client_error. The event fires and every
// registered handler runs to completion before RegisterClientError
// returns, and by the time it returns Active() is already false, so a
// caller observing RegisterClientError return can rely on teardown
// having happened already. Valid from any non-terminal state.
func (s *Session) RegisterClientError(clientErr *ClientError) error {
	if clientErr == nil {
		return errors.New("relay: nil client error")
	}

	s.mu.Lock()
	if s.state.terminal() || !s.active {
		s.mu.Unlock()
		return ErrSessionTerminal
	}
	s.clientErr = clientErr
	s.transitionToTerminal(CLIENT_ERROR, EventClientError, s)
	return nil
}

// Deactivate forcibly releases the session's resources and disarms its
// timer. It is callable from any state, idempotent, and emits no
// events. It races safely against the timeout timer and against
// stream signals: whichever reaches the session first wins — a
// terminal transition already in flight (state set, mu released, but
// active not yet flipped to false while handlers run) must make
// Deactivate a no-op rather than let it run teardown a second time, so
// the guard checks the state, not just the active flag.
func (s *Session) Deactivate() {
	s.mu.Lock()
	if !s.active || s.state.terminal() {
		s.mu.Unlock()
		return
	}
	s.timer.Stop()
	src, dst := s.source, s.destination
	s.source, s.destination = nil, nil
	s.active = false
	s.mu.Unlock()

	if src != nil {
		src.Close()
	}
	if dst != nil {
		dst.Close()
	}
	if s.onInactive != nil {
		s.onInactive(s)
	}
}

// onDeadline is the timer callback armed at construction. It is a
// no-op once the session has left the pre-streaming phase: entry to
// STREAMING or any terminal state disarms the timer, but
// time.Timer.Stop does not guarantee a fire already in flight is
// canceled, so onDeadline must re-check state under mu and do nothing
// if the session has already moved on.
func (s *Session) onDeadline() {
	s.mu.Lock()
	var target State
	switch s.state {
	case CREATED:
		target = TIMEOUT_NO_SRC_NO_DST
	case SRC_CONNECTED:
		target = TIMEOUT_NO_DST
	case DST_CONNECTED:
		target = TIMEOUT_NO_SRC
	default:
		s.mu.Unlock()
		return
	}
	s.transitionToTerminal(target, EventTimeout, s)
}

// transitionToTerminal must be called with mu held by the caller, who
// has already decided newState is reachable from the current state.
// It unlocks mu before returning. It is the single place resource
// release happens, so every terminal transition — timeout, stream
// error, disconnect, or client error — goes through it.
func (s *Session) transitionToTerminal(newState State, eventName EventName, payload any) {
	if s.state.terminal() || !s.active {
		s.mu.Unlock()
		return
	}
	s.state = newState
	s.timer.Stop()
	src, dst := s.source, s.destination
	s.source, s.destination = nil, nil
	s.mu.Unlock()

	s.events.emit(eventName, payload)

	if src != nil {
		src.Close()
	}
	if dst != nil {
		dst.Close()
	}

	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	if s.onInactive != nil {
		s.onInactive(s)
	}
}
