package relay

import "sync"

// Event names, used by the generic on/once subscription surface
// underneath the typed sugar methods (OnFinished, OnTimeout, OnError,
// OnClientError) most callers use. Routing every event through one
// registry is what makes "all handlers for this event run to
// completion before the session proceeds" a single, uniformly
// enforced property instead of something each typed method has to
// reimplement.
type EventName string

const (
	EventFinished    EventName = "finished"
	EventTimeout     EventName = "timeout"
	EventError       EventName = "error"
	EventClientError EventName = "client_error"
)

type eventHandler func(payload any)

// emitter is an explicit subscription registry: callers subscribe
// with on/once_ and the Session emits by name, rather than a Session
// inheriting emitter behavior itself. Dispatch is synchronous: emit
// runs the persistent handlers registered for name in registration
// order, then the one-shot handlers in theirs, on the caller's
// goroutine, and only returns once all of them have.
type emitter struct {
	mu       sync.Mutex
	handlers map[EventName][]eventHandler
	once     map[EventName][]eventHandler
}

func newEmitter() *emitter {
	return &emitter{
		handlers: make(map[EventName][]eventHandler),
		once:     make(map[EventName][]eventHandler),
	}
}

func (e *emitter) on(name EventName, h eventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = append(e.handlers[name], h)
}

func (e *emitter) once_(name EventName, h eventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.once[name] = append(e.once[name], h)
}

// emit runs every handler registered for name (persistent and
// one-shot) to completion before returning, then clears the one-shot
// handlers for name. It must be called at most once per EventName per
// Session — the caller enforces that with its own terminal-state
// guard before ever reaching emit, which is what keeps a session from
// firing two different terminal events.
func (e *emitter) emit(name EventName, payload any) {
	e.mu.Lock()
	persistent := append([]eventHandler(nil), e.handlers[name]...)
	oneShot := e.once[name]
	delete(e.once, name)
	e.mu.Unlock()

	for _, h := range persistent {
		h(payload)
	}
	for _, h := range oneShot {
		h(payload)
	}
}

// OnFinished registers h to run when the session reaches FINISHED.
func (s *Session) OnFinished(h func(*Session)) {
	s.events.on(EventFinished, func(p any) { h(p.(*Session)) })
}

// OnTimeout registers h to run when the session reaches any TIMEOUT_* state.
func (s *Session) OnTimeout(h func(*Session)) {
	s.events.on(EventTimeout, func(p any) { h(p.(*Session)) })
}

// OnError registers h to run on SRC_ERROR, DST_ERROR, SRC_DISCONNECTED
// or DST_DISCONNECTED.
func (s *Session) OnError(h func(error)) {
	s.events.on(EventError, func(p any) { h(p.(error)) })
}

// OnClientError registers h to run when the session reaches CLIENT_ERROR.
func (s *Session) OnClientError(h func(*Session)) {
	s.events.on(EventClientError, func(p any) { h(p.(*Session)) })
}

// Once registers h to run at most once, the next time name fires.
func (s *Session) Once(name EventName, h func(any)) {
	s.events.once_(name, h)
}
