package relay

// Source is implemented by whatever produces bytes for a Session —
// typically an adapter wrapping a network connection, as
// internal/transport/wsrelay does over a websocket+yamux stream. The
// core never inspects or transforms the bytes it receives beyond
// counting them; it relays opaque payloads and has no reason to parse
// them.
//
// Exactly one of OnEnd/OnError/OnClose's handlers fires for a given
// source during STREAMING. After OnError or OnClose the session has
// left STREAMING and the core ignores every later signal. After OnEnd
// the session stays in STREAMING until the destination finishes; a
// later OnClose is then not treated as a disconnect.
type Source interface {
	// OnData registers h to be called with each chunk of bytes the
	// source produces, in order.
	OnData(h func(chunk []byte))

	// OnEnd registers h to be called exactly once, when the source has
	// no more data to deliver (a clean end-of-stream).
	OnEnd(h func())

	// OnError registers h to be called with the underlying error if
	// the source fails before signaling end-of-stream.
	OnError(h func(err error))

	// OnClose registers h to be called if the source's underlying
	// connection closes before OnEnd or OnError has fired.
	OnClose(h func())

	// Pause asks the source to stop calling the OnData handler until
	// Resume is called. Used to implement destination backpressure.
	Pause()

	// Resume undoes a prior Pause.
	Resume()

	// Close releases the source's underlying connection. Called by the
	// core during resource release; implementations must make it safe
	// to call more than once, since both a terminal transition and an
	// explicit Deactivate can reach the same endpoint.
	Close() error
}

// Destination is implemented by whatever consumes bytes for a
// Session.
type Destination interface {
	// Write delivers chunk to the destination. ok is false when the
	// destination's internal buffer is full; the caller must stop
	// writing and wait for OnDrain before writing again. err is
	// non-nil only on a hard failure, which also fires OnError.
	Write(chunk []byte) (ok bool, err error)

	// End tells the destination no more data is coming. Once the
	// destination has flushed everything written to it, it must call
	// the handler registered with OnFinish.
	End()

	// OnDrain registers h to be called each time the destination's
	// buffer empties enough to accept writes again after Write
	// returned ok=false. May fire any number of times.
	OnDrain(h func())

	// OnFinish registers h to be called exactly once, after End has
	// been called and the destination has fully flushed. This is the
	// signal the core waits for before the FINISHED transition; it is
	// distinct from OnDrain, which fires repeatedly to release
	// mid-stream backpressure and carries no implication the stream is
	// done.
	OnFinish(h func())

	// OnError registers h to be called with the underlying error if
	// the destination fails.
	OnError(h func(err error))

	// OnClose registers h to be called if the destination's connection
	// closes before OnFinish has fired.
	OnClose(h func())

	// Close releases the destination's underlying connection. Called
	// by the core during resource release; implementations must make
	// it safe to call more than once.
	Close() error
}
