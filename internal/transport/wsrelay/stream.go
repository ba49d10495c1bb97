// Package wsrelay is a reference implementation of the relay.Source
// and relay.Destination contracts over a WebSocket connection
// multiplexed with github.com/hashicorp/yamux, so that many sessions
// can share one physical connection to a peer. It is a concrete,
// swappable adapter the core never imports — relay.Session only ever
// sees the relay.Source/Destination interfaces.
package wsrelay

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/hashicorp/yamux"
)

const (
	// defaultQueueChunks bounds how many unwritten chunks a
	// DestinationStream will buffer before Write reports backpressure.
	defaultQueueChunks = 64

	// readBufferSize is the size of the buffer SourceStream reuses
	// across reads.
	readBufferSize = 32 * 1024
)

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, yamux.ErrSessionShutdown) {
		return true
	}
	return false
}

// SourceStream adapts a net.Conn (typically a *yamux.Stream) into a
// relay.Source. Construct it with NewSourceStream, register every
// On* handler (normally done by relay.Session.RegisterSource), then
// call Listen to start delivering signals — Listen is split out
// deliberately so the read loop never starts before handlers are
// wired.
type SourceStream struct {
	conn net.Conn

	mu       sync.Mutex
	onData   func([]byte)
	onEnd    func()
	onError  func(error)
	onClose  func()
	paused   bool
	resumeCh chan struct{}
}

// NewSourceStream wraps conn as a relay.Source.
func NewSourceStream(conn net.Conn) *SourceStream {
	return &SourceStream{conn: conn, resumeCh: make(chan struct{})}
}

func (s *SourceStream) OnData(h func([]byte))  { s.mu.Lock(); s.onData = h; s.mu.Unlock() }
func (s *SourceStream) OnEnd(h func())         { s.mu.Lock(); s.onEnd = h; s.mu.Unlock() }
func (s *SourceStream) OnError(h func(error))  { s.mu.Lock(); s.onError = h; s.mu.Unlock() }
func (s *SourceStream) OnClose(h func())       { s.mu.Lock(); s.onClose = h; s.mu.Unlock() }

func (s *SourceStream) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *SourceStream) Resume() {
	s.mu.Lock()
	if s.paused {
		s.paused = false
		close(s.resumeCh)
		s.resumeCh = make(chan struct{})
	}
	s.mu.Unlock()
}

func (s *SourceStream) Close() error {
	return s.conn.Close()
}

// Listen starts the read loop. It must be called exactly once, after
// every On* handler has been registered.
func (s *SourceStream) Listen() {
	go s.readLoop()
}

func (s *SourceStream) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		s.waitIfPaused()

		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if h := s.handler(func() func([]byte) { return s.onData }); h != nil {
				h(chunk)
			}
		}
		if err == nil {
			continue
		}

		switch {
		case errors.Is(err, io.EOF):
			if h := s.handlerVoid(func() func() { return s.onEnd }); h != nil {
				h()
			}
		case isClosedErr(err):
			if h := s.handlerVoid(func() func() { return s.onClose }); h != nil {
				h()
			}
		default:
			if h := s.handlerErr(func() func(error) { return s.onError }); h != nil {
				h(err)
			}
		}
		return
	}
}

func (s *SourceStream) waitIfPaused() {
	for {
		s.mu.Lock()
		if !s.paused {
			s.mu.Unlock()
			return
		}
		ch := s.resumeCh
		s.mu.Unlock()
		<-ch
	}
}

func (s *SourceStream) handler(get func() func([]byte)) func([]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get()
}

func (s *SourceStream) handlerVoid(get func() func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get()
}

func (s *SourceStream) handlerErr(get func() func(error)) func(error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get()
}

// DestinationStream adapts a net.Conn into a relay.Destination,
// queuing writes behind a bounded channel so Write can report
// backpressure once the queue fills instead of blocking the caller
// (typically relay.Session's pipe, which would otherwise stall every
// other session sharing its goroutine). Like SourceStream, construct,
// wire handlers, then call Listen.
type DestinationStream struct {
	conn net.Conn

	queue chan []byte

	mu       sync.Mutex
	onDrain  func()
	onFinish func()
	onError  func(error)
	onClose  func()
	ended    bool
}

// NewDestinationStream wraps conn as a relay.Destination.
func NewDestinationStream(conn net.Conn) *DestinationStream {
	return &DestinationStream{
		conn:  conn,
		queue: make(chan []byte, defaultQueueChunks),
	}
}

func (d *DestinationStream) OnDrain(h func())     { d.mu.Lock(); d.onDrain = h; d.mu.Unlock() }
func (d *DestinationStream) OnFinish(h func())    { d.mu.Lock(); d.onFinish = h; d.mu.Unlock() }
func (d *DestinationStream) OnError(h func(error)) { d.mu.Lock(); d.onError = h; d.mu.Unlock() }
func (d *DestinationStream) OnClose(h func())     { d.mu.Lock(); d.onClose = h; d.mu.Unlock() }

// Write enqueues chunk for the writer goroutine. ok is false once the
// queue is full, signaling the caller (relay.Session) to Pause its
// source until OnDrain fires.
func (d *DestinationStream) Write(chunk []byte) (bool, error) {
	select {
	case d.queue <- chunk:
	default:
		d.queue <- chunk // block: never drop bytes, the caller already saw ok=false last time
	}
	return len(d.queue) < cap(d.queue), nil
}

// End tells the writer goroutine no more chunks are coming; once the
// queue has fully drained, OnFinish fires.
func (d *DestinationStream) End() {
	d.mu.Lock()
	if !d.ended {
		d.ended = true
		close(d.queue)
	}
	d.mu.Unlock()
}

func (d *DestinationStream) Close() error {
	return d.conn.Close()
}

// Listen starts the writer loop. Must be called exactly once, after
// every On* handler has been registered.
func (d *DestinationStream) Listen() {
	go d.writeLoop()
}

func (d *DestinationStream) writeLoop() {
	wasFull := false
	for chunk := range d.queue {
		if _, err := d.conn.Write(chunk); err != nil {
			if isClosedErr(err) {
				d.fireVoid(func() func() { return d.onClose })
			} else {
				d.fireErr(func() func(error) { return d.onError }, err)
			}
			return
		}
		full := len(d.queue) >= cap(d.queue)
		if wasFull && !full {
			d.fireVoid(func() func() { return d.onDrain })
		}
		wasFull = full
	}

	if cw, ok := d.conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	d.fireVoid(func() func() { return d.onFinish })
}

func (d *DestinationStream) fireVoid(get func() func()) {
	d.mu.Lock()
	h := get()
	d.mu.Unlock()
	if h != nil {
		h()
	}
}

func (d *DestinationStream) fireErr(get func() func(error), err error) {
	d.mu.Lock()
	h := get()
	d.mu.Unlock()
	if h != nil {
		h(err)
	}
}
