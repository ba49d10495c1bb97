package relay

import "sync"

// fakeSource and fakeDestination are minimal, controllable
// implementations of the Source/Destination contract used to drive
// Session through its state machine without a real network
// connection.
type fakeSource struct {
	mu      sync.Mutex
	onData  func([]byte)
	onEnd   func()
	onError func(error)
	onClose func()
	paused  bool
	closed  bool
	resumes int
}

func (f *fakeSource) OnData(h func([]byte)) { f.mu.Lock(); f.onData = h; f.mu.Unlock() }
func (f *fakeSource) OnEnd(h func())        { f.mu.Lock(); f.onEnd = h; f.mu.Unlock() }
func (f *fakeSource) OnError(h func(error)) { f.mu.Lock(); f.onError = h; f.mu.Unlock() }
func (f *fakeSource) OnClose(h func())      { f.mu.Lock(); f.onClose = h; f.mu.Unlock() }

func (f *fakeSource) Pause() { f.mu.Lock(); f.paused = true; f.mu.Unlock() }
func (f *fakeSource) Resume() {
	f.mu.Lock()
	f.paused = false
	f.resumes++
	f.mu.Unlock()
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) isPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSource) emitData(chunk []byte) {
	f.mu.Lock()
	h := f.onData
	f.mu.Unlock()
	if h != nil {
		h(chunk)
	}
}

func (f *fakeSource) emitEnd() {
	f.mu.Lock()
	h := f.onEnd
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

func (f *fakeSource) emitError(err error) {
	f.mu.Lock()
	h := f.onError
	f.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func (f *fakeSource) emitClose() {
	f.mu.Lock()
	h := f.onClose
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

type fakeDestination struct {
	mu       sync.Mutex
	onDrain  func()
	onFinish func()
	onError  func(error)
	onClose  func()
	received []byte
	ended    bool
	closed   bool
	nextOK   bool
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{nextOK: true}
}

func (f *fakeDestination) Write(chunk []byte) (bool, error) {
	f.mu.Lock()
	f.received = append(f.received, chunk...)
	ok := f.nextOK
	f.mu.Unlock()
	return ok, nil
}

func (f *fakeDestination) End() {
	f.mu.Lock()
	f.ended = true
	f.mu.Unlock()
}

func (f *fakeDestination) OnDrain(h func())  { f.mu.Lock(); f.onDrain = h; f.mu.Unlock() }
func (f *fakeDestination) OnFinish(h func()) { f.mu.Lock(); f.onFinish = h; f.mu.Unlock() }
func (f *fakeDestination) OnError(h func(error)) {
	f.mu.Lock()
	f.onError = h
	f.mu.Unlock()
}
func (f *fakeDestination) OnClose(h func()) { f.mu.Lock(); f.onClose = h; f.mu.Unlock() }

func (f *fakeDestination) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeDestination) setAcceptsWrites(ok bool) {
	f.mu.Lock()
	f.nextOK = ok
	f.mu.Unlock()
}

func (f *fakeDestination) bytesReceived() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.received...)
}

func (f *fakeDestination) emitDrain() {
	f.mu.Lock()
	h := f.onDrain
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

func (f *fakeDestination) emitFinish() {
	f.mu.Lock()
	h := f.onFinish
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

func (f *fakeDestination) emitError(err error) {
	f.mu.Lock()
	h := f.onError
	f.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func (f *fakeDestination) emitClose() {
	f.mu.Lock()
	h := f.onClose
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

func (f *fakeDestination) hasEnded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended
}
