package relay

import "sync/atomic"

// startPipe wires the byte-forwarding protocol on entry to STREAMING:
// it attaches observers to both endpoints, forwards bytes from source
// to destination respecting destination backpressure, and classifies
// whichever terminal signal arrives first. It is callback-driven
// rather than a blocking copy loop because Source/Destination expose
// push-style signals (OnData, OnDrain, OnClose, ...) instead of
// blocking Read/Write, so a session can react to a disconnect or
// error the instant it's reported instead of only between reads.
func (s *Session) startPipe() {
	s.mu.Lock()
	src, dst := s.source, s.destination
	s.mu.Unlock()
	if src == nil || dst == nil {
		return
	}

	src.OnData(func(chunk []byte) {
		if !s.streaming() {
			return
		}
		ok, err := dst.Write(chunk)
		if err != nil {
			s.terminalFromStreaming(DST_ERROR, destinationErrorOf(err))
			return
		}
		atomic.AddInt64(&s.bytesTransferred, int64(len(chunk)))
		if !ok {
			src.Pause()
		}
	})

	dst.OnDrain(func() {
		if s.streaming() {
			src.Resume()
		}
	})

	src.OnEnd(func() {
		s.mu.Lock()
		if s.state != STREAMING {
			s.mu.Unlock()
			return
		}
		s.srcEnded = true
		s.mu.Unlock()
		dst.End()
	})

	dst.OnFinish(func() {
		s.mu.Lock()
		finished := s.state == STREAMING && s.srcEnded
		s.mu.Unlock()
		if finished {
			s.terminalFromStreaming(FINISHED, s)
		}
	})

	src.OnError(func(err error) {
		s.terminalFromStreaming(SRC_ERROR, sourceErrorOf(err))
	})

	dst.OnError(func(err error) {
		s.terminalFromStreaming(DST_ERROR, destinationErrorOf(err))
	})

	src.OnClose(func() {
		s.mu.Lock()
		alreadyEnded := s.srcEnded
		s.mu.Unlock()
		if !alreadyEnded {
			s.terminalFromStreaming(SRC_DISCONNECTED, errSourceDisconnected)
		}
	})

	dst.OnClose(func() {
		s.terminalFromStreaming(DST_DISCONNECTED, errDestinationDisconnected)
	})
}

// streaming reports whether the session is still in STREAMING,
// letting pipe callbacks cheaply ignore signals that arrive after a
// terminal event has already fired and the session has moved on.
func (s *Session) streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == STREAMING
}

// terminalFromStreaming transitions out of STREAMING into newState and
// fires the matching error/finished event, unless some other signal
// already won the race and moved the session out of STREAMING first.
func (s *Session) terminalFromStreaming(newState State, payload any) {
	s.mu.Lock()
	if s.state != STREAMING {
		s.mu.Unlock()
		return
	}
	eventName := EventError
	if newState == FINISHED {
		eventName = EventFinished
	}
	s.transitionToTerminal(newState, eventName, payload)
}
