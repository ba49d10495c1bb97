package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(ttl time.Duration) *Session {
	return newSession("test-"+generateID(), ttl, nil)
}

func TestSession_RegisterSourceThenDestination_Streams(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	src := &fakeSource{}
	dst := newFakeDestination()

	require.NoError(t, s.RegisterSource(src))
	assert.Equal(t, SRC_CONNECTED, s.State())

	require.NoError(t, s.RegisterDestination(dst))
	assert.Equal(t, STREAMING, s.State())

	var finished *Session
	s.OnFinished(func(fs *Session) { finished = fs })

	src.emitData([]byte("abcdef"))
	src.emitEnd()
	dst.emitFinish()

	assert.Equal(t, FINISHED, s.State())
	assert.Equal(t, "abcdef", string(dst.bytesReceived()))
	assert.EqualValues(t, 6, s.BytesTransferred())
	assert.False(t, s.Active())
	require.NotNil(t, finished)
	assert.Equal(t, s.ID(), finished.ID())
}

func TestSession_RegisterDestinationThenSource_Streams(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	dst := newFakeDestination()
	src := &fakeSource{}

	require.NoError(t, s.RegisterDestination(dst))
	assert.Equal(t, DST_CONNECTED, s.State())

	require.NoError(t, s.RegisterSource(src))
	assert.Equal(t, STREAMING, s.State())

	src.emitData([]byte("abcdef"))
	src.emitEnd()
	dst.emitFinish()

	assert.Equal(t, FINISHED, s.State())
	assert.Equal(t, "abcdef", string(dst.bytesReceived()))
	assert.EqualValues(t, 6, s.BytesTransferred())
}

func TestSession_DuplicateSourceRegistration(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	require.NoError(t, s.RegisterSource(&fakeSource{}))

	err := s.RegisterSource(&fakeSource{})
	var dup *DuplicateEndpointError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "Source already registered", err.Error())
	assert.Equal(t, SRC_CONNECTED, s.State())
}

func TestSession_DuplicateDestinationRegistration(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	require.NoError(t, s.RegisterDestination(newFakeDestination()))

	err := s.RegisterDestination(newFakeDestination())
	var dup *DuplicateEndpointError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "Destination already registered", err.Error())
	assert.Equal(t, DST_CONNECTED, s.State())
}

func TestSession_SourceErrorDuringStreaming(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	src := &fakeSource{}
	dst := newFakeDestination()
	require.NoError(t, s.RegisterSource(src))
	require.NoError(t, s.RegisterDestination(dst))

	var gotErr error
	s.OnError(func(err error) { gotErr = err })

	src.emitError(errors.New("blahdeblah"))

	assert.Equal(t, SRC_ERROR, s.State())
	require.Error(t, gotErr)
	assert.Equal(t, "Source error: blahdeblah", gotErr.Error())
	assert.True(t, dst.closed)
	assert.False(t, s.Active())

	// Further bytes must be ignored once the session is terminal.
	src.emitData([]byte("more"))
	assert.EqualValues(t, 0, s.BytesTransferred())
}

func TestSession_DestinationErrorDuringStreaming(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	src := &fakeSource{}
	dst := newFakeDestination()
	require.NoError(t, s.RegisterSource(src))
	require.NoError(t, s.RegisterDestination(dst))

	var gotErr error
	s.OnError(func(err error) { gotErr = err })

	dst.emitError(errors.New("disk full"))

	assert.Equal(t, DST_ERROR, s.State())
	require.Error(t, gotErr)
	assert.Equal(t, "Destination error: disk full", gotErr.Error())
	assert.True(t, src.isClosed())
}

func TestSession_DestinationPrematureClose(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	src := &fakeSource{}
	dst := newFakeDestination()
	require.NoError(t, s.RegisterSource(src))
	require.NoError(t, s.RegisterDestination(dst))

	var gotErr error
	s.OnError(func(err error) { gotErr = err })

	dst.emitClose()

	assert.Equal(t, DST_DISCONNECTED, s.State())
	require.Error(t, gotErr)
	assert.Equal(t, "Destination disconnected before end", gotErr.Error())
}

func TestSession_SourcePrematureClose(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	src := &fakeSource{}
	dst := newFakeDestination()
	require.NoError(t, s.RegisterSource(src))
	require.NoError(t, s.RegisterDestination(dst))

	var gotErr error
	s.OnError(func(err error) { gotErr = err })

	src.emitClose()

	assert.Equal(t, SRC_DISCONNECTED, s.State())
	require.Error(t, gotErr)
	assert.Equal(t, "Source disconnected before end", gotErr.Error())
}

func TestSession_CloseAfterCleanEndIsNotADisconnect(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	src := &fakeSource{}
	dst := newFakeDestination()
	require.NoError(t, s.RegisterSource(src))
	require.NoError(t, s.RegisterDestination(dst))

	src.emitEnd()
	// The transport closes the now-exhausted source after end-of-stream;
	// this must not be classified as a premature disconnect.
	src.emitClose()
	assert.Equal(t, STREAMING, s.State())

	dst.emitFinish()
	assert.Equal(t, FINISHED, s.State())
}

func TestSession_Backpressure(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	src := &fakeSource{}
	dst := newFakeDestination()
	require.NoError(t, s.RegisterSource(src))
	require.NoError(t, s.RegisterDestination(dst))

	dst.setAcceptsWrites(false)
	src.emitData([]byte("x"))
	assert.True(t, src.isPaused())

	dst.emitDrain()
	assert.False(t, src.isPaused())
	assert.Equal(t, 1, src.resumes)
}

func TestSession_ClientErrorSynchronousRelease(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	done := make(chan struct{})
	var handlerFinished bool

	s.OnClientError(func(cs *Session) {
		// Simulate a slow handler; it must complete before
		// RegisterClientError returns and Active() flips false.
		time.Sleep(5 * time.Millisecond)
		handlerFinished = true
		close(done)
	})

	err := s.RegisterClientError(&ClientError{
		HTTPStatus: 400,
		Name:       "GenericError",
		Message:    "generic error happened",
	})
	require.NoError(t, err)

	assert.True(t, handlerFinished)
	assert.False(t, s.Active())
	assert.Equal(t, CLIENT_ERROR, s.State())
	assert.Equal(t, "generic error happened", s.ClientError().Message)

	select {
	case <-done:
	default:
		t.Fatal("handler channel should already be closed")
	}
}

func TestSession_RegisterClientError_AfterTerminal(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	require.NoError(t, s.RegisterClientError(&ClientError{HTTPStatus: 500, Name: "X", Message: "x"}))

	err := s.RegisterClientError(&ClientError{HTTPStatus: 500, Name: "Y", Message: "y"})
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestSession_TimeoutNoSourceNoDestination(t *testing.T) {
	t.Parallel()

	s := newTestSession(10 * time.Millisecond)
	var timedOut *Session
	s.OnTimeout(func(ts *Session) { timedOut = ts })

	require.Eventually(t, func() bool { return timedOut != nil }, 100*time.Millisecond, time.Millisecond)
	assert.Equal(t, TIMEOUT_NO_SRC_NO_DST, s.State())
	assert.False(t, s.Active())
}

func TestSession_TimeoutWithOnlySource(t *testing.T) {
	t.Parallel()

	s := newTestSession(10 * time.Millisecond)
	require.NoError(t, s.RegisterSource(&fakeSource{}))

	var timedOut *Session
	s.OnTimeout(func(ts *Session) { timedOut = ts })

	require.Eventually(t, func() bool { return timedOut != nil }, 100*time.Millisecond, time.Millisecond)
	assert.Equal(t, TIMEOUT_NO_DST, s.State())
}

func TestSession_TimeoutWithOnlyDestination(t *testing.T) {
	t.Parallel()

	s := newTestSession(10 * time.Millisecond)
	require.NoError(t, s.RegisterDestination(newFakeDestination()))

	var timedOut *Session
	s.OnTimeout(func(ts *Session) { timedOut = ts })

	require.Eventually(t, func() bool { return timedOut != nil }, 100*time.Millisecond, time.Millisecond)
	assert.Equal(t, TIMEOUT_NO_SRC, s.State())
}

func TestSession_TimeoutDoesNotFireOnceStreaming(t *testing.T) {
	t.Parallel()

	s := newTestSession(10 * time.Millisecond)
	require.NoError(t, s.RegisterSource(&fakeSource{}))
	require.NoError(t, s.RegisterDestination(newFakeDestination()))

	timedOut := false
	s.OnTimeout(func(*Session) { timedOut = true })

	time.Sleep(30 * time.Millisecond)
	assert.False(t, timedOut)
	assert.Equal(t, STREAMING, s.State())
}

func TestSession_DeactivateIsIdempotentAndEmitsNoEvents(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	fired := false
	s.OnFinished(func(*Session) { fired = true })
	s.OnTimeout(func(*Session) { fired = true })
	s.OnError(func(error) { fired = true })
	s.OnClientError(func(*Session) { fired = true })

	s.Deactivate()
	s.Deactivate()

	assert.False(t, fired)
	assert.False(t, s.Active())
	assert.Equal(t, CREATED, s.State())
}

func TestSession_AtMostOneTerminalEvent(t *testing.T) {
	t.Parallel()

	s := newTestSession(time.Hour)
	src := &fakeSource{}
	dst := newFakeDestination()
	require.NoError(t, s.RegisterSource(src))
	require.NoError(t, s.RegisterDestination(dst))

	var fires int
	s.OnError(func(error) { fires++ })
	s.OnFinished(func(*Session) { fires++ })

	src.emitError(errors.New("boom"))
	// A second, racing signal must be dropped.
	dst.emitClose()
	src.emitEnd()
	dst.emitFinish()

	assert.Equal(t, 1, fires)
	assert.Equal(t, SRC_ERROR, s.State())
}
