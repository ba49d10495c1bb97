package relay

import "errors"

// Sentinel errors returned by the core. Callers compare with
// errors.Is.
var (
	// ErrSessionNotFound is returned by SessionManager.GetSession when
	// the identifier does not name a live session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminal is returned by registration calls made after
	// a session has already reached a terminal state.
	ErrSessionTerminal = errors.New("session is in a terminal state")
)

// Endpoint identifies which half of a Session a DuplicateEndpointError
// refers to.
type Endpoint string

const (
	EndpointSource      Endpoint = "source"
	EndpointDestination Endpoint = "destination"
)

// DuplicateEndpointError is returned when RegisterSource or
// RegisterDestination is called on a Session whose corresponding slot
// is already occupied. The state does not change and no event fires —
// a second registration attempt on the same slot is a caller mistake,
// not a state transition.
type DuplicateEndpointError struct {
	Endpoint Endpoint
}

func (e *DuplicateEndpointError) Error() string {
	switch e.Endpoint {
	case EndpointSource:
		return "Source already registered"
	case EndpointDestination:
		return "Destination already registered"
	default:
		return "endpoint already registered"
	}
}

// ClientError is the structured payload supplied to
// RegisterClientError and recorded verbatim on Session.ClientError.
type ClientError struct {
	HTTPStatus int    `json:"http_status"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func (e *ClientError) Error() string {
	return e.Message
}

// streamError is the payload delivered on the error event. Its
// message is always prefixed with which side failed ("Source error:"
// or "Destination error:") so a handler subscribed once to OnError
// can tell the two apart without inspecting the session's state.
type streamError struct {
	message string
	cause   error
}

func (e *streamError) Error() string {
	return e.message
}

func (e *streamError) Unwrap() error {
	return e.cause
}

func sourceErrorOf(cause error) error {
	return &streamError{message: "Source error: " + cause.Error(), cause: cause}
}

func destinationErrorOf(cause error) error {
	return &streamError{message: "Destination error: " + cause.Error(), cause: cause}
}

var errSourceDisconnected = errors.New("Source disconnected before end")
var errDestinationDisconnected = errors.New("Destination disconnected before end")
