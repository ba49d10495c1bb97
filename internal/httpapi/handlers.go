package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rahulpshah/http-rendezvous/internal/config"
	"github.com/rahulpshah/http-rendezvous/internal/relay"
	"github.com/rahulpshah/http-rendezvous/internal/relaystore"
	"github.com/rahulpshah/http-rendezvous/internal/transport/wsrelay"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// handleCreateSession implements POST /sessions, handing back the two
// URLs a source and a destination each dial to register themselves.
// There is no password or token issued here — authenticating who is
// allowed to create a session is a concern for whatever sits in front
// of this server, not for the rendezvous protocol itself.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	session := s.manager.CreateSession()
	s.wireLifecycle(session)
	s.log.SessionCreated(session.ID())

	scheme := s.wsScheme()
	resp := CreateSessionResponse{
		ID:             session.ID(),
		SourceURL:      s.baseURL(scheme) + "/ws/source/" + session.ID(),
		DestinationURL: s.baseURL(scheme) + "/ws/destination/" + session.ID(),
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleRegisterSource(w http.ResponseWriter, r *http.Request) {
	s.handleRegisterEndpoint(w, r, "/ws/source/", relay.EndpointSource)
}

func (s *Server) handleRegisterDestination(w http.ResponseWriter, r *http.Request) {
	s.handleRegisterEndpoint(w, r, "/ws/destination/", relay.EndpointDestination)
}

func (s *Server) handleRegisterEndpoint(w http.ResponseWriter, r *http.Request, prefix string, endpoint relay.Endpoint) {
	id := pathTail(r.URL.Path, prefix)
	if !validSessionID(id) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	session, err := s.manager.GetSession(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var wrapOpts []wsrelay.Option
	if s.cfg.EnableE2EE {
		wrapOpts = append(wrapOpts, wsrelay.WithE2EE())
	}
	netConn, err := wsrelay.Wrap(conn, true, wrapOpts...)
	if err != nil {
		conn.Close()
		return
	}

	switch endpoint {
	case relay.EndpointSource:
		src := wsrelay.NewSourceStream(netConn)
		if err := session.RegisterSource(src); err != nil {
			netConn.Close()
			return
		}
		src.Listen()
	case relay.EndpointDestination:
		dst := wsrelay.NewDestinationStream(netConn)
		if err := session.RegisterDestination(dst); err != nil {
			netConn.Close()
			return
		}
		dst.Listen()
	}
}

// handleClientError implements POST /sessions/{id}/client-error,
// reported by whichever side of the rendezvous observed a
// non-transport failure before source/destination ever connected
// here (e.g. the edge agent's own local dial failed).
func (s *Server) handleClientError(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := pathTail(r.URL.Path, "/sessions/")
	id = trimClientErrorSuffix(id)
	if !validSessionID(id) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	session, err := s.manager.GetSession(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req ClientErrorRequest
	r.Body = http.MaxBytesReader(w, r.Body, config.DefaultMaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ce := &relay.ClientError{HTTPStatus: req.HTTPStatus, Name: req.Name, Message: req.Message}
	if err := session.RegisterClientError(ce); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func trimClientErrorSuffix(path string) string {
	const suffix = "/client-error"
	if len(path) > len(suffix) && path[len(path)-len(suffix):] == suffix {
		return path[:len(path)-len(suffix)]
	}
	return path
}

// wireLifecycle logs state transitions and mirrors terminal outcomes
// to Redis. A mirror failure is logged as a warning, never returned
// to the caller — nothing in the session's own lifecycle depends on
// the mirror succeeding, so a Redis outage should not affect relaying.
func (s *Server) wireLifecycle(session *relay.Session) {
	publish := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		snap := relaystore.Snapshot{
			ID:               session.ID(),
			State:            session.State().String(),
			BytesTransferred: session.BytesTransferred(),
		}
		if err := s.mirror.Publish(ctx, snap, 5*time.Minute); err != nil {
			s.log.Warn("relaystore publish failed: " + err.Error())
		}
	}

	session.OnFinished(func(sess *relay.Session) {
		s.log.StateTransition(sess.ID(), sess.State().String())
		publish()
	})
	session.OnTimeout(func(sess *relay.Session) {
		s.log.StateTransition(sess.ID(), sess.State().String())
		publish()
	})
	session.OnError(func(err error) {
		s.log.SessionError(session.ID(), session.State().String(), err)
		publish()
	})
	session.OnClientError(func(sess *relay.Session) {
		s.log.StateTransition(sess.ID(), sess.State().String())
		publish()
	})
}
