// Package httpapi is the reference HTTP registration front end for
// the relay core: it exposes session creation, WebSocket upgrade
// endpoints that hand a fresh connection to relay.Session as a
// Source or Destination, and client-error reporting.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/rahulpshah/http-rendezvous/internal/config"
	"github.com/rahulpshah/http-rendezvous/internal/logging"
	"github.com/rahulpshah/http-rendezvous/internal/relay"
	"github.com/rahulpshah/http-rendezvous/internal/relaystore"
)

const mirrorTTL = 5 * time.Minute

// Server wires relay.SessionManager to the network.
type Server struct {
	cfg      config.Config
	manager  *relay.SessionManager
	log      *logging.Logger
	mirror   relaystore.Mirror
	upgrader websocket.Upgrader
}

// New constructs a Server. mirror may be a relaystore.Mirror obtained
// from relaystore.New("") (a no-op) when no Redis mirror is wanted.
func New(cfg config.Config, manager *relay.SessionManager, log *logging.Logger, mirror relaystore.Mirror) *Server {
	return &Server{
		cfg:     cfg,
		manager: manager,
		log:     log,
		mirror:  mirror,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allowedOrigin(r, cfg.AllowedOrigins)
			},
		},
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.handleCreateSession)
	mux.HandleFunc("/ws/source/", s.handleRegisterSource)
	mux.HandleFunc("/ws/destination/", s.handleRegisterDestination)
	mux.HandleFunc("/sessions/", s.handleClientError)

	var handler http.Handler = mux
	handler = recoveryMiddleware(handler)
	handler = corsMiddleware(handler, s.cfg.AllowedOrigins)
	return handler
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then
// drains in-flight requests instead of cutting them off mid-response.
func (s *Server) Run() error {
	handler := s.routes()

	var topHandler http.Handler
	if s.cfg.EnableTLS {
		topHandler = handler
	} else {
		topHandler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.cfg.Host + ":" + s.cfg.Port,
		Handler:           topHandler,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.EnableTLS {
			s.log.Info(fmt.Sprintf("relay server starting on %s (TLS)", server.Addr))
			err = server.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			s.log.Info(fmt.Sprintf("relay server starting on %s", server.Addr))
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
	}

	s.log.Info("shutting down relay server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return nil
}

func (s *Server) baseURL(scheme string) string {
	host := s.cfg.Host
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s:%s", scheme, host, s.cfg.Port)
}

func (s *Server) wsScheme() string {
	if s.cfg.EnableTLS {
		return "wss"
	}
	return "ws"
}

func pathTail(path, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(path, prefix), "/")
}
