// Command server runs the relay: an HTTP front end for session
// creation and WebSocket registration backed by the in-process
// relay.SessionManager, wired to config, logging, and the optional
// Redis presence mirror.
package main

import (
	"log"

	"github.com/rahulpshah/http-rendezvous/internal/config"
	"github.com/rahulpshah/http-rendezvous/internal/httpapi"
	"github.com/rahulpshah/http-rendezvous/internal/logging"
	"github.com/rahulpshah/http-rendezvous/internal/relay"
	"github.com/rahulpshah/http-rendezvous/internal/relaystore"
)

func main() {
	cfg := config.Load()
	logger := logging.Default()

	mirror, err := relaystore.New(cfg.RedisAddr)
	if err != nil {
		logger.Warn("relaystore unavailable, continuing without it: " + err.Error())
		mirror, _ = relaystore.New("")
	}
	defer mirror.Close()

	manager := relay.NewManager(relay.ManagerConfig{SessionTTL: cfg.SessionTTL})

	server := httpapi.New(cfg, manager, logger, mirror)
	if err := server.Run(); err != nil {
		log.Fatalf("relay server exited: %v", err)
	}
}
