package relay

import "github.com/google/uuid"

// generateID returns an opaque, collision-resistant session
// identifier. A random UUID carries 122 bits of entropy, far more
// than a sequential or short random token would, so ids can be
// handed to untrusted peers as bearer rendezvous tokens without
// becoming guessable.
func generateID() string {
	return uuid.New().String()
}
