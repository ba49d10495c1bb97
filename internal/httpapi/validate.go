package httpapi

import (
	"net/http"
	"regexp"
	"strings"
)

var sessionIDRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// validSessionID checks that id has the shape relay.generateID
// produces, rejecting a malformed id before it ever reaches
// SessionManager.GetSession.
func validSessionID(id string) bool {
	if id == "" {
		return false
	}
	return sessionIDRegex.MatchString(strings.ToLower(id))
}

// allowedOrigin checks r's Origin header against allowed: an empty
// allow-list means no restriction, "*" allows everything, otherwise
// the Origin header must match exactly.
func allowedOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
