// Package config loads process configuration from the environment,
// optionally seeded from a .env file, into a single typed Config the
// rest of the program constructs once at startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = "8080"
	DefaultSessionTTL  = 30 * time.Second
	DefaultMaxBodySize = 1 << 20 // 1MB, client-error payloads only
)

// Config holds everything cmd/server needs to start.
type Config struct {
	Host string
	Port string

	SessionTTL time.Duration

	EnableTLS bool
	CertFile  string
	KeyFile   string

	EnableE2EE bool

	AllowedOrigins []string

	RedisAddr string // empty disables the presence mirror
}

// Load reads .env (if present; a missing file is not an error) and
// then the process environment, the latter taking precedence.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Host:           getEnv("RELAY_HOST", DefaultHost),
		Port:           getEnv("RELAY_PORT", DefaultPort),
		SessionTTL:     getEnvDuration("RELAY_SESSION_TTL", DefaultSessionTTL),
		EnableTLS:      getEnvBool("RELAY_ENABLE_TLS", false),
		CertFile:       getEnv("RELAY_CERT_FILE", "certs/server.crt"),
		KeyFile:        getEnv("RELAY_KEY_FILE", "certs/server.key"),
		EnableE2EE:     getEnvBool("RELAY_ENABLE_E2EE", false),
		AllowedOrigins: getEnvList("RELAY_ALLOWED_ORIGINS", nil),
		RedisAddr:      getEnv("RELAY_REDIS_ADDR", ""),
	}

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return strings.ToLower(val) == "true"
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParsePort validates a port string, used by Load callers that need
// a concrete int (e.g. to bind a listener explicitly).
func ParsePort(port string) (int, error) {
	return strconv.Atoi(port)
}
