package config

import (
	"os"
)

type Config struct {
	Addr       string
	RedisURL   string
	CORSOrigin string
	// KeyPrefix namespaces the global session-counter key.
	KeyPrefix string
	// AdminID is the sentinel administrator identity. Every session is owned
	// by it, and admin-restricted session actions must present it.
	AdminID string
	// DefaultParticipant is seeded into every new event's participant list
	// and can never be removed.
	DefaultParticipant string
}

func Load() Config {
	return Config{
		Addr:               getenv("API_ADDR", ":8788"),
		RedisURL:           getenv("REDIS_URL", "redis://localhost:6379/0"),
		CORSOrigin:         getenv("TASTETEST_CORS_ORIGIN", "*"),
		KeyPrefix:          getenv("TASTETEST_KEY_PREFIX", "tasteTestV2_"),
		AdminID:            getenv("TASTETEST_ADMIN_ID", "phill_the_admin"),
		DefaultParticipant: getenv("TASTETEST_DEFAULT_PARTICIPANT", "Phill"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
