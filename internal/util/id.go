package util

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Slug lowercases a display name and collapses whitespace runs into
// underscores: "Salsa Verde" -> "salsa_verde".
func Slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// SlugID builds a catalog identifier of the form "slug_millis", optionally
// under a prefix ("loc", "item"). Two calls with the same name inside the
// same millisecond collide; callers treat that as a conflict.
func SlugID(prefix, name string, at time.Time) string {
	id := Slug(name) + "_" + strconv.FormatInt(at.UnixMilli(), 10)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// ShortID returns a prefixed random identifier like "crit_9f2c", built from a
// dash-stripped UUID truncated to length hex characters.
func ShortID(prefix string, length int) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if length > 0 && length < len(raw) {
		raw = raw[:length]
	}
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}

// RandomSuffix keeps concurrently written feedback keys from colliding.
func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
