package app

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"tastetest/api/internal/config"
	"tastetest/api/internal/kv"
)

// Test configuration deliberately differs from the production defaults: the
// sentinel identities are injected, not hard-coded.
func testConfig() config.Config {
	return config.Config{
		KeyPrefix:          "testPrefix_",
		AdminID:            "dana_the_admin",
		DefaultParticipant: "Dana",
	}
}

func newTestService(t *testing.T) (*Service, kv.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := kv.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(testConfig(), store), store
}

func domainStatus(t *testing.T, err error) int {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr.Status
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
