package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"tastetest/api/internal/config"
	"tastetest/api/internal/kv"
)

// Well-known keys in the key-value store. The session counter key is
// namespaced by the configured prefix; everything else is fixed.
const (
	eventsDefinitionsKey = "EVENTS_DEFINITIONS"
	testDefinitionsKey   = "TEST_DEFINITIONS"
	activeEventIDKey     = "ACTIVE_EVENT_ID"
	sessionKeyPrefix     = "session-"
	submissionKeyPrefix  = "submission_"
	feedbackKeyPrefix    = "feedback:"
	sessionCounterName   = "lastSessionNumericId_KV"
)

// Service holds the handlers' shared dependencies. There is no other
// process-wide state: every request is an independent read-modify-write
// against the store, and concurrent writers to the same document race
// (last full-document put wins).
type Service struct {
	cfg   config.Config
	store kv.Store
	now   func() time.Time
}

func New(cfg config.Config, store kv.Store) *Service {
	return &Service{cfg: cfg, store: store, now: time.Now}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) sessionCounterKey() string {
	return s.cfg.KeyPrefix + sessionCounterName
}

// loadCatalog reads and decodes the full event catalog. A missing key
// surfaces as kv.ErrNotFound; an unparseable document as storage corruption.
func (s *Service) loadCatalog(ctx context.Context) (EventCatalog, error) {
	raw, err := s.store.Get(ctx, eventsDefinitionsKey)
	if err != nil {
		return nil, err
	}
	var catalog EventCatalog
	if err := json.Unmarshal([]byte(raw), &catalog); err != nil {
		log.Printf("events catalog is unparseable: %v", err)
		return nil, storageCorruptError("Error reading event data from storage.")
	}
	if catalog == nil {
		catalog = EventCatalog{}
	}
	return catalog, nil
}

// requireCatalog is loadCatalog for the mutating paths that cannot proceed
// without an existing catalog.
func (s *Service) requireCatalog(ctx context.Context) (EventCatalog, error) {
	catalog, err := s.loadCatalog(ctx)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, notFoundError("Events definitions not found.")
	}
	return catalog, err
}

func (s *Service) saveCatalog(ctx context.Context, catalog EventCatalog) error {
	raw, err := json.Marshal(catalog)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, eventsDefinitionsKey, string(raw))
}

func (s *Service) loadTestDefinitions(ctx context.Context) (TestDefinitions, error) {
	raw, err := s.store.Get(ctx, testDefinitionsKey)
	if err != nil {
		return nil, err
	}
	var definitions TestDefinitions
	if err := json.Unmarshal([]byte(raw), &definitions); err != nil {
		log.Printf("test definitions document is unparseable: %v", err)
		return nil, storageCorruptError("Error parsing test definitions from storage.")
	}
	if definitions == nil {
		definitions = TestDefinitions{}
	}
	return definitions, nil
}

func (s *Service) saveTestDefinitions(ctx context.Context, definitions TestDefinitions) error {
	raw, err := json.Marshal(definitions)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, testDefinitionsKey, string(raw))
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.store.Get(ctx, sessionKeyPrefix+sessionID)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, notFoundError("Session not found")
	}
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		log.Printf("session %s is unparseable: %v", sessionID, err)
		return nil, storageCorruptError("Failed to read session data")
	}
	return &session, nil
}

// saveSession persists the full session document and refreshes its
// last-updated stamp.
func (s *Service) saveSession(ctx context.Context, session *Session) error {
	session.LastUpdatedAt = s.now()
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, sessionKeyPrefix+session.SessionID, string(raw))
}

func isStorageCorrupt(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == "STORAGE_CORRUPT"
}
