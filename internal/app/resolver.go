package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"tastetest/api/internal/kv"
)

// ResolveActiveSelection chains active event -> active location -> test type
// config for the participant read path. A nil result with nil error means no
// active event is set, which is not an error. A missing catalog key, by
// contrast, is a provisioning bug and surfaces as a server error.
func (s *Service) ResolveActiveSelection(ctx context.Context, includeFeedback bool) (*ActiveConfig, error) {
	activeEventID, err := s.store.Get(ctx, activeEventIDKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(activeEventID) == "" {
		return nil, nil
	}

	catalog, err := s.loadCatalog(ctx)
	if errors.Is(err, kv.ErrNotFound) {
		log.Printf("active event %q is set but the events catalog key is absent", activeEventID)
		return nil, storageCorruptError("Event definitions not found on server.")
	}
	if err != nil {
		return nil, err
	}

	event, ok := catalog[activeEventID]
	if !ok {
		return nil, notFoundError(fmt.Sprintf("Active event (%q) not found.", activeEventID))
	}

	if event.ActiveLocationID == "" || len(event.Locations) == 0 {
		return nil, notFoundError(fmt.Sprintf("Event %q has no active location set.", event.EventName))
	}
	location := findLocation(event, event.ActiveLocationID)
	if location == nil {
		return nil, notFoundError(fmt.Sprintf("Active location for %q not found.", event.EventName))
	}

	definitions, err := s.loadTestDefinitions(ctx)
	if errors.Is(err, kv.ErrNotFound) {
		log.Printf("test definitions key is absent while resolving event %q", activeEventID)
		return nil, storageCorruptError("Base test questions/themes not found.")
	}
	if err != nil {
		return nil, err
	}
	testConfig, ok := definitions[event.TestTypeID]
	if !ok {
		return nil, notFoundError("Base questions for this test type not found.")
	}

	view := &ActiveConfig{
		EventID:        event.EventID,
		EventName:      event.EventName,
		ActiveLocation: location,
		TestTypeConfig: testConfig,
	}
	if includeFeedback {
		feedback, err := s.collectFeedback(ctx, event.EventID)
		if err != nil {
			return nil, err
		}
		view.Feedback = feedback
	}
	return view, nil
}

// collectFeedback is a list+get fan-out over one event's feedback keys. No
// pagination: a single tasting event's submission count stays small.
func (s *Service) collectFeedback(ctx context.Context, eventID string) ([]map[string]any, error) {
	keys, err := s.store.List(ctx, feedbackKeyPrefix+eventID+":")
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	records := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		raw, err := s.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			log.Printf("skipping unreadable feedback record %s: %v", key, err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
