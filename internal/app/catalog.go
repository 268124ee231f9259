package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"tastetest/api/internal/kv"
	"tastetest/api/internal/util"
)

// CreateEvent adds a new event to the catalog and returns its generated id.
// A missing or corrupt catalog never blocks creation: it is replaced with an
// empty one.
func (s *Service) CreateEvent(ctx context.Context, eventName, testTypeID string) (string, error) {
	if strings.TrimSpace(eventName) == "" || strings.TrimSpace(testTypeID) == "" {
		return "", validationError("Event name and test type ID are required.")
	}

	catalog, err := s.loadCatalog(ctx)
	if errors.Is(err, kv.ErrNotFound) || isStorageCorrupt(err) {
		catalog = EventCatalog{}
	} else if err != nil {
		return "", err
	}

	eventID := util.SlugID("", eventName, s.now())
	if _, exists := catalog[eventID]; exists {
		// Same name within the same millisecond. Unlikely, surfaced as a
		// conflict rather than silently regenerated.
		return "", conflictError("Event ID already exists. Please try a different name or try again.")
	}

	catalog[eventID] = &Event{
		EventID:      eventID,
		EventName:    eventName,
		TestTypeID:   testTypeID,
		Locations:    []*Location{},
		Participants: []string{s.cfg.DefaultParticipant},
	}

	if err := s.saveCatalog(ctx, catalog); err != nil {
		return "", err
	}
	return eventID, nil
}

// GetEvents returns the whole catalog, empty if none has been created yet.
func (s *Service) GetEvents(ctx context.Context) (EventCatalog, error) {
	catalog, err := s.loadCatalog(ctx)
	if errors.Is(err, kv.ErrNotFound) {
		return EventCatalog{}, nil
	}
	return catalog, err
}

// AddLocation appends a location to an event and returns the new location id
// together with the updated event.
func (s *Service) AddLocation(ctx context.Context, eventID, locationName string) (string, *Event, error) {
	if strings.TrimSpace(eventID) == "" || strings.TrimSpace(locationName) == "" {
		return "", nil, validationError("Event ID and Location Name are required.")
	}

	catalog, err := s.requireCatalog(ctx)
	if err != nil {
		return "", nil, err
	}
	event, ok := catalog[eventID]
	if !ok {
		return "", nil, notFoundError(fmt.Sprintf("Event ID %q not found. Cannot add location.", eventID))
	}

	locationID := util.SlugID("loc", locationName, s.now())
	event.Locations = append(event.Locations, &Location{
		LocationID:   locationID,
		LocationName: locationName,
		Items:        []*Item{},
	})

	if err := s.saveCatalog(ctx, catalog); err != nil {
		return "", nil, err
	}
	return locationID, event, nil
}

// AddItemToLocation appends an item and, in the same write, overwrites the
// location's allowCustomItem flag. The admin panel combines both into one
// request on purpose.
func (s *Service) AddItemToLocation(ctx context.Context, eventID, locationID, itemName string, allowCustomItem bool) (string, *Event, error) {
	if strings.TrimSpace(eventID) == "" || strings.TrimSpace(locationID) == "" || strings.TrimSpace(itemName) == "" {
		return "", nil, validationError("Event ID, Location ID, and Item Name are required.")
	}

	catalog, err := s.requireCatalog(ctx)
	if err != nil {
		return "", nil, err
	}
	event, ok := catalog[eventID]
	if !ok {
		return "", nil, notFoundError(fmt.Sprintf("Event ID %q not found.", eventID))
	}
	location := findLocation(event, locationID)
	if location == nil {
		return "", nil, notFoundError(fmt.Sprintf("Location ID %q not found within event %q.", locationID, eventID))
	}

	itemID := util.SlugID("item", itemName, s.now())
	location.Items = append(location.Items, &Item{ItemID: itemID, ItemName: itemName})
	location.AllowCustomItem = allowCustomItem

	if err := s.saveCatalog(ctx, catalog); err != nil {
		return "", nil, err
	}
	return itemID, event, nil
}

// AddParticipant adds a name to the event's participant set. Duplicates are
// a conflict, not a silent no-op.
func (s *Service) AddParticipant(ctx context.Context, eventID, participantName string) error {
	if strings.TrimSpace(eventID) == "" || strings.TrimSpace(participantName) == "" {
		return validationError("Event ID and Participant Name are required.")
	}

	catalog, err := s.requireCatalog(ctx)
	if err != nil {
		return err
	}
	event, ok := catalog[eventID]
	if !ok {
		return notFoundError(fmt.Sprintf("Event ID %q not found.", eventID))
	}

	for _, existing := range event.Participants {
		if existing == participantName {
			return conflictError("Participant already exists in this event.")
		}
	}
	event.Participants = append(event.Participants, participantName)

	return s.saveCatalog(ctx, catalog)
}

// RemoveParticipant drops a name from the event's participant set. Removing
// a name that is not present is a no-op; removing the configured default
// participant is always forbidden.
func (s *Service) RemoveParticipant(ctx context.Context, eventID, participantName string) error {
	if strings.TrimSpace(eventID) == "" || strings.TrimSpace(participantName) == "" {
		return validationError("Event ID and Participant Name are required.")
	}
	if participantName == s.cfg.DefaultParticipant {
		return forbiddenError("The default participant cannot be removed.")
	}

	catalog, err := s.requireCatalog(ctx)
	if err != nil {
		return err
	}
	event, ok := catalog[eventID]
	if !ok || event.Participants == nil {
		return notFoundError("Event or participant list not found.")
	}

	kept := make([]string, 0, len(event.Participants))
	for _, existing := range event.Participants {
		if existing != participantName {
			kept = append(kept, existing)
		}
	}
	event.Participants = kept

	return s.saveCatalog(ctx, catalog)
}

// ToggleCustomParticipantNames sets the flag unconditionally; repeat calls
// with the same value are idempotent.
func (s *Service) ToggleCustomParticipantNames(ctx context.Context, eventID string, allowed bool) error {
	if strings.TrimSpace(eventID) == "" {
		return validationError("Event ID and a boolean 'allowCustomParticipantNames' flag are required.")
	}

	catalog, err := s.requireCatalog(ctx)
	if err != nil {
		return err
	}
	event, ok := catalog[eventID]
	if !ok {
		return notFoundError(fmt.Sprintf("Event ID %q not found.", eventID))
	}

	event.AllowCustomParticipantNames = allowed
	return s.saveCatalog(ctx, catalog)
}

// SetActiveEvent points the participant read path at an event. Existence is
// validated best-effort: when the catalog cannot be read the pointer is set
// anyway, so a transient store problem never blocks the admin workflow.
func (s *Service) SetActiveEvent(ctx context.Context, activeEventID string) error {
	if strings.TrimSpace(activeEventID) == "" {
		return validationError("Active Event ID is required.")
	}

	catalog, err := s.loadCatalog(ctx)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		log.Printf("events catalog missing; setting active event %q without validation", activeEventID)
	case isStorageCorrupt(err):
		log.Printf("events catalog unreadable; setting active event %q without validation", activeEventID)
	case err != nil:
		return err
	default:
		if _, ok := catalog[activeEventID]; !ok {
			return notFoundError(fmt.Sprintf("Event ID %q not found in defined events.", activeEventID))
		}
	}

	return s.store.Put(ctx, activeEventIDKey, activeEventID)
}

// SetActiveLocation points the event at one of its own locations.
func (s *Service) SetActiveLocation(ctx context.Context, eventID, locationID string) error {
	if strings.TrimSpace(eventID) == "" || strings.TrimSpace(locationID) == "" {
		return validationError("Event ID and Location ID are required.")
	}

	catalog, err := s.requireCatalog(ctx)
	if err != nil {
		return err
	}
	event, ok := catalog[eventID]
	if !ok {
		return notFoundError(fmt.Sprintf("Event ID %q not found.", eventID))
	}
	if findLocation(event, locationID) == nil {
		return notFoundError(fmt.Sprintf("Location ID %q does not exist in this event.", locationID))
	}

	event.ActiveLocationID = locationID
	return s.saveCatalog(ctx, catalog)
}

// DeleteEvent removes an event from the catalog and clears the active-event
// pointer if it referenced the deleted event.
func (s *Service) DeleteEvent(ctx context.Context, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return validationError("Event ID is required.")
	}

	catalog, err := s.requireCatalog(ctx)
	if err != nil {
		return err
	}
	if _, ok := catalog[eventID]; !ok {
		return notFoundError(fmt.Sprintf("Event ID %q not found.", eventID))
	}
	delete(catalog, eventID)

	if err := s.saveCatalog(ctx, catalog); err != nil {
		return err
	}

	if active, err := s.store.Get(ctx, activeEventIDKey); err == nil && active == eventID {
		if err := s.store.Delete(ctx, activeEventIDKey); err != nil {
			return err
		}
	}
	return nil
}

// GetTestDefinitions returns all test-question templates, empty if none
// have been saved yet.
func (s *Service) GetTestDefinitions(ctx context.Context) (TestDefinitions, error) {
	definitions, err := s.loadTestDefinitions(ctx)
	if errors.Is(err, kv.ErrNotFound) {
		return TestDefinitions{}, nil
	}
	return definitions, err
}

// SaveTestDefinition upserts a template by its id.
func (s *Service) SaveTestDefinition(ctx context.Context, definition *TestDefinition) error {
	if definition == nil || strings.TrimSpace(definition.ID) == "" || strings.TrimSpace(definition.DisplayName) == "" || definition.Questions == nil {
		return validationError("Invalid test data. ID, Display Name, and Questions are required.")
	}

	definitions, err := s.loadTestDefinitions(ctx)
	if errors.Is(err, kv.ErrNotFound) {
		definitions = TestDefinitions{}
	} else if err != nil {
		return err
	}

	definitions[definition.ID] = definition
	return s.saveTestDefinitions(ctx, definitions)
}

// ResetAllData deletes every document this app owns: the well-known keys,
// the session counter, and all session, submission, and feedback records.
func (s *Service) ResetAllData(ctx context.Context) error {
	for _, key := range []string{eventsDefinitionsKey, testDefinitionsKey, activeEventIDKey, s.sessionCounterKey()} {
		if err := s.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	for _, prefix := range []string{sessionKeyPrefix, submissionKeyPrefix, feedbackKeyPrefix} {
		keys, err := s.store.List(ctx, prefix)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := s.store.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

func findLocation(event *Event, locationID string) *Location {
	for _, location := range event.Locations {
		if location.LocationID == locationID {
			return location
		}
	}
	return nil
}
