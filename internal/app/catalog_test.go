package app

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEventValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		eventName  string
		testTypeID string
	}{
		{"missing both", "", ""},
		{"missing test type", "Tacos", ""},
		{"missing name", "", "flavor_v1"},
		{"blank name", "   ", "flavor_v1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateEvent(ctx, tc.eventName, tc.testTypeID)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, domainStatus(t, err))
		})
	}
}

func TestCreateEventInitializesDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	eventID, err := svc.CreateEvent(ctx, "Taco Night", "flavor_v1")
	require.NoError(t, err)
	assert.Contains(t, eventID, "taco_night_")

	catalog, err := svc.GetEvents(ctx)
	require.NoError(t, err)
	event := catalog[eventID]
	require.NotNil(t, event)
	assert.Equal(t, "Taco Night", event.EventName)
	assert.Equal(t, "flavor_v1", event.TestTypeID)
	assert.Empty(t, event.ActiveLocationID)
	assert.Empty(t, event.Locations)
	assert.Equal(t, []string{"Dana"}, event.Participants)
	assert.False(t, event.AllowCustomParticipantNames)
}

func TestCreateEventToleratesCorruptCatalog(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "EVENTS_DEFINITIONS", "{not json"))

	eventID, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)

	catalog, err := svc.GetEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, catalog, 1)
	assert.NotNil(t, catalog[eventID])
}

func TestCreateEventSameNameSameMillisecondConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.now = fixedClock(time.UnixMilli(1700000000000))

	_, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)

	_, err = svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, domainStatus(t, err))
}

func TestAddLocationUnknownEvent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.AddLocation(ctx, "nope", "Downtown")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, domainStatus(t, err))
}

func TestAddItemSetsAllowCustomFlag(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	eventID, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)
	locationID, _, err := svc.AddLocation(ctx, eventID, "Downtown")
	require.NoError(t, err)

	itemID, event, err := svc.AddItemToLocation(ctx, eventID, locationID, "Salsa Verde", true)
	require.NoError(t, err)
	assert.Contains(t, itemID, "item_salsa_verde_")

	location := findLocation(event, locationID)
	require.NotNil(t, location)
	require.Len(t, location.Items, 1)
	assert.Equal(t, "Salsa Verde", location.Items[0].ItemName)
	assert.True(t, location.AllowCustomItem, "the flag is overwritten in the same call")

	// A second item can flip the flag back off.
	_, event, err = svc.AddItemToLocation(ctx, eventID, locationID, "Salsa Roja", false)
	require.NoError(t, err)
	location = findLocation(event, locationID)
	assert.Len(t, location.Items, 2)
	assert.False(t, location.AllowCustomItem)
}

func TestAddParticipantDuplicateConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	eventID, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)

	require.NoError(t, svc.AddParticipant(ctx, eventID, "Alex"))

	err = svc.AddParticipant(ctx, eventID, "Alex")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, domainStatus(t, err))

	catalog, err := svc.GetEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dana", "Alex"}, catalog[eventID].Participants,
		"failed duplicate add must not change the participant set")
}

func TestRemoveParticipantProtectsDefault(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	eventID, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)

	err = svc.RemoveParticipant(ctx, eventID, "Dana")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, domainStatus(t, err))

	// Even against an event id that does not exist.
	err = svc.RemoveParticipant(ctx, "ghost-event", "Dana")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, domainStatus(t, err))
}

func TestRemoveParticipantAbsentIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	eventID, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)
	require.NoError(t, svc.AddParticipant(ctx, eventID, "Alex"))

	require.NoError(t, svc.RemoveParticipant(ctx, eventID, "Nobody"))

	catalog, err := svc.GetEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dana", "Alex"}, catalog[eventID].Participants)
}

func TestToggleCustomNamesIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	eventID, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)

	require.NoError(t, svc.ToggleCustomParticipantNames(ctx, eventID, true))
	require.NoError(t, svc.ToggleCustomParticipantNames(ctx, eventID, true))

	catalog, err := svc.GetEvents(ctx)
	require.NoError(t, err)
	assert.True(t, catalog[eventID].AllowCustomParticipantNames)
}

func TestSetActiveEventValidatesWhenCatalogReadable(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	eventID, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)

	err = svc.SetActiveEvent(ctx, "ghost-event")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, domainStatus(t, err))

	require.NoError(t, svc.SetActiveEvent(ctx, eventID))
	pointer, err := store.Get(ctx, "ACTIVE_EVENT_ID")
	require.NoError(t, err)
	assert.Equal(t, eventID, pointer)
}

func TestSetActiveEventProceedsWithoutReadableCatalog(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// Catalog key absent entirely.
	require.NoError(t, svc.SetActiveEvent(ctx, "any-event"))
	pointer, err := store.Get(ctx, "ACTIVE_EVENT_ID")
	require.NoError(t, err)
	assert.Equal(t, "any-event", pointer)

	// Catalog key corrupt.
	require.NoError(t, store.Put(ctx, "EVENTS_DEFINITIONS", "{not json"))
	require.NoError(t, svc.SetActiveEvent(ctx, "other-event"))
	pointer, err = store.Get(ctx, "ACTIVE_EVENT_ID")
	require.NoError(t, err)
	assert.Equal(t, "other-event", pointer)
}

func TestSetActiveLocationRejectsForeignLocation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	eventID, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)
	otherEventID, err := svc.CreateEvent(ctx, "Pizza", "flavor_v1")
	require.NoError(t, err)
	otherLocationID, _, err := svc.AddLocation(ctx, otherEventID, "Uptown")
	require.NoError(t, err)

	// A location id from a different event never validates.
	err = svc.SetActiveLocation(ctx, eventID, otherLocationID)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, domainStatus(t, err))

	catalog, err := svc.GetEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, catalog[eventID].ActiveLocationID)
}

func TestSaveTestDefinitionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		definition *TestDefinition
	}{
		{"nil", nil},
		{"missing id", &TestDefinition{DisplayName: "Flavor", Questions: []json.RawMessage{}}},
		{"missing display name", &TestDefinition{ID: "flavor_v1", Questions: []json.RawMessage{}}},
		{"missing questions", &TestDefinition{ID: "flavor_v1", DisplayName: "Flavor"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.SaveTestDefinition(ctx, tc.definition)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, domainStatus(t, err))
		})
	}
}

func TestSaveTestDefinitionUpserts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := &TestDefinition{ID: "flavor_v1", DisplayName: "Flavor", Questions: []json.RawMessage{json.RawMessage(`{"q":"Taste?"}`)}}
	require.NoError(t, svc.SaveTestDefinition(ctx, first))

	second := &TestDefinition{ID: "flavor_v1", DisplayName: "Flavor v2", Questions: []json.RawMessage{}}
	require.NoError(t, svc.SaveTestDefinition(ctx, second))

	definitions, err := svc.GetTestDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, definitions, 1)
	assert.Equal(t, "Flavor v2", definitions["flavor_v1"].DisplayName)
}

func TestDeleteEventClearsActivePointer(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	eventID, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)
	require.NoError(t, svc.SetActiveEvent(ctx, eventID))

	require.NoError(t, svc.DeleteEvent(ctx, eventID))

	catalog, err := svc.GetEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, catalog)

	_, err = store.Get(ctx, "ACTIVE_EVENT_ID")
	assert.Error(t, err, "active pointer should be cleared with the event")
}

func TestResetAllData(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	eventID, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)
	require.NoError(t, svc.SetActiveEvent(ctx, eventID))
	_, err = svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.SubmitFeedback(ctx, map[string]any{"testId": "flavor_v1", "answers": map[string]any{"taste": 5}})
	require.NoError(t, err)

	require.NoError(t, svc.ResetAllData(ctx))

	for _, key := range []string{"EVENTS_DEFINITIONS", "ACTIVE_EVENT_ID", "session-1", "testPrefix_lastSessionNumericId_KV"} {
		_, err := store.Get(ctx, key)
		assert.Error(t, err, "expected %s to be gone", key)
	}
	keys, err := store.List(ctx, "submission_")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// The store has no compare-and-swap, so two interleaved read-modify-write
// cycles against the catalog lose the first writer's update. This test pins
// that contract; it is the documented trade-off, not a bug.
func TestConcurrentAddLocationLosesFirstWrite(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	eventID, err := svc.CreateEvent(ctx, "Tacos", "flavor_v1")
	require.NoError(t, err)

	// Writer B reads the catalog before writer A commits.
	snapshot, err := store.Get(ctx, "EVENTS_DEFINITIONS")
	require.NoError(t, err)

	// Writer A commits through the service.
	_, _, err = svc.AddLocation(ctx, eventID, "Downtown")
	require.NoError(t, err)

	// Writer B commits its own mutation of the stale snapshot.
	var stale EventCatalog
	require.NoError(t, json.Unmarshal([]byte(snapshot), &stale))
	stale[eventID].Locations = append(stale[eventID].Locations, &Location{
		LocationID:   "loc_uptown_1",
		LocationName: "Uptown",
		Items:        []*Item{},
	})
	raw, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "EVENTS_DEFINITIONS", string(raw)))

	catalog, err := svc.GetEvents(ctx)
	require.NoError(t, err)
	locations := catalog[eventID].Locations
	require.Len(t, locations, 1, "last full-document write wins; the first location is lost")
	assert.Equal(t, "Uptown", locations[0].LocationName)
}
