package app

import (
	"encoding/json"
	"time"
)

// EventCatalog is the singleton document stored under EVENTS_DEFINITIONS:
// every event keyed by its id.
type EventCatalog map[string]*Event

type Event struct {
	EventID    string `json:"eventId"`
	EventName  string `json:"eventName"`
	TestTypeID string `json:"testTypeId"`
	// ActiveLocationID is empty until the admin picks a location. When set it
	// must reference an element of Locations.
	ActiveLocationID            string      `json:"activeLocationId"`
	Locations                   []*Location `json:"locations"`
	Participants                []string    `json:"participants"`
	AllowCustomParticipantNames bool        `json:"allowCustomParticipantNames"`
}

type Location struct {
	LocationID      string  `json:"locationId"`
	LocationName    string  `json:"locationName"`
	Items           []*Item `json:"items"`
	AllowCustomItem bool    `json:"allowCustomItem"`
}

type Item struct {
	ItemID   string `json:"itemId"`
	ItemName string `json:"itemName"`
}

// TestDefinitions is the singleton document stored under TEST_DEFINITIONS.
type TestDefinitions map[string]*TestDefinition

// TestDefinition describes one test-question template. Questions are opaque
// to the server and passed through to the participant client as-is.
type TestDefinition struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Theme       string            `json:"theme,omitempty"`
	Questions   []json.RawMessage `json:"questions"`
}

// Session is the self-contained rating-tracker document, independent of the
// event catalog. It is mutated exclusively through SessionAction dispatch.
type Session struct {
	SessionID               string             `json:"sessionId"`
	AdminID                 string             `json:"adminId"`
	Players                 []*Player          `json:"players"`
	Locations               []*SessionLocation `json:"locations"`
	RatingCriteria          []*Criterion       `json:"ratingCriteria"`
	State                   string             `json:"state"`
	PendingPlayerSuggestion string             `json:"pendingPlayerSuggestion,omitempty"`
	CreatedAt               time.Time          `json:"createdAt"`
	LastUpdatedAt           time.Time          `json:"lastUpdatedAt"`
}

type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"isAdmin"`
}

type SessionLocation struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Ratings []*Rating `json:"ratings"`
	AddedBy string    `json:"addedBy"`
	AddedAt time.Time `json:"addedAt"`
}

type Criterion struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Rating is one player's submission for a session location. Identity is the
// playerId; a resubmission replaces the entry and stamps UpdatedAt.
type Rating struct {
	PlayerID    string          `json:"playerId"`
	Criteria    json.RawMessage `json:"criteria"`
	Comments    string          `json:"comments"`
	SubmittedAt time.Time       `json:"submittedAt"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

// ActiveConfig is the merged participant-facing view of the active event,
// its active location, and the event's test-question template.
type ActiveConfig struct {
	EventID        string           `json:"eventId"`
	EventName      string           `json:"eventName"`
	ActiveLocation *Location        `json:"activeLocation"`
	TestTypeConfig *TestDefinition  `json:"testTypeConfig"`
	Feedback       []map[string]any `json:"feedback,omitempty"`
}

// SessionAction is the envelope for POST /api/session/{id}. The action names
// form a closed set; payload shape is validated per action before dispatch.
type SessionAction struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}
