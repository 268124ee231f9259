package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"tastetest/api/internal/kv"
	"tastetest/api/internal/util"
)

var defaultCriteriaTexts = []string{
	"Taste",
	"Sweetness",
	"Spiciness (if any)",
	"Overall Quality",
	"Service Efficiency",
	"Atmosphere",
	"Value for Cost",
}

// Admin-restricted actions require the payload identity to match both the
// session's admin and the configured sentinel administrator.
var adminActions = map[string]struct{}{
	"addLocation":       {},
	"resetSession":      {},
	"updateCriteria":    {},
	"removeLocation":    {},
	"suggestPlayerName": {},
}

// CreateSession allocates the next numeric session id from the global
// counter and seeds a fresh session document owned by the sentinel admin.
func (s *Service) CreateSession(ctx context.Context) (*Session, error) {
	last := 0
	raw, err := s.store.Get(ctx, s.sessionCounterKey())
	if err == nil {
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(raw)); parseErr == nil {
			last = parsed
		}
	} else if !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}

	sessionID := strconv.Itoa(last + 1)
	if err := s.store.Put(ctx, s.sessionCounterKey(), sessionID); err != nil {
		return nil, err
	}

	criteria := make([]*Criterion, 0, len(defaultCriteriaTexts))
	for i, text := range defaultCriteriaTexts {
		criteria = append(criteria, &Criterion{
			ID:   fmt.Sprintf("%s_%d", util.ShortID("crit", 4), i),
			Text: text,
		})
	}

	session := &Session{
		SessionID: sessionID,
		AdminID:   s.cfg.AdminID,
		Players: []*Player{
			{ID: s.cfg.AdminID, Name: s.cfg.DefaultParticipant + " (Admin)", IsAdmin: true},
		},
		Locations:      []*SessionLocation{},
		RatingCriteria: criteria,
		State:          "active",
		CreatedAt:      s.now(),
	}

	if err := s.saveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession returns the current session document.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, validationError("Session ID is required")
	}
	return s.loadSession(ctx, sessionID)
}

// ApplySessionAction is the mutation protocol for one session document:
// load, authorize, validate and apply the named action, persist the full
// document, return it. There is no locking; two concurrent actions against
// the same session race and the second put wins.
func (s *Service) ApplySessionAction(ctx context.Context, sessionID string, action SessionAction) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, validationError("Session ID is required")
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if _, restricted := adminActions[action.Action]; restricted {
		actor := payloadAdminIdentity(action.Payload)
		if actor != session.AdminID || session.AdminID != s.cfg.AdminID {
			log.Printf("action %q denied for session %s: actor %q, session admin %q",
				action.Action, sessionID, actor, session.AdminID)
			return nil, forbiddenError("Unauthorized for this action")
		}
	}

	switch action.Action {
	case "addPlayer":
		err = s.applyAddPlayer(session, action.Payload)
	case "addLocation":
		err = s.applyAddSessionLocation(session, action.Payload)
	case "addRating":
		err = s.applyAddRating(session, action.Payload)
	case "resetSession":
		err = s.applyResetSession(ctx, session)
	case "updateCriteria":
		err = s.applyUpdateCriteria(session, action.Payload)
	case "removeLocation":
		err = s.applyRemoveSessionLocation(session, action.Payload)
	case "suggestPlayerName":
		err = s.applySuggestPlayerName(session, action.Payload)
	case "consumePlayerSuggestion":
		session.PendingPlayerSuggestion = ""
	default:
		return nil, validationError(fmt.Sprintf("Unknown action: %s", action.Action))
	}
	if err != nil {
		return nil, err
	}

	if err := s.saveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// payloadAdminIdentity pulls the acting identity out of an admin-restricted
// payload: adminId, or addedBy for addLocation.
func payloadAdminIdentity(payload json.RawMessage) string {
	var identity struct {
		AdminID string `json:"adminId"`
		AddedBy string `json:"addedBy"`
	}
	_ = json.Unmarshal(payload, &identity)
	if identity.AdminID != "" {
		return identity.AdminID
	}
	return identity.AddedBy
}

func (s *Service) applyAddPlayer(session *Session, payload json.RawMessage) error {
	var p struct {
		PlayerID   string `json:"playerId"`
		PlayerName string `json:"playerName"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.PlayerID == "" || p.PlayerName == "" {
		return validationError("Player ID and Name are required")
	}

	for _, player := range session.Players {
		if player.ID == p.PlayerID {
			player.Name = p.PlayerName
			return nil
		}
	}
	session.Players = append(session.Players, &Player{
		ID:      p.PlayerID,
		Name:    p.PlayerName,
		IsAdmin: p.PlayerID == s.cfg.AdminID,
	})
	return nil
}

func (s *Service) applyAddSessionLocation(session *Session, payload json.RawMessage) error {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || strings.TrimSpace(p.Name) == "" {
		return validationError("Location name is required")
	}

	session.Locations = append(session.Locations, &SessionLocation{
		ID:      util.ShortID("loc", 6),
		Name:    strings.TrimSpace(p.Name),
		Ratings: []*Rating{},
		AddedBy: session.AdminID,
		AddedAt: s.now(),
	})
	return nil
}

func (s *Service) applyAddRating(session *Session, payload json.RawMessage) error {
	var p struct {
		LocationID string          `json:"locationId"`
		PlayerID   string          `json:"playerId"`
		Ratings    json.RawMessage `json:"ratings"`
		Comments   string          `json:"comments"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.LocationID == "" || p.PlayerID == "" || isJSONNull(p.Ratings) {
		return validationError("Missing data for rating")
	}

	var location *SessionLocation
	for _, candidate := range session.Locations {
		if candidate.ID == p.LocationID {
			location = candidate
			break
		}
	}
	if location == nil {
		return notFoundError("Location not found for rating")
	}

	now := s.now()
	entry := &Rating{
		PlayerID:    p.PlayerID,
		Criteria:    p.Ratings,
		Comments:    p.Comments,
		SubmittedAt: now,
	}
	for i, existing := range location.Ratings {
		if existing.PlayerID == p.PlayerID {
			// Last write wins: the resubmission replaces the entry wholesale.
			updated := now
			entry.UpdatedAt = &updated
			location.Ratings[i] = entry
			return nil
		}
	}
	location.Ratings = append(location.Ratings, entry)
	return nil
}

func (s *Service) applyResetSession(ctx context.Context, session *Session) error {
	session.Locations = []*SessionLocation{}

	admins := make([]*Player, 0, 1)
	for _, player := range session.Players {
		if player.ID == session.AdminID && player.IsAdmin {
			admins = append(admins, player)
		}
	}
	session.Players = admins

	// The global counter rewinds too, so the next created session is "1".
	return s.store.Put(ctx, s.sessionCounterKey(), "0")
}

func (s *Service) applyUpdateCriteria(session *Session, payload json.RawMessage) error {
	var p struct {
		Criteria []*Criterion `json:"criteria"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.Criteria == nil {
		return validationError("Criteria data is invalid")
	}

	for _, location := range session.Locations {
		if len(location.Ratings) > 0 {
			return forbiddenError("Cannot change criteria after ratings have started")
		}
	}

	replaced := make([]*Criterion, 0, len(p.Criteria))
	for _, criterion := range p.Criteria {
		id := criterion.ID
		if id == "" {
			id = util.ShortID("crit", 4)
		}
		replaced = append(replaced, &Criterion{ID: id, Text: criterion.Text})
	}
	session.RatingCriteria = replaced
	return nil
}

func (s *Service) applyRemoveSessionLocation(session *Session, payload json.RawMessage) error {
	var p struct {
		LocationID string `json:"locationId"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.LocationID == "" {
		return validationError("Location ID is required")
	}

	kept := make([]*SessionLocation, 0, len(session.Locations))
	for _, location := range session.Locations {
		if location.ID != p.LocationID {
			kept = append(kept, location)
		}
	}
	if len(kept) == len(session.Locations) {
		log.Printf("removeLocation: location %q not found in session %s", p.LocationID, session.SessionID)
	}
	session.Locations = kept
	return nil
}

func (s *Service) applySuggestPlayerName(session *Session, payload json.RawMessage) error {
	var p struct {
		SuggestedName string `json:"suggestedName"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || strings.TrimSpace(p.SuggestedName) == "" {
		return validationError("Suggested name is required")
	}
	session.PendingPlayerSuggestion = strings.TrimSpace(p.SuggestedName)
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
