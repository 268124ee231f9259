package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"store": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Admin catalog surface. Errors use the {"message": ...} dialect.
	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/create-event" {
		s.handleCreateEvent(w, r)
		return
	}
	if r.Method == http.MethodGet && r.URL.Path == "/api/admin/get-events-definitions" {
		s.handleGetEvents(w, r)
		return
	}
	if r.URL.Path == "/api/admin/test-definitions" {
		switch r.Method {
		case http.MethodGet:
			s.handleGetTestDefinitions(w, r)
		case http.MethodPost:
			s.handleSaveTestDefinition(w, r)
		default:
			methodNotAllowed(w, "GET, POST")
		}
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/add-location" {
		s.handleAddLocation(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/add-item-to-location" {
		s.handleAddItemToLocation(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/add-participant" {
		s.handleAddParticipant(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/remove-participant" {
		s.handleRemoveParticipant(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/toggle-custom-names" {
		s.handleToggleCustomNames(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/set-active-event" {
		s.handleSetActiveEvent(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/set-active-location" {
		s.handleSetActiveLocation(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/delete-event" {
		s.handleDeleteEvent(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/reset-all-data" {
		s.handleResetAllData(w, r)
		return
	}

	// Participant read path and feedback ingest, same dialect.
	if r.Method == http.MethodGet && r.URL.Path == "/api/get-active-event-config" {
		s.handleActiveEventConfig(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/submit-feedback" {
		s.handleSubmitFeedback(w, r)
		return
	}

	// Session surface. Errors use the {"error": ...} dialect.
	if r.Method == http.MethodPost && r.URL.Path == "/api/create-sessions" {
		s.handleCreateSession(w, r)
		return
	}
	if parts := splitPath(r.URL.Path); len(parts) == 3 && parts[0] == "api" && parts[1] == "session" {
		switch r.Method {
		case http.MethodGet:
			s.handleGetSession(w, r, parts[2])
		case http.MethodPost:
			s.handleSessionAction(w, r, parts[2])
		default:
			methodNotAllowed(w, "GET, POST")
		}
		return
	}

	writeMessageError(w, http.StatusNotFound, "Not found.")
}

func (s *HTTPServer) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventName  string `json:"eventName"`
		TestTypeID string `json:"testTypeId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessageError(w, http.StatusBadRequest, "Invalid JSON format for new event data.")
		return
	}

	eventID, err := s.service.CreateEvent(r.Context(), body.EventName, body.TestTypeID)
	if err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": fmt.Sprintf("Event %q created successfully with ID: %s", body.EventName, eventID),
		"eventId": eventID,
	})
}

func (s *HTTPServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.service.GetEvents(r.Context())
	if err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": catalog})
}

func (s *HTTPServer) handleGetTestDefinitions(w http.ResponseWriter, r *http.Request) {
	definitions, err := s.service.GetTestDefinitions(r.Context())
	if err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"definitions": definitions})
}

func (s *HTTPServer) handleSaveTestDefinition(w http.ResponseWriter, r *http.Request) {
	var definition TestDefinition
	if err := decodeBody(r, &definition); err != nil {
		writeMessageError(w, http.StatusBadRequest, "Invalid test data. ID, Display Name, and Questions are required.")
		return
	}

	if err := s.service.SaveTestDefinition(r.Context(), &definition); err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": fmt.Sprintf("Test Type %q saved successfully!", definition.DisplayName),
	})
}

func (s *HTTPServer) handleAddLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventID      string `json:"eventId"`
		LocationName string `json:"locationName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessageError(w, http.StatusBadRequest, "Invalid JSON format for request data.")
		return
	}

	locationID, event, err := s.service.AddLocation(r.Context(), body.EventID, body.LocationName)
	if err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      fmt.Sprintf("Location %q added successfully to event %q.", body.LocationName, event.EventName),
		"locationId":   locationID,
		"updatedEvent": event,
	})
}

func (s *HTTPServer) handleAddItemToLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventID                    string `json:"eventId"`
		LocationID                 string `json:"locationId"`
		ItemName                   string `json:"itemName"`
		AllowCustomItemForLocation *bool  `json:"allowCustomItemForLocation"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessageError(w, http.StatusBadRequest, "Invalid JSON format for request data.")
		return
	}
	if body.AllowCustomItemForLocation == nil {
		writeMessageError(w, http.StatusBadRequest, "The 'allow custom item for location' flag must be true or false.")
		return
	}

	itemID, event, err := s.service.AddItemToLocation(r.Context(), body.EventID, body.LocationID, body.ItemName, *body.AllowCustomItemForLocation)
	if err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      fmt.Sprintf("Item %q added successfully. Location 'allow custom' set to %t.", body.ItemName, *body.AllowCustomItemForLocation),
		"itemId":       itemID,
		"updatedEvent": event,
	})
}

func (s *HTTPServer) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventID         string `json:"eventId"`
		ParticipantName string `json:"participantName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessageError(w, http.StatusBadRequest, "Invalid JSON format for request data.")
		return
	}

	if err := s.service.AddParticipant(r.Context(), body.EventID, body.ParticipantName); err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Participant %q added successfully.", body.ParticipantName),
	})
}

func (s *HTTPServer) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventID         string `json:"eventId"`
		ParticipantName string `json:"participantName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessageError(w, http.StatusBadRequest, "Invalid JSON format for request data.")
		return
	}

	if err := s.service.RemoveParticipant(r.Context(), body.EventID, body.ParticipantName); err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Participant %q removed successfully.", body.ParticipantName),
	})
}

func (s *HTTPServer) handleToggleCustomNames(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventID                     string `json:"eventId"`
		AllowCustomParticipantNames *bool  `json:"allowCustomParticipantNames"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessageError(w, http.StatusBadRequest, "Invalid JSON format for request data.")
		return
	}
	if body.AllowCustomParticipantNames == nil {
		writeMessageError(w, http.StatusBadRequest, "Event ID and a boolean 'allowCustomParticipantNames' flag are required.")
		return
	}

	if err := s.service.ToggleCustomParticipantNames(r.Context(), body.EventID, *body.AllowCustomParticipantNames); err != nil {
		s.adminError(w, r, err)
		return
	}
	state := "disabled"
	if *body.AllowCustomParticipantNames {
		state = "enabled"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Allowing custom participant names has been %s.", state),
	})
}

func (s *HTTPServer) handleSetActiveEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActiveEventID string `json:"activeEventId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessageError(w, http.StatusBadRequest, "Invalid JSON format for request data.")
		return
	}

	if err := s.service.SetActiveEvent(r.Context(), body.ActiveEventID); err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Event %q set as active successfully.", body.ActiveEventID),
	})
}

func (s *HTTPServer) handleSetActiveLocation(w http.ResponseWriter, r *http.Request) {
	// The admin panel has sent this field under both names over time.
	var body struct {
		EventID          string `json:"eventId"`
		ActiveLocationID string `json:"activeLocationId"`
		LocationID       string `json:"locationId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessageError(w, http.StatusBadRequest, "Invalid JSON format for request data.")
		return
	}
	locationID := body.ActiveLocationID
	if locationID == "" {
		locationID = body.LocationID
	}

	if err := s.service.SetActiveLocation(r.Context(), body.EventID, locationID); err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Location %q is now the active location for the event.", locationID),
	})
}

func (s *HTTPServer) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventID string `json:"eventId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessageError(w, http.StatusBadRequest, "Invalid JSON format for request data.")
		return
	}

	if err := s.service.DeleteEvent(r.Context(), body.EventID); err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Event %q deleted.", body.EventID),
	})
}

func (s *HTTPServer) handleResetAllData(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ResetAllData(r.Context()); err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "All data has been reset."})
}

func (s *HTTPServer) handleActiveEventConfig(w http.ResponseWriter, r *http.Request) {
	includeFeedback := r.URL.Query().Get("includeFeedback") == "true"

	view, err := s.service.ResolveActiveSelection(r.Context(), includeFeedback)
	if err != nil {
		s.adminError(w, r, err)
		return
	}
	if view == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "No active tasting event is currently set by the admin.",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"config": view})
}

func (s *HTTPServer) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var record map[string]any
	if err := decodeBody(r, &record); err != nil {
		writeMessageError(w, http.StatusBadRequest, "Invalid JSON format in submission.")
		return
	}

	if _, err := s.service.SubmitFeedback(r.Context(), record); err != nil {
		s.adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Feedback submitted successfully!"})
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.CreateSession(r.Context())
	if err != nil {
		s.sessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		s.sessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) handleSessionAction(w http.ResponseWriter, r *http.Request, sessionID string) {
	var action SessionAction
	if err := decodeBody(r, &action); err != nil {
		writeErrorField(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	session, err := s.service.ApplySessionAction(r.Context(), sessionID, action)
	if err != nil {
		s.sessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// adminError converts a service error into the admin dialect ({"message"}).
// Internal detail stays in the server log.
func (s *HTTPServer) adminError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeMessageError(w, status, message)
}

// sessionError is adminError for the session dialect ({"error"}).
func (s *HTTPServer) sessionError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeErrorField(w, status, message)
}

func mapError(err error) (int, string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Message
	}
	return http.StatusInternalServerError, "An unexpected server error occurred."
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessageError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

func writeErrorField(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeMessageError(w, http.StatusMethodNotAllowed, "Method not allowed.")
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
