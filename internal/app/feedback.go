package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tastetest/api/internal/util"
)

// SubmitFeedback validates a submission, stamps the server-side timestamp,
// and writes it under a synthetically unique key. Unlike the catalog and
// session paths there is no read-modify-write here: every submission is an
// independent record, so concurrent writers cannot clobber each other.
// Resubmission creates a duplicate by design; de-duplication is the report
// reader's problem.
func (s *Service) SubmitFeedback(ctx context.Context, record map[string]any) (string, error) {
	if record == nil {
		return "", validationError("Invalid or incomplete submission data.")
	}

	now := s.now()
	stamp := now.UTC().Format(time.RFC3339Nano)
	record["serverSubmittedAt"] = stamp

	var key string
	switch {
	case hasStringFields(record, "eventId", "locationId", "itemId", "playerId") && hasAnswersField(record, "ratings"):
		// Structured form, tied to a catalog event/location/item.
		key = fmt.Sprintf("%s%s:%s:%s:%s:%d:%s", feedbackKeyPrefix,
			record["eventId"], record["locationId"], record["itemId"], record["playerId"],
			now.UnixMilli(), util.RandomSuffix())
	case hasStringFields(record, "testId") && hasAnswersField(record, "answers"):
		// Lightweight form, tied only to a test id.
		key = fmt.Sprintf("%s%s_%s_%s", submissionKeyPrefix, record["testId"], stamp, util.RandomSuffix())
	default:
		return "", validationError("Invalid or incomplete submission data. An identifying tuple and answers/ratings are required.")
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	if err := s.store.Put(ctx, key, string(raw)); err != nil {
		return "", err
	}
	return key, nil
}

func hasStringFields(record map[string]any, fields ...string) bool {
	for _, field := range fields {
		value, ok := record[field].(string)
		if !ok || strings.TrimSpace(value) == "" {
			return false
		}
	}
	return true
}

func hasAnswersField(record map[string]any, field string) bool {
	switch record[field].(type) {
	case map[string]any, []any:
		return true
	}
	return false
}
