package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/harmony-go/internal/api"
	"github.com/strefethen/harmony-go/internal/apperrors"
)

// validEventLevels defines all valid audit event levels for filtering.
var validEventLevels = map[string]EventLevel{
	"DEBUG": EventLevelDebug,
	"INFO":  EventLevelInfo,
	"WARN":  EventLevelWarn,
	"ERROR": EventLevelError,
}

// RegisterRoutes wires audit routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/audit/events", api.Handler(queryEvents(service)))
	router.Method(http.MethodGet, "/v1/audit/events/{event_id}", api.Handler(getEvent(service)))
}

// queryEvents retrieves audit events with optional filters.
// GET /v1/audit/events
func queryEvents(service *Service) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		filters, err := parseQueryFilters(r)
		if err != nil {
			return err
		}

		events, _, hasMore, err := service.QueryEvents(filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query audit events")
		}

		formatted := make([]map[string]any, 0, len(events))
		for i := range events {
			formatted = append(formatted, formatEvent(&events[i]))
		}

		return api.WriteList(w, "/v1/audit/events", formatted, hasMore)
	}
}

// getEvent retrieves a single audit event by ID.
// GET /v1/audit/events/{event_id}
func getEvent(service *Service) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		eventID := chi.URLParam(r, "event_id")

		event, err := service.GetEvent(eventID)
		if err != nil {
			var notFoundErr *EventNotFoundError
			if errors.As(err, &notFoundErr) {
				return apperrors.NewNotFoundError("Event not found", map[string]any{
					"event_id": eventID,
				})
			}
			return apperrors.NewInternalError("Failed to get audit event")
		}

		return api.WriteResource(w, http.StatusOK, formatEvent(event))
	}
}

// parseQueryFilters extracts and validates query parameters for event filtering.
func parseQueryFilters(r *http.Request) (EventQueryFilters, error) {
	filters := EventQueryFilters{
		Limit:  DefaultQueryLimit,
		Offset: 0,
	}

	query := r.URL.Query()

	// 'from' and 'to' are inclusive ISO 8601 datetimes
	if from := query.Get("from"); from != "" {
		if _, err := time.Parse(time.RFC3339, from); err != nil {
			return filters, apperrors.NewValidationError("invalid 'from' datetime format, expected ISO 8601", map[string]any{"from": from})
		}
		filters.StartDate = &from
	}
	if to := query.Get("to"); to != "" {
		if _, err := time.Parse(time.RFC3339, to); err != nil {
			return filters, apperrors.NewValidationError("invalid 'to' datetime format, expected ISO 8601", map[string]any{"to": to})
		}
		filters.EndDate = &to
	}

	if eventType := query.Get("type"); eventType != "" {
		filters.Type = &eventType
	}

	if level := query.Get("level"); level != "" {
		parsedLevel, ok := validEventLevels[level]
		if !ok {
			return filters, apperrors.NewValidationError("invalid level", map[string]any{
				"level":        level,
				"valid_levels": []string{"DEBUG", "INFO", "WARN", "ERROR"},
			})
		}
		filters.Level = &parsedLevel
	}

	if songID := query.Get("song_id"); songID != "" {
		filters.SongID = &songID
	}
	if playbackID := query.Get("playback_id"); playbackID != "" {
		filters.PlaybackID = &playbackID
	}

	// 'limit' is 1-1000, default 100
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{
				"limit": limitStr,
			})
		}
		filters.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return filters, apperrors.NewValidationError("invalid offset, must be >= 0", map[string]any{
				"offset": offsetStr,
			})
		}
		filters.Offset = offset
	}

	return filters, nil
}

// formatEvent formats an AuditEvent for JSON response.
func formatEvent(event *AuditEvent) map[string]any {
	result := map[string]any{
		"object":    "audit_event",
		"event_id":  event.EventID,
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
		"type":      event.Type,
		"level":     string(event.Level),
		"message":   event.Message,
	}

	correlation := map[string]any{}
	if event.RequestID != nil {
		correlation["request_id"] = *event.RequestID
	}
	if event.SongID != nil {
		correlation["song_id"] = *event.SongID
	}
	if event.PlaybackID != nil {
		correlation["playback_id"] = *event.PlaybackID
	}
	if len(correlation) > 0 {
		result["correlation"] = correlation
	}

	if len(event.Payload) > 0 {
		result["payload"] = event.Payload
	}

	return result
}
