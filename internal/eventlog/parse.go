package eventlog

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/forgo/cadence/api/internal/database"
	"github.com/forgo/cadence/api/internal/model"
)

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}

// parseEventsResult unwraps a SurrealDB query response into events,
// silently dropping records that do not parse.
func parseEventsResult(results []interface{}) []model.Event {
	events := make([]model.Event, 0)

	for _, result := range results {
		resp, ok := result.(map[string]interface{})
		if !ok {
			continue
		}
		if status, ok := resp["status"].(string); !ok || status != "OK" {
			continue
		}
		records, ok := resp["result"].([]interface{})
		if !ok {
			continue
		}
		for _, record := range records {
			if data, ok := record.(map[string]interface{}); ok {
				events = append(events, parseEvent(data))
			}
		}
	}

	return events
}

func parseEvent(data map[string]interface{}) model.Event {
	event := model.Event{
		ID:        extractRecordID(data["id"]),
		Seq:       getInt64(data, "seq"),
		Type:      model.EventType(getString(data, "type")),
		JobID:     getString(data, "job_id"),
		Branch:    model.Branch(getString(data, "branch")),
		Status:    model.JobState(getString(data, "status")),
		Error:     getString(data, "error"),
		Timestamp: parseTime(data["timestamp"]),
	}

	if ms, ok := numericValue(data["duration_ms"]); ok {
		duration := time.Duration(ms) * time.Millisecond
		event.Duration = &duration
	}
	if metadata, ok := data["metadata"].(map[string]interface{}); ok {
		event.Metadata = metadata
	}

	return event
}

// extractRecordID extracts a record ID from a SurrealDB result
func extractRecordID(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case models.RecordID:
		return v.String()
	case *models.RecordID:
		if v != nil {
			return v.String()
		}
	}

	// Try JSON marshaling as fallback
	if data, err := json.Marshal(id); err == nil {
		var recordID models.RecordID
		if err := json.Unmarshal(data, &recordID); err == nil {
			return recordID.String()
		}
	}

	return ""
}

// parseTime parses time from the formats SurrealDB responses use
func parseTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	case models.CustomDateTime:
		return t.Time
	case *models.CustomDateTime:
		if t != nil {
			return t.Time
		}
	}
	return time.Time{}
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt64(m map[string]interface{}, key string) int64 {
	if v, ok := numericValue(m[key]); ok {
		return v
	}
	return 0
}

// numericValue converts the numeric types SurrealDB responses use to int64
func numericValue(v interface{}) (int64, bool) {
	switch c := v.(type) {
	case float64:
		return int64(c), true
	case float32:
		return int64(c), true
	case int:
		return int64(c), true
	case int64:
		return c, true
	case uint64:
		return int64(c), true
	}
	return 0, false
}

// extractCount extracts count from a SurrealDB count query result
func extractCount(result interface{}) int {
	if data, ok := result.(map[string]interface{}); ok {
		if v, ok := numericValue(data["count"]); ok {
			return int(v)
		}
	}
	if v, ok := numericValue(result); ok {
		return int(v)
	}
	return 0
}
