package broker

import (
	"encoding/json"
	"testing"
	"time"
)

func TestQueueKey(t *testing.T) {
	tests := []struct {
		name    string
		jobName string
		opts    EnqueueOptions
		want    string
	}{
		{"job name selects own queue", "media-purge", EnqueueOptions{}, "queue:media-purge"},
		{"explicit queue wins", "media-purge", EnqueueOptions{Queue: "bulk"}, "queue:bulk"},
		{"empty everything falls back", "", EnqueueOptions{}, "queue:default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := queueKey(tt.jobName, tt.opts); got != tt.want {
				t.Errorf("queueKey(%q, %+v) = %q, want %q", tt.jobName, tt.opts, got, tt.want)
			}
		})
	}
}

func TestTaskKey(t *testing.T) {
	if got := taskKey("abc-123"); got != "task:abc-123" {
		t.Errorf("taskKey() = %q, want %q", got, "task:abc-123")
	}
}

func TestEnvelopeShape(t *testing.T) {
	data, err := json.Marshal(envelope{
		ID:         "t1",
		Job:        "media-purge",
		Payload:    map[string]interface{}{"batch": 3},
		EnqueuedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	for _, field := range []string{"id", "job", "payload", "enqueued_at"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("envelope missing field %q", field)
		}
	}
	if decoded["job"] != "media-purge" {
		t.Errorf("job = %v, want media-purge", decoded["job"])
	}
}
