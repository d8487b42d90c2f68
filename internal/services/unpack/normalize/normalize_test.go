package normalize

import (
	"reflect"
	"testing"
	"time"

	"histshard/internal/services/unpack/domain"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestLegacyUsingRecordMigration(t *testing.T) {
	n := New(nil)
	raw := domain.RawRecord{
		"record_type":  "using",
		"properties":   map[string]any{"a": float64(1)},
		"user_id":      "u1",
		"project_name": "proj",
		"timestamp":    "2024-01-01T00:00:00Z",
	}

	rec, ok, reason := n.Normalize(raw, now)
	if !ok {
		t.Fatalf("discarded: %s", reason)
	}
	if rec.Project != "proj" || rec.Type != domain.TypeDecision || rec.HistoryID != "u1" {
		t.Fatalf("record = %+v", rec)
	}

	want := map[string]any{
		"type":       "decision",
		"variant":    map[string]any{"a": float64(1)},
		"history_id": "u1",
		"timestamp":  "2024-01-01T00:00:00.000Z",
	}
	if !reflect.DeepEqual(rec.Body, want) {
		t.Fatalf("body = %v, want %v", rec.Body, want)
	}
	for _, gone := range []string{"project_name", "user_id", "record_type", "properties"} {
		if _, has := rec.Body[gone]; has {
			t.Fatalf("field %q should have been removed", gone)
		}
	}
}

func TestLegacyChooseDiscarded(t *testing.T) {
	n := New(nil)
	raw := domain.RawRecord{
		"record_type":  "choose",
		"project_name": "proj",
		"timestamp":    "2024-01-01T00:00:00Z",
	}
	if _, ok, reason := n.Normalize(raw, now); ok || reason != ReasonDeprecatedChoose {
		t.Fatalf("ok=%v reason=%s", ok, reason)
	}
}

func TestLegacyRewardsType(t *testing.T) {
	n := New(nil)
	raw := domain.RawRecord{
		"record_type":  "rewards",
		"history_id":   "h1",
		"project_name": "proj",
		"timestamp":    "2024-01-01T00:00:00Z",
	}
	rec, ok, _ := n.Normalize(raw, now)
	if !ok || rec.Type != domain.TypeRewards {
		t.Fatalf("rec = %+v ok=%v", rec, ok)
	}
	if rec.Body["type"] != "rewards" {
		t.Fatalf("body type = %v", rec.Body["type"])
	}
}

func TestAPIKeyFallback(t *testing.T) {
	n := New(map[string]string{"legacy-key-1": "proj"})

	raw := domain.RawRecord{
		"api_key":    "legacy-key-1",
		"history_id": "h1",
		"timestamp":  "2024-01-01T00:00:00Z",
	}
	rec, ok, _ := n.Normalize(raw, now)
	if !ok || rec.Project != "proj" {
		t.Fatalf("rec = %+v ok=%v", rec, ok)
	}
	if _, has := rec.Body["api_key"]; has {
		t.Fatalf("api_key should have been removed")
	}

	// unknown key resolves nothing
	raw = domain.RawRecord{
		"api_key":    "who-dis",
		"history_id": "h1",
		"timestamp":  "2024-01-01T00:00:00Z",
	}
	if _, ok, reason := n.Normalize(raw, now); ok || reason != ReasonMissingProject {
		t.Fatalf("ok=%v reason=%s", ok, reason)
	}
}

func TestTimestampValidation(t *testing.T) {
	n := New(nil)

	cases := []any{nil, "", "not a date", "2024-13-45T99:00:00Z", float64(1700000000)}
	for i, ts := range cases {
		raw := domain.RawRecord{"project_name": "proj", "history_id": "h1"}
		if ts != nil {
			raw["timestamp"] = ts
		}
		if _, ok, reason := n.Normalize(raw, now); ok || reason != ReasonBadTimestamp {
			t.Fatalf("case %d: ok=%v reason=%s", i, ok, reason)
		}
	}
}

func TestTimestampCanonicalized(t *testing.T) {
	n := New(nil)

	// offset input lands as UTC with millisecond precision
	raw := domain.RawRecord{
		"project_name": "proj",
		"history_id":   "h1",
		"timestamp":    "2024-01-01T05:30:00.123456+05:30",
	}
	rec, ok, _ := n.Normalize(raw, now)
	if !ok {
		t.Fatalf("discarded")
	}
	if rec.Body["timestamp"] != "2024-01-01T00:00:00.123Z" {
		t.Fatalf("timestamp = %v", rec.Body["timestamp"])
	}
	if !rec.Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 123456000, time.UTC)) {
		t.Fatalf("parsed = %v", rec.Timestamp)
	}
}

func TestFutureTimestampKept(t *testing.T) {
	n := New(nil)
	raw := domain.RawRecord{
		"project_name": "proj",
		"history_id":   "h1",
		"timestamp":    now.Add(48 * time.Hour).Format(time.RFC3339),
	}
	if _, ok, _ := n.Normalize(raw, now); !ok {
		t.Fatalf("future timestamp must be kept")
	}
}

func TestProjectCharset(t *testing.T) {
	n := New(nil)

	for _, name := range []string{"proj", "My Project-1.2_x", "a"} {
		raw := domain.RawRecord{"project_name": name, "history_id": "h1", "timestamp": "2024-01-01T00:00:00Z"}
		if _, ok, reason := n.Normalize(raw, now); !ok {
			t.Fatalf("%q rejected: %s", name, reason)
		}
	}
	for _, name := range []string{"bad/name!", "semi;colon", "tab\tname"} {
		raw := domain.RawRecord{"project_name": name, "history_id": "h1", "timestamp": "2024-01-01T00:00:00Z"}
		if _, ok, reason := n.Normalize(raw, now); ok || reason != ReasonBadProjectName {
			t.Fatalf("%q: ok=%v reason=%s", name, ok, reason)
		}
	}
}

func TestVariantsRequireModel(t *testing.T) {
	n := New(nil)

	raw := domain.RawRecord{
		"project_name": "proj",
		"type":         "variants",
		"model":        "songs-2.0",
		"timestamp":    "2024-01-01T00:00:00Z",
	}
	rec, ok, _ := n.Normalize(raw, now)
	if !ok || rec.Type != domain.TypeVariants || rec.Model != "songs-2.0" {
		t.Fatalf("rec = %+v ok=%v", rec, ok)
	}
	// no history_id requirement for variants
	if rec.HistoryID != "" {
		t.Fatalf("variants record should carry no history id")
	}

	for _, model := range []any{nil, "", "bad/model"} {
		raw := domain.RawRecord{"project_name": "proj", "type": "variants", "timestamp": "2024-01-01T00:00:00Z"}
		if model != nil {
			raw["model"] = model
		}
		if _, ok, reason := n.Normalize(raw, now); ok || reason != ReasonBadModel {
			t.Fatalf("model %v: ok=%v reason=%s", model, ok, reason)
		}
	}
}

func TestHistoryIDRequired(t *testing.T) {
	n := New(nil)
	raw := domain.RawRecord{
		"project_name": "proj",
		"type":         "decision",
		"timestamp":    "2024-01-01T00:00:00Z",
	}
	if _, ok, reason := n.Normalize(raw, now); ok || reason != ReasonMissingHistoryID {
		t.Fatalf("ok=%v reason=%s", ok, reason)
	}
}
