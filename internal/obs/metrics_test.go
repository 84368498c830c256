package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                 "/",
		"/metrics":                         "/metrics",
		"/v1/advisors":                     "/v1/advisors",
		"/v1/advisors/12":                  "/v1/advisors/:id",
		"/v1/advisors/12/availability":     "/v1/advisors/:id/availability",
		"/v1/consultations/7/timeline":     "/v1/consultations/:id/timeline",
		"/v1/consultations/7/feedback?x=1": "/v1/consultations/:id/feedback",
		"/v1/consultations/7/a/b":          "/v1/consultations/7/a/b",
		"/v1/consultations?user_id=3":      "/v1/consultations",
		"/v1/stream/timeline":              "/v1/stream/timeline",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestLogWritesJSONLine(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	Warn("disk slow", map[string]any{"partition": "advisors", "msg": "overridden"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "disk slow" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["partition"] != "advisors" {
		t.Fatalf("missing field: %v", entry)
	}
}
