package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewTagsServiceAndRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "warn", "bazaarpay", "test")

	logger.Info("dropped")
	logger.Warn("kept", "reference_id", "TRF_1")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "kept" || line["service"] != "bazaarpay" || line["env"] != "test" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	newWithWriter(&buf, "loud", "", "").Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info, got %q", buf.String())
	}
}
