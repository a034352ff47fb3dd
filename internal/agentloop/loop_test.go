package agentloop

import (
	"encoding/json"
	"strings"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

// TestNewSessionBuildsToolCatalogueAndConfirmations checks that every
// catalogue tool is dispatchable by name and that only the caller-supplied
// confirmed tool names are marked confirmed.
func TestNewSessionBuildsToolCatalogueAndConfirmations(t *testing.T) {
	t.Parallel()

	s := NewSession(anthropic.Client{}, defaultConfig(), &Deps{}, []string{"open_position"}, testLogger())

	for _, tool := range catalogue() {
		if _, ok := s.toolByName[tool.name]; !ok {
			t.Errorf("toolByName missing catalogue entry %q", tool.name)
		}
	}
	if !s.confirmed["open_position"] {
		t.Error(`confirmed["open_position"] = false, want true`)
	}
	if s.confirmed["close_position"] {
		t.Error(`confirmed["close_position"] = true, want false (not in confirmedTools)`)
	}
}

func TestExtractReport(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		result any
		want   any
	}{
		{"map with report", map[string]any{"_report": "summary", "x": 1}, "summary"},
		{"map without report", map[string]any{"x": 1}, nil},
		{"non-map result", []int{1, 2, 3}, nil},
		{"nil result", nil, nil},
	}
	for _, c := range cases {
		if got := extractReport(c.result); got != c.want {
			t.Errorf("%s: extractReport = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestToolErrorMarksBlockAsError(t *testing.T) {
	t.Parallel()

	block := toolError("tu_1", "boom")
	data, err := json.Marshal(block)
	if err != nil {
		t.Fatalf("marshal tool-error block: %v", err)
	}
	if !strings.Contains(string(data), "boom") {
		t.Errorf("serialized tool-error block missing message, got: %s", data)
	}
	if !strings.Contains(string(data), "tu_1") {
		t.Errorf("serialized tool-error block missing tool-use id, got: %s", data)
	}
	if !strings.Contains(string(data), `"is_error":true`) {
		t.Errorf("serialized tool-error block not marked as error, got: %s", data)
	}
}

func TestJSONUnmarshalIntoEmptyRaw(t *testing.T) {
	t.Parallel()

	var out map[string]any
	if err := jsonUnmarshalInto(nil, &out); err != nil {
		t.Fatalf("jsonUnmarshalInto(nil): %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("jsonUnmarshalInto(nil) = %v, want empty map", out)
	}

	if err := jsonUnmarshalInto([]byte(`{"perpetual_id":7}`), &out); err != nil {
		t.Fatalf("jsonUnmarshalInto: %v", err)
	}
	if out["perpetual_id"].(float64) != 7 {
		t.Fatalf(`out["perpetual_id"] = %v, want 7`, out["perpetual_id"])
	}
}

func TestMustJSONFallsBackOnMarshalFailure(t *testing.T) {
	t.Parallel()

	// channels are not JSON-marshalable; mustJSON must still return valid
	// JSON rather than panicking or returning garbage.
	got := mustJSON(make(chan int))
	var decoded map[string]string
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("mustJSON fallback is not valid JSON: %s", got)
	}
	if decoded["error"] == "" {
		t.Errorf("mustJSON fallback missing error field, got: %s", got)
	}
}
