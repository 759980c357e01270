package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mini-docker/mini-docker/state"
)

func TestPrintContainerTable(t *testing.T) {
	states := []*state.ContainerState{
		{ID: "abcdef0123456789", Name: "web", Status: state.StatusRunning, PID: 4242},
	}
	var buf bytes.Buffer
	if err := printContainerTable(&buf, states); err != nil {
		t.Fatalf("printContainerTable: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "ID") || !strings.Contains(out, "NAME") {
		t.Errorf("missing header row: %q", out)
	}
	if !strings.Contains(out, "abcdef012345") {
		t.Errorf("expected the 12-char short ID in output, got %q", out)
	}
	if strings.Contains(out, "abcdef0123456789") {
		t.Errorf("full 16-char ID should be truncated to 12, got %q", out)
	}
	if !strings.Contains(out, "4242") {
		t.Errorf("expected pid in output, got %q", out)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, map[string]int{"a": 1}); err != nil {
		t.Fatalf("printJSON: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("printJSON did not produce valid JSON: %v", err)
	}
	if got["a"] != 1 {
		t.Errorf("got %+v, want a=1", got)
	}
	if !strings.Contains(buf.String(), "  ") {
		t.Error("expected indented JSON output")
	}
}

func TestSanitizeForDir(t *testing.T) {
	cases := map[string]string{
		"app:latest":    "app_latest",
		"app":           "app",
		"ns/app:v1.2.3": "ns/app_v1.2.3",
	}
	for in, want := range cases {
		if got := sanitizeForDir(in); got != want {
			t.Errorf("sanitizeForDir(%q) = %q, want %q", in, got, want)
		}
	}
}
