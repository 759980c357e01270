package cmd

import (
	"strings"
	"testing"
)

func TestVersionStringIncludesGoVersion(t *testing.T) {
	v := versionString()
	if !strings.Contains(v, "go: go1") && !strings.Contains(v, "go: go") {
		t.Errorf("versionString() = %q, want a go: line", v)
	}
	if !strings.Contains(v, "spec:") {
		t.Errorf("versionString() = %q, want a spec: line", v)
	}
}
