package sys

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func TestSethostnameRequiresPrivilege(t *testing.T) {
	err := Sethostname("probe-only")
	if err == nil {
		// Running as root or in a UTS namespace that allows it; nothing to assert.
		return
	}
	if !errors.Is(err, unix.EPERM) {
		t.Fatalf("expected EPERM, got %v", err)
	}
}

func TestMountUnknownFstypeFails(t *testing.T) {
	err := Mount("none", "/nonexistent-mini-docker-target", "no-such-fstype", 0, "")
	if err == nil {
		t.Fatal("expected an error mounting a nonexistent target")
	}
}
