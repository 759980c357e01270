package runtime

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/mini-docker/mini-docker/configs"
	"github.com/mini-docker/mini-docker/state"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	rt := NewRuntime(t.TempDir(), false, "error", false, &bytes.Buffer{})
	mgr, err := NewManager(rt)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestParseUser(t *testing.T) {
	cases := []struct {
		spec    string
		want    uidGid
		wantErr bool
	}{
		{"", uidGid{0, 0}, false},
		{"1000", uidGid{1000, 1000}, false},
		{"1000:2000", uidGid{1000, 2000}, false},
		{"nope", uidGid{}, true},
		{"1000:nope", uidGid{}, true},
	}
	for _, c := range cases {
		got, err := parseUser(c.spec)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseUser(%q): expected error", c.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseUser(%q): %v", c.spec, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseUser(%q) = %+v, want %+v", c.spec, got, c.want)
		}
	}
}

func TestParseVolumes(t *testing.T) {
	mounts, err := parseVolumes([]string{"/host/a:/ctr/a", "/host/b:/ctr/b:ro"})
	if err != nil {
		t.Fatalf("parseVolumes: %v", err)
	}
	if len(mounts) != 2 {
		t.Fatalf("got %d mounts, want 2", len(mounts))
	}
	if mounts[0].ReadOnly {
		t.Error("first mount should not be read-only")
	}
	if !mounts[1].ReadOnly {
		t.Error("second mount should be read-only (trailing :ro)")
	}
	if _, err := parseVolumes([]string{"justonepath"}); err == nil {
		t.Error("expected an error for a volume spec missing the container path")
	}
}

func TestNamespacesForBridgeAndPod(t *testing.T) {
	bridge := namespacesFor("bridge", false, "")
	if bridge.PathOf(configs.NEWNET) != "" || !bridge.Contains(configs.NEWNET) {
		t.Error("bridge mode should create a fresh net namespace, not join one")
	}
	if bridge.Contains(configs.NEWUSER) {
		t.Error("non-rootless run should not request a user namespace")
	}

	pod := namespacesFor("pod", false, "/proc/123/ns/net")
	if pod.PathOf(configs.NEWNET) != "/proc/123/ns/net" {
		t.Errorf("pod mode should join the pod's pinned netns, got path %q", pod.PathOf(configs.NEWNET))
	}

	rootless := namespacesFor("none", true, "")
	if !rootless.Contains(configs.NEWUSER) {
		t.Error("rootless run should request a user namespace")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MINI_DOCKER_HOST", "/tmp/from-env")
	t.Setenv("MINI_DOCKER_DEBUG", "yes")
	t.Setenv("MINI_DOCKER_LOG_LEVEL", "")

	root, debug, level, systemdCgroup := EnvOverrides("", false, "", false)
	if root != "/tmp/from-env" {
		t.Errorf("stateRoot = %q, want env value", root)
	}
	if !debug {
		t.Error("MINI_DOCKER_DEBUG=yes should enable debug")
	}
	if level != "info" {
		t.Errorf("log level = %q, want default info when unset", level)
	}
	if systemdCgroup {
		t.Error("MINI_DOCKER_SYSTEMD_CGROUP is unset, should stay false")
	}

	root, _, _, _ = EnvOverrides("/explicit", false, "", false)
	if root != "/explicit" {
		t.Error("an explicit flag value should win over the env var")
	}

	t.Setenv("MINI_DOCKER_SYSTEMD_CGROUP", "true")
	_, _, _, systemdCgroup = EnvOverrides("", false, "", false)
	if !systemdCgroup {
		t.Error("MINI_DOCKER_SYSTEMD_CGROUP=true should enable the systemd cgroup driver")
	}
}

func TestPsAndInspectAndRm(t *testing.T) {
	mgr := newTestManager(t)
	st := &state.ContainerState{ID: "deadbeef0001", Name: "c1", Status: state.StatusExited}
	if err := mgr.Store.CreateContainer(st.ID, &configs.Config{}, st); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	running, err := mgr.Ps(false)
	if err != nil {
		t.Fatalf("Ps: %v", err)
	}
	if len(running) != 0 {
		t.Errorf("Ps(false) should hide exited containers, got %d", len(running))
	}

	all, err := mgr.Ps(true)
	if err != nil {
		t.Fatalf("Ps: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Ps(true) should show exited containers, got %d", len(all))
	}

	got, err := mgr.Inspect("deadbeef")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if got.Name != "c1" {
		t.Errorf("Inspect returned wrong container: %+v", got)
	}

	if err := mgr.Rm("deadbeef", false); err != nil {
		t.Fatalf("Rm of an already-exited container: %v", err)
	}
	if _, err := mgr.Inspect("deadbeef"); err == nil {
		t.Error("Inspect should fail after Rm")
	}
}

func TestLogsTail(t *testing.T) {
	mgr := newTestManager(t)
	st := &state.ContainerState{ID: "logtest000001", Status: state.StatusExited}
	if err := mgr.Store.CreateContainer(st.ID, &configs.Config{}, st); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	lines := "line1\nline2\nline3\nline4\nline5\n"
	if err := os.WriteFile(mgr.Store.ContainerLogPath(st.ID), []byte(lines), 0o644); err != nil {
		t.Fatalf("writing log fixture: %v", err)
	}

	var buf bytes.Buffer
	if err := mgr.Logs(st.ID, false, 2, &buf); err != nil {
		t.Fatalf("Logs: %v", err)
	}
	got := buf.String()
	if got != "line4\nline5\n" {
		t.Errorf("Logs(tail=2) = %q, want last two lines", got)
	}

	buf.Reset()
	if err := mgr.Logs(st.ID, false, 0, &buf); err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if buf.String() != lines {
		t.Errorf("Logs(tail=0) should return the whole file, got %q", buf.String())
	}
}

func TestCleanupRemovesOldDeadContainers(t *testing.T) {
	mgr := newTestManager(t)
	st := &state.ContainerState{ID: "cleanuptest01", Status: state.StatusExited, CreatedAt: time.Now().Add(-time.Hour).Unix()}
	if err := mgr.Store.CreateContainer(st.ID, &configs.Config{}, st); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	if err := mgr.Cleanup(time.Minute); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := mgr.Inspect(st.ID); err == nil {
		t.Error("Cleanup should have removed a container that exited over a minute ago")
	}
}

func TestFirstNonEmptyAndNonZeroPtr(t *testing.T) {
	if got := firstNonEmpty("", "", "c"); got != "c" {
		t.Errorf("firstNonEmpty = %q, want c", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Errorf("firstNonEmpty() = %q, want empty", got)
	}
	if nonZeroPtr(0) != nil {
		t.Error("nonZeroPtr(0) should be nil")
	}
	if p := nonZeroPtr(5); p == nil || *p != 5 {
		t.Error("nonZeroPtr(5) should point at 5")
	}
}
