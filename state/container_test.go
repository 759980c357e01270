package state

import (
	"os"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStoreAt(dir)
	if err != nil {
		t.Fatalf("NewStoreAt: %v", err)
	}
	return s
}

func TestCreateAndLoadContainerState(t *testing.T) {
	s := newTestStore(t)
	st := &ContainerState{ID: "abc123def456", Name: "web", Status: StatusCreated, RootfsMode: "overlay"}
	if err := s.CreateContainer(st.ID, map[string]string{"argv": "true"}, st); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	got, err := s.LoadContainerState(st.ID)
	if err != nil {
		t.Fatalf("LoadContainerState: %v", err)
	}
	if got.Name != "web" || got.Status != StatusCreated {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestReconcileDeadPID(t *testing.T) {
	s := newTestStore(t)
	st := &ContainerState{ID: "deadbeef0000", Status: StatusRunning, PID: 1<<30, StartTimeTicks: 999}
	if err := s.CreateContainer(st.ID, struct{}{}, st); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	got, err := s.LoadContainerState(st.ID)
	if err != nil {
		t.Fatalf("LoadContainerState: %v", err)
	}
	if got.Status != StatusDead {
		t.Fatalf("expected reconciliation to dead, got %s", got.Status)
	}
}

func TestReconcileLiveSelfPID(t *testing.T) {
	ticks, err := processStartTicks(os.Getpid())
	if err != nil {
		t.Skipf("cannot read own /proc/self/stat: %v", err)
	}
	s := newTestStore(t)
	st := &ContainerState{ID: "selfselfself", Status: StatusRunning, PID: os.Getpid(), StartTimeTicks: ticks}
	if err := s.CreateContainer(st.ID, struct{}{}, st); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	got, err := s.LoadContainerState(st.ID)
	if err != nil {
		t.Fatalf("LoadContainerState: %v", err)
	}
	if got.Status != StatusRunning {
		t.Fatalf("expected still running, got %s", got.Status)
	}
}

func TestReserveNameConflict(t *testing.T) {
	ticks, err := processStartTicks(os.Getpid())
	if err != nil {
		t.Fatalf("read own start time: %v", err)
	}
	s := newTestStore(t)
	st := &ContainerState{ID: "nameconflict01", Name: "app", Status: StatusRunning, PID: os.Getpid(), StartTimeTicks: ticks}
	if err := s.CreateContainer(st.ID, struct{}{}, st); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	if err := s.ReserveName("app"); err == nil {
		t.Fatal("expected ReserveName to conflict on a live container's name")
	}
}

func TestResolvePrefix(t *testing.T) {
	s := newTestStore(t)
	st := &ContainerState{ID: "abcdef123456", Status: StatusExited}
	if err := s.CreateContainer(st.ID, struct{}{}, st); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	id, err := s.Resolve("abcdef")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != st.ID {
		t.Fatalf("got %s, want %s", id, st.ID)
	}
	if _, err := s.Resolve("ab"); err == nil {
		t.Fatal("expected a too-short prefix (<3 chars) to fail")
	}
}
