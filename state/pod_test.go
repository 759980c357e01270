package state

import (
	"os"
	"testing"
)

func TestCreateAndLoadPod(t *testing.T) {
	s := newTestStore(t)
	pod := &PodState{ID: "pod000000001", Name: "stack", SharedNamespaces: []string{"net", "ipc", "uts"}}
	if err := s.CreatePod(pod); err != nil {
		t.Fatalf("CreatePod: %v", err)
	}
	pod.Members = append(pod.Members, "c1")
	if err := s.SavePod(pod); err != nil {
		t.Fatalf("SavePod: %v", err)
	}
	got, err := s.LoadPod(pod.ID)
	if err != nil {
		t.Fatalf("LoadPod: %v", err)
	}
	if len(got.Members) != 1 || got.Members[0] != "c1" {
		t.Fatalf("unexpected members: %+v", got.Members)
	}
}

func TestResolvePodByName(t *testing.T) {
	s := newTestStore(t)
	pod := &PodState{ID: "pod000000002", Name: "stack2"}
	if err := s.CreatePod(pod); err != nil {
		t.Fatalf("CreatePod: %v", err)
	}
	id, err := s.ResolvePod("stack2")
	if err != nil {
		t.Fatalf("ResolvePod: %v", err)
	}
	if id != pod.ID {
		t.Fatalf("got %s, want %s", id, pod.ID)
	}
}

func TestRemovePodUnmountsHandles(t *testing.T) {
	s := newTestStore(t)
	pod := &PodState{ID: "pod000000003", Name: "stack3"}
	if err := s.CreatePod(pod); err != nil {
		t.Fatalf("CreatePod: %v", err)
	}
	nsPath := s.PodNamespacePath(pod.ID, "net")
	if err := writeEmpty(nsPath); err != nil {
		t.Fatalf("write stub namespace handle: %v", err)
	}
	var unmounted []string
	err := s.RemovePod(pod.ID, func(path string) error {
		unmounted = append(unmounted, path)
		return nil
	})
	if err != nil {
		t.Fatalf("RemovePod: %v", err)
	}
	if len(unmounted) != 1 || unmounted[0] != nsPath {
		t.Fatalf("expected exactly one unmount of %s, got %v", nsPath, unmounted)
	}
}

func writeEmpty(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
