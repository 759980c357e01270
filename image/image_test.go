package image

import (
	"testing"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

func TestRegisterAndResolve(t *testing.T) {
	s := NewStore(t.TempDir())
	img := &Image{Tag: "app:latest", RootfsPath: "/var/lib/mini-docker/images/app/rootfs", DefaultCmd: []string{"/bin/sh"}}
	if err := s.Register(img); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := s.Resolve("app:latest")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.RootfsPath != img.RootfsPath {
		t.Fatalf("got %s, want %s", got.RootfsPath, img.RootfsPath)
	}
}

func TestResolveMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Resolve("nope:latest"); err == nil {
		t.Fatal("expected an error resolving an unregistered tag")
	}
}

func TestListAndRemove(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, tag := range []string{"a:1", "b:1"} {
		if err := s.Register(&Image{Tag: tag, RootfsPath: "/x"}); err != nil {
			t.Fatalf("Register(%s): %v", tag, err)
		}
	}
	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 images, got %d", len(list))
	}
	if err := s.Remove("a:1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Resolve("a:1"); err == nil {
		t.Fatal("expected a:1 to be gone after Remove")
	}
}

func TestConfigFromOCI(t *testing.T) {
	cmd, env := ConfigFromOCI(&v1.ImageConfig{Entrypoint: []string{"/bin/sh"}, Cmd: []string{"-c", "true"}, Env: []string{"FOO=bar"}})
	if len(cmd) != 3 || cmd[0] != "/bin/sh" {
		t.Fatalf("unexpected cmd: %v", cmd)
	}
	if len(env) != 1 || env[0] != "FOO=bar" {
		t.Fatalf("unexpected env: %v", env)
	}
}
