package build

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseBasic(t *testing.T) {
	src := "FROM ./base\nENV FOO=bar\nWORKDIR /app\nCMD [\"/bin/sh\", \"-c\", \"echo hi\"]\n"
	instructions, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(instructions) != 4 {
		t.Fatalf("expected 4 instructions, got %d", len(instructions))
	}
	if instructions[0].Verb != "FROM" || instructions[0].Args != "./base" {
		t.Fatalf("unexpected first instruction: %+v", instructions[0])
	}
}

func TestParseLineContinuation(t *testing.T) {
	src := "FROM ./base\nRUN echo a && \\\n    echo b\n"
	instructions, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(instructions) != 2 || !strings.Contains(instructions[1].Args, "echo b") {
		t.Fatalf("unexpected instructions: %+v", instructions)
	}
}

func TestParseEmptyFails(t *testing.T) {
	if _, err := Parse(strings.NewReader("# just a comment\n")); err == nil {
		t.Fatal("expected an error parsing an Imagefile with no instructions")
	}
}

func TestExecuteFromCopyWorkdirCmd(t *testing.T) {
	context := t.TempDir()
	base := filepath.Join(context, "base")
	if err := os.MkdirAll(filepath.Join(base, "etc"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "etc", "marker"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(context, "app.sh"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	instructions := []Instruction{
		{Verb: "FROM", Args: "./base"},
		{Verb: "ENV", Args: "FOO=bar"},
		{Verb: "COPY", Args: "app.sh /app/app.sh"},
		{Verb: "WORKDIR", Args: "/app"},
		{Verb: "CMD", Args: `["/app/app.sh"]`},
	}
	out := t.TempDir()
	res, err := Execute(instructions, context, out)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Workdir != "/app" {
		t.Fatalf("unexpected workdir: %s", res.Workdir)
	}
	if len(res.Cmd) != 1 || res.Cmd[0] != "/app/app.sh" {
		t.Fatalf("unexpected cmd: %v", res.Cmd)
	}
	if _, err := os.Stat(filepath.Join(res.RootfsPath, "etc", "marker")); err != nil {
		t.Fatalf("expected FROM to have copied etc/marker: %v", err)
	}
	if _, err := os.Stat(filepath.Join(res.RootfsPath, "app", "app.sh")); err != nil {
		t.Fatalf("expected COPY to have placed app/app.sh: %v", err)
	}
}

func TestExecuteMissingFromFails(t *testing.T) {
	_, err := Execute([]Instruction{{Verb: "ENV", Args: "A=1"}}, t.TempDir(), t.TempDir())
	if err == nil {
		t.Fatal("expected ENV before FROM to fail")
	}
}

func TestParseArgvShellFallback(t *testing.T) {
	argv := parseArgv("echo hello world")
	if len(argv) != 3 || argv[0] != "/bin/sh" || argv[1] != "-c" {
		t.Fatalf("unexpected argv: %v", argv)
	}
}
