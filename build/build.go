// Package build implements the seven-verb Imagefile grammar of §6
// (FROM, ENV, RUN, COPY, WORKDIR, CMD, ENTRYPOINT). Deliberately thin
// per spec.md's Non-goals: one layer per build (no per-instruction
// caching, no registry push/pull), grounded on
// original_source/mini_docker/image_builder.py's own minimal
// instruction handlers — translated from its copytree-then-
// subprocess.run scratch-directory approach into a single rootfs
// directory mutated in place with os/exec and io/fs copies.
package build

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mrunalp/fileutils"

	"github.com/mini-docker/mini-docker/errkind"
)

// Instruction is one parsed line of an Imagefile.
type Instruction struct {
	Verb string
	Args string
}

// Parse reads an Imagefile's content into its instruction list,
// supporting the same comment/blank-line skipping and trailing-
// backslash line continuation as original_source's parse_image_file.
func Parse(r io.Reader) ([]Instruction, error) {
	var instructions []Instruction
	var pending string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, "\\") {
			pending += strings.TrimSuffix(line, "\\") + " "
			continue
		}
		pending += line
		parts := strings.SplitN(pending, " ", 2)
		verb := strings.ToUpper(parts[0])
		args := ""
		if len(parts) == 2 {
			args = strings.TrimSpace(parts[1])
		}
		instructions = append(instructions, Instruction{Verb: verb, Args: args})
		pending = ""
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(instructions) == 0 {
		return nil, errkind.New(errkind.ConfigInvalid, fmt.Errorf("no instructions found"))
	}
	return instructions, nil
}

// Result is the executed build's final image configuration.
type Result struct {
	RootfsPath string
	Env        []string
	Workdir    string
	Cmd        []string
}

// Execute runs instructions against a fresh rootfs directory under
// outputDir (images/<tag>/rootfs), resolving COPY/FROM sources
// relative to buildContext (the Imagefile's directory), per §4.10.
func Execute(instructions []Instruction, buildContext, outputDir string) (*Result, error) {
	rootfs := filepath.Join(outputDir, "rootfs")
	if err := os.MkdirAll(rootfs, 0o755); err != nil {
		return nil, err
	}

	res := &Result{RootfsPath: rootfs, Workdir: "/"}
	sawFrom := false

	for _, ins := range instructions {
		switch ins.Verb {
		case "FROM":
			if err := handleFrom(rootfs, ins.Args, buildContext); err != nil {
				return nil, err
			}
			sawFrom = true
		case "ENV":
			if !sawFrom {
				return nil, errkind.New(errkind.ConfigInvalid, fmt.Errorf("ENV before FROM"))
			}
			res.Env = append(res.Env, normalizeEnv(ins.Args))
		case "RUN":
			if !sawFrom {
				return nil, errkind.New(errkind.ConfigInvalid, fmt.Errorf("RUN before FROM"))
			}
			if err := handleRun(rootfs, ins.Args, res.Env); err != nil {
				return nil, err
			}
		case "COPY":
			if !sawFrom {
				return nil, errkind.New(errkind.ConfigInvalid, fmt.Errorf("COPY before FROM"))
			}
			if err := handleCopy(rootfs, ins.Args, buildContext); err != nil {
				return nil, err
			}
		case "WORKDIR":
			res.Workdir = ins.Args
		case "CMD":
			res.Cmd = parseArgv(ins.Args)
		case "ENTRYPOINT":
			res.Cmd = parseArgv(ins.Args)
		default:
			return nil, errkind.New(errkind.ConfigInvalid, fmt.Errorf("unknown instruction %q", ins.Verb))
		}
	}
	if !sawFrom {
		return nil, errkind.New(errkind.ConfigInvalid, fmt.Errorf("Imagefile has no FROM"))
	}
	return res, nil
}

func handleFrom(rootfs, args, context string) error {
	base := strings.TrimSpace(args)
	if !filepath.IsAbs(base) {
		base = filepath.Join(context, base)
	}
	st, err := os.Stat(base)
	if err != nil || !st.IsDir() {
		return errkind.New(errkind.ConfigInvalid, fmt.Errorf("base image not found: %s", base))
	}
	return copyTree(base, rootfs)
}

// handleRun execs /bin/sh -c <args> with rootfs bind-exposed via chroot
// when running as root; falls back to running directly against rootfs
// as cwd when unprivileged, since a real chroot build needs CAP_SYS_CHROOT.
func handleRun(rootfs, args string, env []string) error {
	cmd := exec.Command("/bin/sh", "-c", args)
	cmd.Env = append(os.Environ(), env...)
	if os.Geteuid() == 0 {
		cmd.SysProcAttr = chrootAttr(rootfs)
		cmd.Dir = "/"
	} else {
		cmd.Dir = rootfs
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errkind.New(errkind.ConfigInvalid, fmt.Errorf("RUN %q failed: %w: %s", args, err, out))
	}
	return nil
}

func handleCopy(rootfs, args, context string) error {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return errkind.New(errkind.ConfigInvalid, fmt.Errorf("COPY requires source and destination"))
	}
	sources, dest := parts[:len(parts)-1], parts[len(parts)-1]
	destPath := filepath.Join(rootfs, strings.TrimPrefix(dest, "/"))
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	for _, src := range sources {
		srcPath := filepath.Join(context, src)
		st, err := os.Stat(srcPath)
		if err != nil {
			return errkind.New(errkind.ConfigInvalid, fmt.Errorf("COPY source %s: %w", src, err))
		}
		if st.IsDir() {
			if err := copyTree(srcPath, destPath); err != nil {
				return err
			}
		} else if err := fileutils.CopyFile(srcPath, destPath); err != nil {
			return err
		}
	}
	return nil
}

func normalizeEnv(args string) string {
	if idx := strings.Index(args, "="); idx >= 0 {
		return strings.TrimSpace(args[:idx]) + "=" + strings.TrimSpace(args[idx+1:])
	}
	parts := strings.SplitN(args, " ", 2)
	if len(parts) == 2 {
		return parts[0] + "=" + parts[1]
	}
	return args
}

// parseArgv accepts either a JSON-ish `["a", "b"]` array (split naively
// on commas/quotes, no real JSON needed for this grammar's scope) or a
// bare shell command wrapped in /bin/sh -c.
func parseArgv(args string) []string {
	args = strings.TrimSpace(args)
	if strings.HasPrefix(args, "[") && strings.HasSuffix(args, "]") {
		inner := strings.Trim(args, "[]")
		var out []string
		for _, tok := range strings.Split(inner, ",") {
			tok = strings.TrimSpace(tok)
			tok = strings.Trim(tok, `"`)
			if tok != "" {
				out = append(out, tok)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{"/bin/sh", "-c", args}
}

// copyTree recursively copies src into dst, preferring a hard link and
// falling back to fileutils.CopyFile across devices, the same fallback
// rootfs.copyTree uses for the unprivileged overlay case.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if d.Type()&fs.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.Link(path, target); err == nil {
			return nil
		}
		return fileutils.CopyFile(path, target)
	})
}

