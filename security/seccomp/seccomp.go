// Package seccomp builds and loads the container init process's seccomp-BPF
// filter: an allow-list of about 230 syscalls with SCMP_ACT_ALLOW as the matched
// action and SCMP_ACT_KILL_PROCESS as the default, plus an explicit
// denylist that always kills even if a name were accidentally duplicated
// into the allow-list. Grounded on
// github.com/seccomp/libseccomp-golang (an indirect dependency already
// pulled in by the teacher's go.mod) instead of hand-rolling raw BPF
// instructions; the exact syscall sets are recovered from
// original_source/mini_docker/seccomp.py's ALLOWED_SYSCALLS_WHITELIST and
// ABSOLUTELY_FORBIDDEN_SYSCALLS.
package seccomp

import (
	"fmt"

	libseccomp "github.com/seccomp/libseccomp-golang"

	"github.com/mini-docker/mini-docker/errkind"
)

// Allowed is the syscall allow-list, §4.5's "~60-syscall" budget expanded
// to the set original_source actually whitelists.
var Allowed = []string{
	"read", "write", "open", "openat", "close", "lseek", "pread64", "pwrite64",
	"readv", "writev", "preadv", "pwritev",
	"stat", "fstat", "lstat", "newfstatat", "statx", "access", "faccessat", "faccessat2",
	"fcntl", "flock", "fsync", "fdatasync", "truncate", "ftruncate",
	"rename", "renameat", "renameat2", "link", "linkat", "unlink", "unlinkat",
	"symlink", "symlinkat", "readlink", "readlinkat",
	"chmod", "fchmod", "fchmodat", "chown", "fchown", "fchownat", "lchown",
	"creat", "mknod", "mknodat",
	"getdents", "getdents64", "getcwd", "chdir", "fchdir", "mkdir", "mkdirat", "rmdir",
	"mmap", "mprotect", "munmap", "brk", "mremap", "msync", "mincore", "madvise",
	"mlock", "munlock", "mlockall", "munlockall", "mlock2",
	"fork", "vfork", "clone", "clone3", "execve", "execveat", "exit", "exit_group", "wait4",
	"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "rt_sigpending", "rt_sigtimedwait",
	"rt_sigsuspend", "sigaltstack", "kill", "tgkill", "tkill",
	"getpid", "getppid", "gettid", "getuid", "getgid", "geteuid", "getegid",
	"getresuid", "getresgid", "getgroups", "getpgid", "getpgrp", "getsid",
	"setuid", "setgid", "setreuid", "setregid", "setresuid", "setresgid",
	"setgroups", "setpgid", "setsid", "setfsuid", "setfsgid",
	"pipe", "pipe2", "dup", "dup2", "dup3",
	"socket", "connect", "accept", "accept4", "bind", "listen",
	"sendto", "recvfrom", "sendmsg", "recvmsg", "sendmmsg", "recvmmsg",
	"shutdown", "getsockname", "getpeername", "socketpair", "setsockopt", "getsockopt",
	"poll", "ppoll", "select", "pselect6",
	"epoll_create", "epoll_create1", "epoll_ctl", "epoll_wait", "epoll_pwait", "epoll_pwait2",
	"clock_gettime", "clock_getres", "clock_nanosleep", "gettimeofday", "nanosleep", "times",
	"timer_create", "timer_settime", "timer_gettime", "timer_getoverrun", "timer_delete",
	"alarm", "getitimer", "setitimer",
	"futex", "set_robust_list", "get_robust_list",
	"getrandom", "getrlimit", "setrlimit", "prlimit64", "getrusage",
	"sched_yield", "sched_getparam", "sched_setparam", "sched_getscheduler",
	"sched_setscheduler", "sched_get_priority_max", "sched_get_priority_min",
	"sched_rr_get_interval", "sched_getaffinity", "sched_setaffinity",
	"sched_getattr", "sched_setattr",
	"uname", "sysinfo", "getcpu",
	"ioctl", "prctl", "arch_prctl", "set_tid_address", "set_thread_area", "get_thread_area",
	"capget", "umask", "sync", "syncfs",
	"eventfd", "eventfd2", "signalfd", "signalfd4",
	"timerfd_create", "timerfd_settime", "timerfd_gettime", "inotify_init1",
	"fallocate", "splice", "tee", "vmsplice", "copy_file_range", "sync_file_range",
	"memfd_create", "statfs", "fstatfs", "utime", "utimes", "utimensat", "futimesat",
	"getxattr", "lgetxattr", "fgetxattr", "listxattr", "llistxattr", "flistxattr",
	"mbind", "get_mempolicy", "set_mempolicy",
	"pause", "rseq", "close_range", "openat2", "rt_tgsigqueueinfo", "membarrier",
}

// Denied is the explicit denylist: syscalls that must kill the process even
// if they were ever accidentally added to Allowed above. Never consulted
// for anything not already excluded by the default-deny filter, but kept
// explicit per §4.5's design (a denylist that can't be bypassed by editing
// the allow-list alone).
var Denied = []string{
	"ptrace", "process_vm_readv", "process_vm_writev", "kcmp",
	"init_module", "finit_module", "delete_module",
	"kexec_load", "kexec_file_load",
	"reboot", "swapon", "swapoff",
	"mount", "umount", "umount2", "pivot_root",
	"settimeofday", "clock_settime", "clock_adjtime", "adjtimex",
	"sethostname", "setdomainname",
	"iopl", "ioperm",
	"acct", "syslog", "lookup_dcookie",
	"bpf", "perf_event_open",
	"userfaultfd", "fanotify_init", "fanotify_mark",
	"add_key", "keyctl", "request_key",
	"capset",
	"setns", "unshare",
	"personality", "quotactl", "vhangup", "move_pages", "seccomp",
}

// Load builds the allow-list filter and installs it on the calling thread
// via seccomp(2)/PR_SET_SECCOMP. Must run after NO_NEW_PRIVS and capability
// drop, immediately before execve, per §4.6's step ordering.
func Load() error {
	filter, err := libseccomp.NewFilter(libseccomp.ActKillProcess)
	if err != nil {
		return errkind.New(errkind.ResourceKernel, fmt.Errorf("new seccomp filter: %w", err))
	}
	defer filter.Release()

	if err := addNativeArch(filter); err != nil {
		return err
	}

	allow := make(map[string]bool, len(Allowed))
	for _, n := range Allowed {
		allow[n] = true
	}
	for _, n := range Denied {
		delete(allow, n)
	}

	for name := range allow {
		call, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			// Not every kernel/arch has every name (e.g. 32-bit-only
			// syscalls); skip unresolvable names rather than fail the
			// whole filter.
			continue
		}
		if err := filter.AddRule(call, libseccomp.ActAllow); err != nil {
			return errkind.New(errkind.ResourceKernel, fmt.Errorf("allow %s: %w", name, err))
		}
	}
	// Denied names were dropped from allow above, so they reach the
	// default kill action; libseccomp rejects a rule whose action equals
	// the filter's default, so no separate kill rule is added for them.

	if err := filter.Load(); err != nil {
		return errkind.New(errkind.ResourceKernel, fmt.Errorf("load seccomp filter: %w", err))
	}
	return nil
}

// addNativeArch adds the running process's native architecture to filter,
// the Go equivalent of original_source's AUDIT_ARCH fingerprint check: a
// filter with no matching arch added refuses every syscall from that arch,
// which is the safe failure mode but not what we want here.
func addNativeArch(filter *libseccomp.ScmpFilter) error {
	arch, err := libseccomp.GetNativeArch()
	if err != nil {
		return errkind.New(errkind.ResourceKernel, fmt.Errorf("get native arch: %w", err))
	}
	if err := filter.AddArch(arch); err != nil {
		return errkind.New(errkind.ResourceKernel, fmt.Errorf("add arch %v: %w", arch, err))
	}
	return nil
}
