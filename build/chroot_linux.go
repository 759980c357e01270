package build

import "syscall"

// chrootAttr builds the SysProcAttr that confines a RUN instruction's
// shell to rootfs via chroot(2), available only when the builder has
// CAP_SYS_CHROOT (checked by handleRun's euid-0 guard before use).
func chrootAttr(rootfs string) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Chroot: rootfs}
}
