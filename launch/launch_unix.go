//go:build unix

package launch

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setGroup puts cmd in process group pgid, or in a new group of its own if
// pgid is 0. The launcher itself stays outside the group.
func setGroup(cmd *exec.Cmd, pgid int) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    pgid,
	}
}

func killGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGKILL)
}
