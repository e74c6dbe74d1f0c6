//go:build unix

package delivery

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so it survives the parent's exit
// and is not hit by signals sent to the parent's process group.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
