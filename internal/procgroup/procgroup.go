// SPDX-License-Identifier: MIT

// Package procgroup places child processes in their own process group so a
// cancelled conversion takes its whole process tree down with it.
package procgroup

import (
	"os/exec"
	"syscall"
)

// Set configures the command to start in a new process group.
// Required for Kill to act as a group reaper.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Kill sends sig to the process group of cmd. Processes that have already
// exited are treated as success.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	return kill(cmd, sig)
}
