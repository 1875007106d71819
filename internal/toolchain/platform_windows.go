//go:build windows

package toolchain

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// setupProcessGroup hides the console window; Windows has no process groups
// in the Unix sense, taskkill /T handles the tree instead.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
}

// killProcessGroup kills the process tree via taskkill.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	killCmd := exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprintf("%d", cmd.Process.Pid))
	killCmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	if err := killCmd.Run(); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

// signalDescription always reports "" on Windows; termination surfaces as an
// exit code instead.
func signalDescription(state *os.ProcessState) string {
	return ""
}
