//go:build !unix

package plugin

import "os/exec"

func setPlatformProcAttr(cmd *exec.Cmd) {}

func terminateGroup(pid int) error { return nil }
