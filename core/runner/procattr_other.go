//go:build !unix

package runner

import "os/exec"

// setProcessGroup falls back to killing the direct child only.
func setProcessGroup(cmd *exec.Cmd) {}
