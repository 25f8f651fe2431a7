//go:build !unix

package launch

import (
	"errors"
	"os/exec"
)

func setGroup(*exec.Cmd, int) {}

// Without process groups every rank is killed one by one.
func killGroup(int) error {
	return errors.ErrUnsupported
}
