//go:build !windows

package config

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// nodeName returns the kernel node name.
func nodeName() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("uname: %w", err)
	}
	return unix.ByteSliceToString(uts.Nodename[:]), nil
}
