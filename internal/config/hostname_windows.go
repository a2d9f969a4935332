//go:build windows

package config

import "os"

func nodeName() (string, error) {
	return os.Hostname()
}
