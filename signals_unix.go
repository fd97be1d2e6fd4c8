//go:build !windows

package main

import (
	"os"
	"syscall"
)

// controlSignals returns the signals that pause and resume a batch run
func controlSignals() (pause, resume os.Signal) {
	return syscall.SIGUSR1, syscall.SIGUSR2
}
