package main

import "os"

// Windows has no user signals; a batch run can only be stopped
func controlSignals() (pause, resume os.Signal) {
	return nil, nil
}
