//go:build windows

package main

import (
	"os"
)

// terminationSignals stop the bot and the HTTP server gracefully.
var terminationSignals = []os.Signal{os.Interrupt}
