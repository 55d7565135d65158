//go:build !windows

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// registerQuitHandler makes SIGQUIT exit immediately instead of waiting for
// the agent call in flight. Run state from the last finished loop stays on
// disk, so `codchestra run --resume` picks up from there.
func registerQuitHandler() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGQUIT)
	go func() {
		<-sigs
		fmt.Fprintln(os.Stderr, "SIGQUIT: stopping immediately")
		os.Exit(1)
	}()
}
