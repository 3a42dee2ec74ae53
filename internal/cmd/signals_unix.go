//go:build unix

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/offlinefirst/workflow-recorder/pkg/capture"
)

const controlSignalHint = "SIGUSR1 pauses, SIGUSR2 resumes, Ctrl+C stops"

// watchControlSignals maps SIGUSR1/SIGUSR2 onto pause/resume of c until the
// returned stop function is called.
func watchControlSignals(c *capture.Controller) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-ch:
				if sig == syscall.SIGUSR1 {
					c.Pause("SIGUSR1")
				} else {
					c.Resume("SIGUSR2")
				}
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
