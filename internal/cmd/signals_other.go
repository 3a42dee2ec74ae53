//go:build !unix

package cmd

import "github.com/offlinefirst/workflow-recorder/pkg/capture"

const controlSignalHint = "Ctrl+C stops"

func watchControlSignals(*capture.Controller) func() { return func() {} }
