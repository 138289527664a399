// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"os"
	"runtime"

	"tuner/cmd"
	"tuner/internal/log"
	"tuner/pkg/build"
)

// main is the entry point for the tuner.
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands (list, analyze)
//
// 2. Concurrent Phase (Hot Path):
//   - Start capture; the PortAudio callback fills the sample window
//   - Run the detector on every tick (terminal view or headless loop)
//   - Publish detections to the configured transports
//
// 3. Shutdown Phase (Cold Path):
//   - Handle quit key or termination signal
//   - Stop recording and capture, close transports
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds run without ldflags.
	buildErr := build.Initialize()

	// One thread for the audio callback, one for updates and I/O.
	runtime.GOMAXPROCS(2)

	options, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if options.Command == cmd.CommandNone {
		return
	}

	cfg := options.Config
	if err := log.Configure(cfg.LogLevel, cfg.Debug || options.Verbose); err != nil {
		log.Warnf("Config: %v", err)
	}
	if buildErr != nil {
		log.Debugf("Build: %v", buildErr)
	}

	switch options.Command {
	case cmd.CommandList:
		err = cmd.List(os.Stdout)
	case cmd.CommandAnalyze:
		err = cmd.Analyze(cfg, options.File, options.JSON, os.Stdout)

	// ==================== CONCURRENT PHASE (Hot Path) ====================
	case cmd.CommandTune:
		err = cmd.Tune(cfg, options.Headless)
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================
	if err != nil {
		log.Fatalf("%v", err)
	}
}
