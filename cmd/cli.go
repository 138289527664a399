// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"tuner/internal/config"
	"tuner/pkg/build"

	"github.com/spf13/cobra"
)

// Commands selected by ParseArgs.
const (
	CommandNone    = ""
	CommandTune    = "tune"
	CommandList    = "list"
	CommandAnalyze = "analyze"
)

// Options is the parsed command line with its loaded configuration.
type Options struct {
	Command  string
	File     string // WAV input for analyze
	Headless bool   // log loop instead of the terminal view
	JSON     bool   // analyze prints JSON lines
	Verbose  bool
	Config   *config.Config
}

// flagValues holds flags that override configuration file values.
type flagValues struct {
	configPath      string
	deviceID        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	record          bool
	outputDir       string
	udp             string
	websocket       string
}

// ParseArgs parses args (without the program name). Help and version
// output leave Command empty.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var flags flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       build.VersionString(),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandTune
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandList
			return nil
		},
	}
	rootCmd.AddCommand(listCmd)

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Detect notes in a WAV file block by block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandAnalyze
			options.File = args[0]
			return nil
		},
	}
	analyzeCmd.Flags().BoolVar(&options.JSON, "json", false, "Print one JSON object per block")
	rootCmd.AddCommand(analyzeCmd)

	// Configuration
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "",
		"Configuration file (default: tuner.yaml or config.yaml in the working directory)")

	// Audio Device Configuration
	pf.IntVarP(&flags.deviceID, "device", "d", config.MinDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", 44100,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", 4096,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	// Recording Configuration
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Record the input to a WAV file")
	pf.StringVarP(&flags.outputDir, "output-dir", "o", "./recordings",
		"Directory for recordings")

	// Transport Configuration
	pf.StringVar(&flags.udp, "udp", "", "Send detection packets to this host:port")
	pf.StringVar(&flags.websocket, "websocket", "", "Serve detections over WebSocket on this port")

	// Mode and Debug Configuration
	rootCmd.Flags().BoolVar(&options.Headless, "headless", false,
		"Log detections instead of showing the terminal tuner")
	pf.BoolVarP(&options.Verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI. A nil slice would make cobra fall back to os.Args.
	if args == nil {
		args = []string{}
	}
	rootCmd.SetArgs(args)
	executed, err := rootCmd.ExecuteC()
	if err != nil {
		return nil, err
	}
	if options.Command == CommandNone {
		return options, nil
	}

	cfg, err := loadConfig(executed, flags)
	if err != nil {
		return nil, err
	}
	options.Config = cfg
	return options, nil
}

// loadConfig reads the configuration file and applies the flags the user
// set explicitly.
func loadConfig(cmd *cobra.Command, flags flagValues) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("device") {
		cfg.Audio.InputDevice = flags.deviceID
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = flags.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = flags.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = flags.lowLatency
	}
	if changed("record") {
		cfg.Recording.Enabled = flags.record
	}
	if changed("output-dir") {
		cfg.Recording.OutputDir = flags.outputDir
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = flags.udp
	}
	if changed("websocket") {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketPort = flags.websocket
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}
