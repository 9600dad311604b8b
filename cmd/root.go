package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-screenmux/internal/config"
	"github.com/kartoza/kartoza-screenmux/internal/logging"
)

var (
	version   = "dev"
	debugMode bool
	configDir string

	// cfg is loaded before any subcommand runs
	cfg *config.Config
)

// SetVersion sets the application version (called from main)
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "kartoza-screenmux",
	Short: "Record the screen and system audio into a single video",
	Long: `Kartoza Screen Mux records a portrait mirror of the desktop together
with the system audio playing at the time, then muxes both into one MP4.

Intermediate files:
  - ScreenRecording_<timestamp>.mp4 in the movies directory
  - audio_record_<timestamp>.pcm (16-bit stereo 44.1 kHz) in the music directory

Both are removed once the merged file merged_<millis>.mp4 has been written.
If the merge fails they are kept so nothing is lost.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir := configDir
		if dir == "" {
			dir = config.GetConfigDir()
		}
		loaded, err := config.LoadFrom(dir)
		if err != nil {
			return err
		}
		cfg = loaded

		logging.Init(cfg.LogFormat, logLevel(), os.Stderr)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default action: record in the foreground
		return runRecord(cmd.Context())
	},
}

// logLevel is the configured level, raised to debug by --debug
func logLevel() string {
	if debugMode {
		return "debug"
	}
	return cfg.LogLevel
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default: ~/.config/kartoza-screenmux)")
	addRecordFlags(rootCmd)

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(monitorsCmd)
}
