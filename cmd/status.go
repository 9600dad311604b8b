package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-screenmux/internal/session"
)

var jsonOutput bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recording status",
	Long:  `Display the state of the current capture session, its duration and intermediate files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := session.ReadStatus(cfg.LockFile())
		if err != nil {
			return err
		}

		if jsonOutput {
			data, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if !status.IsRecording {
			fmt.Println("Recording: INACTIVE")
			return nil
		}

		fmt.Printf("Recording: %s\n", status.State)
		if !status.StartTime.IsZero() {
			fmt.Printf("Duration:  %s\n", time.Since(status.StartTime).Round(time.Second))
		}
		fmt.Printf("PID:       %d\n", status.PID)
		fmt.Printf("Video:     %s\n", status.VideoFile)
		if status.AudioFile != "" {
			fmt.Printf("Audio:     %s\n", status.AudioFile)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
}
