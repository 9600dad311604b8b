package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/kartoza/kartoza-screenmux/internal/session"
)

var (
	stopWait    bool
	stopTimeout time.Duration
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running recording",
	Long: `Ask the recording process found through the session lock file to stop.

The process receives SIGINT, tears down capture and merges the result.
With --wait the command returns once the session has finished.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := session.ReadStatus(cfg.LockFile())
		if err != nil {
			return err
		}
		if !status.IsRecording || status.PID == 0 {
			return fmt.Errorf("no recording in progress")
		}

		if err := unix.Kill(status.PID, unix.SIGINT); err != nil {
			return fmt.Errorf("failed to signal recording process %d: %w", status.PID, err)
		}
		fmt.Println("Stopping recording...")

		if !stopWait {
			return nil
		}

		deadline := time.Now().Add(stopTimeout)
		for time.Now().Before(deadline) {
			time.Sleep(200 * time.Millisecond)
			if sessionFinished(cfg.LockFile(), status.SessionID) {
				fmt.Println("Recording finished")
				return nil
			}
		}
		return fmt.Errorf("recording process %d still running after %s", status.PID, stopTimeout)
	},
}

// sessionFinished reports whether the session id no longer owns the lock.
// Merging still holds it.
func sessionFinished(lockPath, id string) bool {
	status, err := session.ReadStatus(lockPath)
	return err == nil && status.SessionID != id
}

func init() {
	stopCmd.Flags().BoolVarP(&stopWait, "wait", "w", false, "Wait for the session to finish")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 30*time.Second, "How long --wait waits")
}
