package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-screenmux/internal/monitor"
)

var monitorsJSONOutput bool

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "List Hyprland outputs that can be mirrored",
	Long: `List the outputs reported by hyprctl. On Wayland the recorder mirrors the
output holding the cursor unless --monitor names another one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		monitors, err := monitor.ListMonitors()
		if err != nil {
			return fmt.Errorf("failed to list monitors: %w", err)
		}

		if monitorsJSONOutput {
			data, err := json.MarshalIndent(monitors, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		var cursor string
		if pos, err := monitor.GetCursorPosition(); err == nil {
			cursor, _ = monitor.Pick(monitors, &pos)
		}

		for _, m := range monitors {
			var marks string
			if m.Name == cursor {
				marks += " (cursor)"
			}
			if m.Portrait() {
				marks += " (portrait)"
			}
			fmt.Printf("%s: %dx%d at (%d,%d)%s\n", m.Name, m.Width, m.Height, m.X, m.Y, marks)
		}
		return nil
	},
}

func init() {
	monitorsCmd.Flags().BoolVar(&monitorsJSONOutput, "json", false, "Output monitors as JSON")
}
