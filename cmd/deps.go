package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-screenmux/internal/deps"
	"github.com/kartoza/kartoza-screenmux/internal/permission"
	"github.com/kartoza/kartoza-screenmux/internal/tui"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Check external programs and capture permissions",
	Long: `Check that the programs the capture pipeline runs are installed, that the
system audio can be tapped and that the output directories are writable.`,
	Run: func(cmd *cobra.Command, args []string) {
		server := deps.DetectDisplayServer()
		required, optional := deps.CheckAll(server)

		green := lipgloss.NewStyle().Foreground(tui.ColorGreen)
		red := lipgloss.NewStyle().Foreground(tui.ColorRed)
		gray := lipgloss.NewStyle().Foreground(tui.ColorGray)
		blue := lipgloss.NewStyle().Foreground(tui.ColorBlue)
		bold := lipgloss.NewStyle().Bold(true)

		mark := func(ok, required bool) string {
			switch {
			case ok:
				return green.Render("✓")
			case required:
				return red.Render("✗")
			}
			return gray.Render("○")
		}

		fmt.Println()
		fmt.Printf("%s %s\n\n", bold.Render("Display Server:"), blue.Render(deps.GetDisplayServerName()))

		switch server {
		case deps.DisplayServerWayland:
			fmt.Printf("%s wf-recorder (Wayland native)\n\n", gray.Render("Screen mirror:"))
		case deps.DisplayServerX11:
			fmt.Printf("%s ffmpeg x11grab (X11)\n\n", gray.Render("Screen mirror:"))
		default:
			fmt.Printf("%s no display server detected\n\n", gray.Render("Screen mirror:"))
		}

		printResults := func(title string, results []deps.CheckResult) {
			fmt.Println(bold.Render(title))
			fmt.Println()
			for _, r := range results {
				fmt.Printf("  %s %s\n", mark(r.Available, r.Dependency.Required), bold.Render(r.Dependency.Name))
				fmt.Printf("    %s\n", gray.Render(r.Dependency.Description))
				if r.Available {
					fmt.Printf("    Path: %s\n", r.Path)
				}
				fmt.Println()
			}
		}
		printResults("Capture Dependencies:", required)
		printResults("Optional Dependencies:", optional)

		perms := permission.Desktop{Dirs: []string{cfg.MoviesDir, cfg.MusicDir}}
		fmt.Println(bold.Render("Permissions:"))
		fmt.Println()
		fmt.Printf("  %s system audio capture\n", mark(perms.AudioCapture(), false))
		if !perms.AudioCapture() {
			fmt.Printf("    %s\n", gray.Render("recordings will have video only"))
		}
		fmt.Printf("  %s write %s, %s\n\n", mark(perms.Storage(), true), cfg.MoviesDir, cfg.MusicDir)

		if missing := deps.MissingRequired(server); len(missing) == 0 && perms.Storage() {
			fmt.Println(green.Render("Ready to record."))
		} else {
			fmt.Println(red.Render("Some requirements are missing."))
			fmt.Println("Please install them before recording.")
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(depsCmd)
}
