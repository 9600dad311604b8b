package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-screenmux/internal/audio"
	"github.com/kartoza/kartoza-screenmux/internal/models"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <audio.pcm> [output.wav]",
	Short: "Wrap a left over PCM audio file in a WAV header",
	Long: `When a merge fails the raw audio_record_<timestamp>.pcm file is kept in the
music directory. It has no header, so most players cannot open it.

recover writes a WAV file next to it (or to the given path) that can be played
or imported into an editor together with the kept ScreenRecording file.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pcm := args[0]
		wav := strings.TrimSuffix(pcm, filepath.Ext(pcm)) + ".wav"
		if len(args) == 2 {
			wav = args[1]
		}
		if filepath.Clean(wav) == filepath.Clean(pcm) {
			return fmt.Errorf("output would overwrite %s", pcm)
		}

		format := models.DefaultAudioTrack()
		frames, err := audio.ExportWAV(pcm, wav, format)
		if err != nil {
			return fmt.Errorf("failed to recover %s: %w", pcm, err)
		}

		duration := format.Duration(frames * int64(format.FrameSize())).Round(time.Millisecond)
		fmt.Printf("Wrote %s (%d frames, %s)\n", wav, frames, duration)
		return nil
	},
}
