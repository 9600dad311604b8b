package tui

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/blacktop/go-termimg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nfnt/resize"
)

// PosterWidth is the poster width in terminal cells
const PosterWidth = 20

// PosterMsg carries the rendered still of a finished recording
type PosterMsg struct {
	Rendered string
	Err      error
}

// KittySupported reports whether the terminal can show inline images
func KittySupported() bool {
	if os.Getenv("KITTY_WINDOW_ID") != "" {
		return true
	}
	if strings.Contains(os.Getenv("TERM"), "kitty") || os.Getenv("TERM_PROGRAM") == "kitty" {
		return true
	}
	return termimg.DetectProtocol() == termimg.Kitty
}

// extractFrame returns the first frame of videoPath as PNG; replaced in tests
var extractFrame = func(ctx context.Context, ffmpegPath, videoPath string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-v", "error",
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("extract frame: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// RenderPoster scales img to widthCells columns and renders it with the
// Kitty graphics protocol
func RenderPoster(img image.Image, widthCells int) (string, error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return "", fmt.Errorf("empty image")
	}

	// Terminal cells are roughly twice as tall as wide
	aspect := float64(bounds.Dx()) / float64(bounds.Dy())
	heightCells := int(float64(widthCells) / aspect / 2.0)
	if heightCells < 1 {
		heightCells = 1
	}

	resized := resize.Resize(uint(widthCells*8), 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return "", fmt.Errorf("encode poster: %w", err)
	}

	ti, err := termimg.From(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", fmt.Errorf("load poster: %w", err)
	}
	ti.Protocol(termimg.Kitty).
		Width(widthCells).
		Height(heightCells).
		Scale(termimg.ScaleFit)

	return ti.Render()
}

func posterCmd(ffmpegPath, videoPath string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data, err := extractFrame(ctx, ffmpegPath, videoPath)
		if err != nil {
			return PosterMsg{Err: err}
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return PosterMsg{Err: fmt.Errorf("decode frame: %w", err)}
		}
		rendered, err := RenderPoster(img, PosterWidth)
		return PosterMsg{Rendered: rendered, Err: err}
	}
}
