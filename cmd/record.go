package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-screenmux/internal/deps"
	"github.com/kartoza/kartoza-screenmux/internal/logging"
	"github.com/kartoza/kartoza-screenmux/internal/merger"
	"github.com/kartoza/kartoza-screenmux/internal/models"
	"github.com/kartoza/kartoza-screenmux/internal/notify"
	"github.com/kartoza/kartoza-screenmux/internal/permission"
	"github.com/kartoza/kartoza-screenmux/internal/platform"
	"github.com/kartoza/kartoza-screenmux/internal/session"
	"github.com/kartoza/kartoza-screenmux/internal/tui"
)

var (
	noTUI       bool
	noNotify    bool
	monitorName string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the screen and system audio",
	Long: `Start a capture session in the foreground.

Press q or Ctrl-C to stop capturing. The video and audio are then merged into
merged_<millis>.mp4 in the movies directory. Pressing Ctrl-C while merging
abandons the merge and keeps both intermediate files.

A session running in another terminal can be stopped with
'kartoza-screenmux stop'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd.Context())
	},
}

func addRecordFlags(c *cobra.Command) {
	c.Flags().BoolVar(&noTUI, "no-tui", false, "Log progress instead of showing the interactive view")
	c.Flags().BoolVar(&noNotify, "no-notify", false, "Disable desktop notifications")
	c.Flags().StringVarP(&monitorName, "monitor", "m", "", "Wayland output to mirror (default: monitor with cursor)")
}

func init() {
	addRecordFlags(recordCmd)
}

// recording is one wired session plus the pieces the front ends drive
type recording struct {
	session *session.Session
	merger  *merger.Merger
	events  *notify.Recorder
	// onState is set by the front end before Start
	onState func(models.SessionState)
}

func newRecording() *recording {
	r := &recording{events: notify.NewRecorder(8)}

	notifiers := notify.Multi{notify.Log{}, r.events}
	if cfg.Notifications && !noNotify {
		notifiers = append(notifiers, notify.Desktop{})
	}

	r.merger = merger.New(
		merger.FFmpeg{Path: cfg.FFmpegPath},
		merger.FFprobe{Path: cfg.FFprobePath},
		cfg.MoviesDir,
	)

	r.session = session.New(session.Options{
		Authorizer: platform.DesktopAuthorizer{
			Backend:     cfg.MirrorBackend,
			FFmpegPath:  cfg.FFmpegPath,
			AudioDevice: cfg.AudioDevice,
			Output:      monitorName,
		},
		Encoders:    platform.FFmpegEncoders{FFmpegPath: cfg.FFmpegPath},
		Permissions: permission.Desktop{Dirs: []string{cfg.MoviesDir, cfg.MusicDir}},
		Merger:      r.merger,
		Notifier:    notifiers,
		Registry:    session.NewRegistry(cfg.LockFile()),
		MoviesDir:   cfg.MoviesDir,
		MusicDir:    cfg.MusicDir,
		OnStateChange: func(state models.SessionState) {
			if r.onState != nil {
				r.onState(state)
			}
		},
	})
	return r
}

// cancelMerge abandons the running merge, if any
func (r *recording) cancelMerge() {
	if job := r.session.Job(); job != nil {
		job.Cancel()
	}
}

func runRecord(ctx context.Context) error {
	if missing := deps.MissingRequired(deps.DetectDisplayServer()); len(missing) > 0 {
		return errors.New(deps.FormatMissing(missing))
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	if !noTUI && isatty.IsTerminal(os.Stdout.Fd()) {
		return recordTUI(ctx)
	}
	return recordPlain(ctx)
}

func recordPlain(ctx context.Context) error {
	r := newRecording()
	r.onState = func(state models.SessionState) {
		log.Debug().Str(logging.KeyState, string(state)).Msg("Session state")
	}
	lastDecile := -1
	r.merger.SetPercentCallback(func(percent float64) {
		if d := int(percent) / 10; d != lastDecile {
			lastDecile = d
			log.Info().Float64("percent", percent).Msg("Merging")
		}
	})

	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := r.session.Start(ctx); err != nil {
		return err
	}
	fmt.Println("Recording... press Ctrl-C to stop")

	select {
	case <-sigCtx.Done():
	case <-r.session.Done():
	}
	stopSignals()

	// A second signal while merging cancels the merge
	mergeCtx, stopMergeSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopMergeSignals()

	out := r.session.Close(mergeCtx)
	if out.State == models.StateCompleted {
		fmt.Println(notify.BodySavedTo + out.Path)
	}
	return outcomeError(out)
}

func recordTUI(ctx context.Context) error {
	logFile, err := logging.InitFile(cfg.LogFormat, logLevel(), cfg.LogFile())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	r := newRecording()
	model := tui.NewRecordModel(tui.RecordOptions{
		Stop:       r.session.Stop,
		Cancel:     func() { go r.cancelMerge() },
		Events:     r.events.C(),
		Poster:     tui.KittySupported(),
		FFmpegPath: cfg.FFmpegPath,
	})

	// Signals are handled here so `stop` from another terminal works
	p := tea.NewProgram(model, tea.WithoutSignalHandler())
	r.onState = func(state models.SessionState) { p.Send(tui.StateMsg(state)) }
	r.merger.SetPercentCallback(func(percent float64) { p.Send(tui.PercentMsg(percent)) })

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			if r.session.State() == models.StateMerging {
				r.cancelMerge()
				continue
			}
			go r.session.Stop()
		}
	}()

	startErr := make(chan error, 1)
	go func() {
		err := r.session.Start(ctx)
		startErr <- err
		if err != nil {
			p.Send(tui.DoneMsg(session.Outcome{State: models.StateFailed, Err: err}))
			return
		}
		<-r.session.Done()
		p.Send(tui.DoneMsg(r.session.Outcome()))
	}()

	if _, err := p.Run(); err != nil {
		log.Error().Err(err).Msg("Recording view exited")
	}
	if err := <-startErr; err != nil {
		return err
	}
	// The view may exit early; the session is still finished cleanly
	return outcomeError(r.session.Close(context.Background()))
}

func outcomeError(out session.Outcome) error {
	if out.State != models.StateFailed {
		return nil
	}
	if out.Err == nil {
		return errors.New("recording failed")
	}
	return fmt.Errorf("recording failed: %w", out.Err)
}
