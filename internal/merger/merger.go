// Package merger muxes a finished video sink and a raw PCM audio sink into a
// single MP4, asynchronously.
package merger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kartoza/kartoza-screenmux/internal/logging"
	"github.com/kartoza/kartoza-screenmux/internal/models"
)

// MergedPrefix names merged outputs: merged_<epoch-ms>.mp4
const MergedPrefix = "merged_"

// PercentCallback is called to report progress percentage during a merge
type PercentCallback func(percent float64)

// Merger runs merge jobs against one output directory
type Merger struct {
	engine    Engine
	prober    Prober
	outputDir string
	format    models.AudioTrack
	now       func() time.Time

	mu        sync.Mutex
	onPercent PercentCallback
	claimed   map[string]bool
}

// New creates a Merger writing into outputDir. prober may be nil, in which
// case progress is not reported as a percentage.
func New(engine Engine, prober Prober, outputDir string) *Merger {
	return &Merger{
		engine:    engine,
		prober:    prober,
		outputDir: outputDir,
		format:    models.DefaultAudioTrack(),
		now:       time.Now,
	}
}

// SetPercentCallback sets the callback for percentage progress updates
func (m *Merger) SetPercentCallback(cb PercentCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPercent = cb
}

func (m *Merger) reportPercent(percent float64) {
	m.mu.Lock()
	cb := m.onPercent
	m.mu.Unlock()
	if cb != nil {
		cb(percent)
	}
}

// OutputPath returns a fresh merged file path. A name already on disk or
// claimed by a running job gets a numeric suffix.
func (m *Merger) OutputPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	stamp := strconv.FormatInt(m.now().UnixMilli(), 10)
	for i := 0; ; i++ {
		name := stamp
		if i > 0 {
			name = fmt.Sprintf("%s_%d", stamp, i)
		}
		path := filepath.Join(m.outputDir, MergedPrefix+name+".mp4")
		if m.claimed[path] || fileExists(path) {
			continue
		}
		if m.claimed == nil {
			m.claimed = map[string]bool{}
		}
		m.claimed[path] = true
		return path
	}
}

func (m *Merger) unclaim(path string) {
	m.mu.Lock()
	delete(m.claimed, path)
	m.mu.Unlock()
}

// Args returns the engine arguments: video copied, raw PCM encoded to AAC,
// output cut to the shorter stream
func Args(videoFile, audioFile, outputFile string, format models.AudioTrack) []string {
	return []string{
		"-y",
		"-i", videoFile,
		"-f", format.Format,
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.ChannelCount),
		"-i", audioFile,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		outputFile,
	}
}

// Result is the typed outcome of a merge job
type Result struct {
	Status      models.MergeStatus `json:"status"`
	Path        string             `json:"path,omitempty"`
	Diagnostics string             `json:"diagnostics,omitempty"`
	Err         error              `json:"-"`
}

// Job is a running merge. Observe completion through Done.
type Job struct {
	VideoFile  string
	AudioFile  string
	OutputFile string

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status models.MergeStatus
	result Result
}

// Done is closed when the job reaches a final status
func (j *Job) Done() <-chan struct{} { return j.done }

// Status returns the current status
func (j *Job) Status() models.MergeStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Result blocks until the job is final and returns its outcome
func (j *Job) Result() Result {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Cancel interrupts the engine. The job resolves as Cancelled unless it
// already finished.
func (j *Job) Cancel() { j.cancel() }

func (j *Job) setStatus(s models.MergeStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
}

func (j *Job) finish(r Result) {
	j.mu.Lock()
	j.status = r.Status
	j.result = r
	j.mu.Unlock()
	close(j.done)
}

// Merge starts a job combining videoFile and audioFile and returns
// immediately. The inputs are never modified; a partial output is removed on
// failure or cancellation.
func (m *Merger) Merge(ctx context.Context, videoFile, audioFile string) *Job {
	ctx, cancel := context.WithCancel(ctx)
	job := &Job{
		VideoFile:  videoFile,
		AudioFile:  audioFile,
		OutputFile: m.OutputPath(),
		cancel:     cancel,
		done:       make(chan struct{}),
		status:     models.MergePending,
	}

	go func() {
		defer cancel()
		defer m.unclaim(job.OutputFile)
		job.finish(m.run(ctx, job))
	}()

	return job
}

func (m *Merger) run(ctx context.Context, job *Job) Result {
	logger := logging.Component("merger").With().
		Str("video", job.VideoFile).
		Str("audio", job.AudioFile).
		Str(logging.KeyPath, job.OutputFile).
		Logger()

	for _, in := range []string{job.VideoFile, job.AudioFile} {
		if !fileExists(in) {
			return failed(fmt.Errorf("input not found: %s", in), "")
		}
	}
	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return failed(fmt.Errorf("failed to create output directory: %w", err), "")
	}

	job.setStatus(models.MergeRunning)
	logger.Info().Msg("Merging video and audio")

	var durationUs int64
	if m.prober != nil {
		if info, err := m.prober.Probe(ctx, job.VideoFile); err == nil {
			durationUs = info.Duration.Microseconds()
		} else {
			logger.Debug().Err(err).Msg("Could not probe video duration")
		}
	}

	m.reportPercent(0)
	onProgress := func(timeUs int64) {
		if durationUs <= 0 {
			return
		}
		m.reportPercent(min(float64(timeUs)/float64(durationUs)*100, 100))
	}

	diagnostics, err := m.engine.Run(ctx, Args(job.VideoFile, job.AudioFile, job.OutputFile, m.format), onProgress)
	if err == nil && !nonEmpty(job.OutputFile) {
		err = errors.New("engine produced no output")
	}
	if err != nil {
		removePartial(job.OutputFile)
		if ctx.Err() != nil || errors.Is(err, ErrEngineInterrupted) {
			logger.Warn().Msg("Merge cancelled")
			return Result{
				Status:      models.MergeCancelled,
				Diagnostics: diagnostics,
				Err:         models.NewError(models.ErrMergeCancelled, models.SourceMerge, err),
			}
		}
		logger.Error().Err(err).Str("diagnostics", diagnostics).Msg("Merge failed")
		return failed(err, diagnostics)
	}

	m.reportPercent(100)
	logger.Info().Msg("Merge complete")
	return Result{Status: models.MergeSucceeded, Path: job.OutputFile, Diagnostics: diagnostics}
}

func failed(err error, diagnostics string) Result {
	return Result{
		Status:      models.MergeFailed,
		Diagnostics: diagnostics,
		Err:         models.NewError(models.ErrMergeFailed, models.SourceMerge, err),
	}
}

func removePartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str(logging.KeyPath, path).Msg("Failed to remove partial merge output")
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

func nonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
