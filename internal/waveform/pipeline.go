package waveform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/captionhub/internal/events"
	"github.com/snarg/captionhub/internal/media"
)

var (
	// ErrTranscode means a process failed or left no usable artifact.
	ErrTranscode = errors.New("transcode failed")
	// ErrPersistence means the result could not be stored.
	ErrPersistence = errors.New("persisting waveform failed")
	// ErrInterrupted means the run was cancelled before it could finish,
	// typically at shutdown. Interrupted videos stay pending and are
	// requeued by the Reconciler.
	ErrInterrupted = errors.New("ingestion interrupted")
)

// Pipeline steps, used in StepError and as metric labels.
const (
	StepResolve   = "resolve"
	StepTranscode = "transcode"
	StepRead      = "read"
	StepPersist   = "persist"
)

// StepError records which step of a run failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }
func (e *StepError) Unwrap() error { return e.Err }

// Store persists ingestion output keyed by the external video identifier.
// SetVideoWaveform returns the duration actually stored, which differs from
// the argument when another run got there first.
type Store interface {
	SetVideoWaveform(ctx context.Context, identifier string, durationMs int, waveform []byte) (int, error)
	MarkVideoFailed(ctx context.Context, identifier string) error
}

// Publisher receives the completion event.
type Publisher interface {
	Publish(e events.EventData) bool
}

// Job asks for the waveform of Video on behalf of ProjectID.
type Job struct {
	ProjectID int64
	Video     string
}

// PipelineOptions wires a Pipeline.
type PipelineOptions struct {
	Source    media.Source
	Extractor Extractor
	Store     Store
	Bus       Publisher
	TmpDir    string
	Log       zerolog.Logger
}

// Pipeline resolves, transcodes and stores one video's waveform per Run.
// Runs share no mutable state and may execute concurrently.
type Pipeline struct {
	source  media.Source
	extract Extractor
	store   Store
	bus     Publisher
	tmpDir  string
	log     zerolog.Logger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	tmp := opts.TmpDir
	if tmp == "" {
		tmp = os.TempDir()
	}
	return &Pipeline{
		source:  opts.Source,
		extract: opts.Extractor,
		store:   opts.Store,
		bus:     opts.Bus,
		tmpDir:  tmp,
		log:     opts.Log,
	}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ArtifactPath returns the temporary artifact location for a job. The name
// is derived from the video identifier and the project, so two projects
// ingesting the same video never share a file.
func ArtifactPath(dir string, job Job) string {
	name := unsafeName.ReplaceAllString(job.Video, "_")
	return filepath.Join(dir, "captionhub-waveform-"+name+"-"+strconv.FormatInt(job.ProjectID, 10)+".dat")
}

// Run executes every step for job. On any failure nothing is published and
// the video stays not ready. A step failure is recorded on the video so it
// is not retried; a cancelled run is reported as ErrInterrupted and left
// pending. The artifact is removed on every path.
func (p *Pipeline) Run(ctx context.Context, job Job) error {
	log := p.log.With().Str("video", job.Video).Int64("project_id", job.ProjectID).Logger()

	err := p.run(ctx, log, job)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return errors.Join(ErrInterrupted, err)
	}

	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if merr := p.store.MarkVideoFailed(mctx, job.Video); merr != nil {
		log.Warn().Err(merr).Msg("failed to record ingestion failure")
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, log zerolog.Logger, job Job) error {
	start := time.Now()

	stream, err := p.source.BestAudioStream(ctx, job.Video)
	if err != nil {
		return &StepError{Step: StepResolve, Err: err}
	}
	log.Debug().
		Float64("bitrate", stream.Bitrate).
		Int("sample_rate", stream.SampleRate).
		Msg("audio stream resolved")

	artifact := ArtifactPath(p.tmpDir, job)
	defer func() {
		if err := os.Remove(artifact); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", artifact).Msg("failed to remove waveform artifact")
		}
	}()

	if err := p.extract.Extract(ctx, stream.URL, artifact); err != nil {
		if !errors.Is(err, ErrTranscode) {
			err = fmt.Errorf("%w: %v", ErrTranscode, err)
		}
		return &StepError{Step: StepTranscode, Err: err}
	}

	data, err := os.ReadFile(artifact)
	if err != nil {
		return &StepError{Step: StepRead, Err: fmt.Errorf("%w: read artifact: %v", ErrTranscode, err)}
	}
	hdr, err := ParseDatHeader(data)
	if err != nil {
		return &StepError{Step: StepRead, Err: fmt.Errorf("%w: %v", ErrTranscode, err)}
	}

	durationMs := stream.DurationMs
	if durationMs <= 0 {
		durationMs = hdr.DurationMs()
	}
	if durationMs <= 0 {
		return &StepError{Step: StepRead, Err: fmt.Errorf("%w: zero duration", ErrTranscode)}
	}

	durationMs, err = p.store.SetVideoWaveform(ctx, job.Video, durationMs, data)
	if err != nil {
		return &StepError{Step: StepPersist, Err: fmt.Errorf("%w: %v", ErrPersistence, err)}
	}

	p.bus.Publish(events.WaveformReady(job.ProjectID, job.Video, durationMs))

	log.Info().
		Int("duration_ms", durationMs).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("waveform ready")
	return nil
}
