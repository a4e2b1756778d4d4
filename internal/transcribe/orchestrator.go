package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/voicevault/voicevault/internal/artifact"
	"github.com/voicevault/voicevault/internal/monitor"
)

// Transcript is the output of one transcription pass. It is owned by the
// pipeline run for that artifact and not persisted beyond it except through
// the published result.
type Transcript struct {
	ArtifactFingerprint string
	Text                string
	Duration            time.Duration
	ChunkCount          int
	EngineUsed          string
	Incomplete          bool
	FailedChunks        []int
}

// Empty reports whether no text at all was recovered.
func (t Transcript) Empty() bool {
	return t.Text == ""
}

// Options configures the orchestrator.
type Options struct {
	LongThreshold time.Duration
	ChunkLength   time.Duration
	ChunkOverlap  time.Duration
	ChunkRetries  int
	RetryDelay    time.Duration
}

// Orchestrator routes artifacts to an engine and manages chunking for long
// media.
type Orchestrator struct {
	short  Engine
	long   Engine
	slicer Slicer
	opts   Options
	log    *slog.Logger
}

// New creates an orchestrator. slicer may be nil, in which case the
// proportional byte slicer is used.
func New(short, long Engine, slicer Slicer, opts Options) *Orchestrator {
	if opts.LongThreshold <= 0 {
		opts.LongThreshold = 15 * time.Minute
	}
	if opts.ChunkLength <= 0 {
		opts.ChunkLength = 10 * time.Minute
	}
	if opts.ChunkRetries < 1 {
		opts.ChunkRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if slicer == nil {
		slicer = ProportionalSlicer{}
	}
	return &Orchestrator{
		short:  short,
		long:   long,
		slicer: slicer,
		opts:   opts,
		log:    slog.With("component", "transcribe"),
	}
}

// Transcribe produces a transcript for the artifact. Failures degrade rather
// than abort: unreadable input or exhausted chunk retries yield an Incomplete
// transcript carrying whatever text was recovered, and the error return is
// reserved for context cancellation.
func (o *Orchestrator) Transcribe(ctx context.Context, art artifact.Artifact) (Transcript, error) {
	log := o.log.With("artifact", art.Name(), "duration", art.Duration.String())

	t := Transcript{
		ArtifactFingerprint: art.Fingerprint,
		Duration:            art.Duration,
	}

	audio, err := art.Bytes()
	if err != nil || len(audio) == 0 {
		// Malformed/corrupt input: flagged for review, never silently
		// dropped and never fatal for the run.
		log.Warn("unreadable artifact, producing incomplete transcript", "error", err)
		t.Incomplete = true
		return t, nil
	}

	switch Select(art.Duration, o.opts.LongThreshold) {
	case SelectShort:
		return o.transcribeShort(ctx, audio, t, log)
	default:
		return o.transcribeLong(ctx, audio, t, log)
	}
}

func (o *Orchestrator) transcribeShort(ctx context.Context, audio []byte, t Transcript, log *slog.Logger) (Transcript, error) {
	t.EngineUsed = o.short.Name()
	t.ChunkCount = 1

	text, err := o.callEngine(ctx, o.short, audio)
	if err != nil {
		if ctx.Err() != nil {
			return t, ctx.Err()
		}
		log.Warn("short engine failed after retries", "error", err)
		t.Incomplete = true
		return t, nil
	}

	t.Text = text
	log.Info("transcribed", "engine", t.EngineUsed, "chars", len(t.Text))
	return t, nil
}

func (o *Orchestrator) transcribeLong(ctx context.Context, audio []byte, t Transcript, log *slog.Logger) (Transcript, error) {
	t.EngineUsed = o.long.Name()

	windows := Windows(t.Duration, o.opts.ChunkLength, o.opts.ChunkOverlap)
	t.ChunkCount = len(windows)
	log.Info("long media detected, chunking", "chunks", len(windows))

	chunkTexts := make([]string, 0, len(windows))
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return t, err
		}

		piece, err := o.slicer.Slice(audio, t.Duration, w)
		if err != nil {
			log.Warn("chunk slice failed", "chunk", w.Index, "error", err)
			t.FailedChunks = append(t.FailedChunks, w.Index)
			continue
		}

		text, err := o.callEngine(ctx, o.long, piece)
		if err != nil {
			if ctx.Err() != nil {
				return t, ctx.Err()
			}
			log.Warn("chunk failed after retries", "chunk", w.Index, "error", err)
			t.FailedChunks = append(t.FailedChunks, w.Index)
			if m := monitor.Get(); m != nil {
				m.ChunksFailed.Inc()
			}
			continue
		}

		if m := monitor.Get(); m != nil {
			m.ChunksTranscribed.Inc()
		}
		chunkTexts = append(chunkTexts, text)
	}

	t.Text = Stitch(chunkTexts)
	t.Incomplete = len(t.FailedChunks) > 0
	log.Info("stitched transcript",
		"engine", t.EngineUsed,
		"chunks_ok", len(chunkTexts),
		"chunks_failed", len(t.FailedChunks),
		"chars", len(t.Text),
	)
	return t, nil
}

// callEngine runs one engine call under the chunk retry policy.
func (o *Orchestrator) callEngine(ctx context.Context, engine Engine, audio []byte) (string, error) {
	var out string

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.opts.RetryDelay
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(o.opts.ChunkRetries-1)), ctx)

	operation := func() error {
		text, err := engine.Transcribe(ctx, audio)
		if err != nil {
			if m := monitor.Get(); m != nil {
				m.RetryAttempts.WithLabelValues("transcribe").Inc()
			}
			return fmt.Errorf("engine %s: %w", engine.Name(), err)
		}
		out = text
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return out, nil
}
