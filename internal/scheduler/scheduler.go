// Package scheduler drives artifacts through the pipeline state machine and
// owns the windowing, throttling, and failure-isolation rules of a run.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/voicevault/voicevault/internal/artifact"
	"github.com/voicevault/voicevault/internal/classify"
	"github.com/voicevault/voicevault/internal/config"
	"github.com/voicevault/voicevault/internal/gateway"
	"github.com/voicevault/voicevault/internal/ledger"
	"github.com/voicevault/voicevault/internal/logging"
	"github.com/voicevault/voicevault/internal/monitor"
	"github.com/voicevault/voicevault/internal/publish"
	"github.com/voicevault/voicevault/internal/taxonomy"
	"github.com/voicevault/voicevault/internal/transcribe"
)

// Transcriber produces a transcript for one artifact.
type Transcriber interface {
	Transcribe(ctx context.Context, art artifact.Artifact) (transcribe.Transcript, error)
}

// Labeler assigns taxonomy labels to one transcript.
type Labeler interface {
	Classify(ctx context.Context, t transcribe.Transcript, tax *taxonomy.Taxonomy) (classify.Classification, error)
}

// Results is the optional persistent classification store. Satisfied by
// *classify.ResultStore.
type Results interface {
	Get(ctx context.Context, fingerprint string) (classify.Classification, bool, error)
	Put(ctx context.Context, c classify.Classification) error
}

// Invoker issues auxiliary model calls (summaries). Satisfied by
// *gateway.Gateway.
type Invoker interface {
	Invoke(ctx context.Context, op, model, input string) (string, error)
}

// Unit is the in-memory record of one artifact's passage through the run.
type Unit struct {
	Artifact       artifact.Artifact
	State          State
	Transcript     transcribe.Transcript
	Classification classify.Classification
	Tags           []string
	ExternalRef    string
	Err            error
}

// Report summarizes one scheduler run.
type Report struct {
	Units    []Unit
	Windowed int
	Skipped  int
	DryRun   bool
	Perf     monitor.Snapshot
}

// Scheduler runs the pipeline over a window of discovered artifacts.
type Scheduler struct {
	ledger      ledger.Ledger
	transcriber Transcriber
	labeler     Labeler
	results     Results
	publisher   publish.Publisher
	invoker     Invoker
	taxonomy    *taxonomy.Taxonomy
	collector   *monitor.Collector
	cfg         config.BatchConfig
	model       string
	log         *slog.Logger
}

// New wires a scheduler. results and invoker may be nil; without an invoker no
// summaries are generated.
func New(
	led ledger.Ledger,
	transcriber Transcriber,
	labeler Labeler,
	results Results,
	publisher publish.Publisher,
	invoker Invoker,
	tax *taxonomy.Taxonomy,
	collector *monitor.Collector,
	cfg config.BatchConfig,
	model string,
) *Scheduler {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	return &Scheduler{
		ledger:      led,
		transcriber: transcriber,
		labeler:     labeler,
		results:     results,
		publisher:   publisher,
		invoker:     invoker,
		taxonomy:    tax,
		collector:   collector,
		cfg:         cfg,
		model:       model,
		log:         logging.Component("scheduler"),
	}
}

// Window applies the selection rule: deterministic path order, ledgered
// fingerprints dropped, then start-from offset and max-files cap. The second
// return is the number dropped because their fingerprint is already ledgered.
func Window(arts []artifact.Artifact, ledgered func(string) bool, startFrom, maxFiles int) ([]artifact.Artifact, int) {
	ordered := append([]artifact.Artifact(nil), arts...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	pending := ordered[:0]
	skipped := 0
	for _, a := range ordered {
		if ledgered(a.Fingerprint) {
			skipped++
			continue
		}
		pending = append(pending, a)
	}

	if startFrom > len(pending) {
		startFrom = len(pending)
	}
	if startFrom > 0 {
		pending = pending[startFrom:]
	}
	if maxFiles > 0 && len(pending) > maxFiles {
		pending = pending[:maxFiles]
	}
	return pending, skipped
}

// Run processes the window and returns the run report. The error return is
// non-nil only for run-fatal conditions: context cancellation or a quota
// failure from the model gateway. Per-unit failures are reported, not
// returned.
func (s *Scheduler) Run(ctx context.Context, arts []artifact.Artifact) (Report, error) {
	window, skipped := Window(arts, s.ledger.Exists, s.cfg.StartFrom, s.cfg.MaxFiles)
	for i := 0; i < skipped; i++ {
		s.collector.RecordOutcome(monitor.OutcomeSkipped)
		if m := monitor.Get(); m != nil {
			m.ArtifactsSkipped.Inc()
		}
	}

	report := Report{
		Windowed: len(window),
		Skipped:  skipped,
		DryRun:   s.cfg.DryRun,
	}
	s.log.Info("run starting",
		"discovered", len(arts),
		"skipped_ledgered", skipped,
		"windowed", len(window),
		"batch_size", s.cfg.BatchSize,
		"dry_run", s.cfg.DryRun,
	)

	var fatal error
	for start := 0; start < len(window) && fatal == nil; start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(window) {
			end = len(window)
		}

		if start > 0 && s.cfg.BatchDelay > 0 {
			s.log.Info("pausing between sub-groups", "delay", s.cfg.BatchDelay.String())
			select {
			case <-ctx.Done():
				fatal = ctx.Err()
			case <-time.After(s.cfg.BatchDelay):
			}
			if fatal != nil {
				break
			}
		}

		for _, art := range window[start:end] {
			unit := s.process(ctx, art)
			report.Units = append(report.Units, unit)
			s.record(unit)

			if unit.Err != nil && (gateway.IsQuota(unit.Err) || ctx.Err() != nil) {
				// Quota exhaustion or cancellation: halt dispatch. Committed
				// ledger state is untouched; unledgered units retry next run.
				fatal = unit.Err
				break
			}
		}
	}

	report.Perf = s.collector.Snapshot()
	s.log.Info("run finished",
		"processed", len(report.Units),
		"succeeded", report.Perf.Succeeded,
		"failed", report.Perf.Failed,
		"skipped", report.Perf.Skipped,
		"elapsed", report.Perf.Elapsed.String(),
	)
	if fatal != nil {
		return report, fmt.Errorf("run halted: %w", fatal)
	}
	return report, nil
}

// process advances one artifact through the state machine. All failures end in
// StateFailed with Err set; callers decide whether the error is run-fatal.
func (s *Scheduler) process(ctx context.Context, art artifact.Artifact) Unit {
	unit := Unit{Artifact: art, State: StateNew}
	log := logging.ArtifactLogger(logging.RunID(ctx), art.Fingerprint, art.Path)
	started := time.Now()
	defer func() {
		s.collector.RecordArtifactTime(time.Since(started))
	}()

	s.advance(&unit, StateTranscribing)
	stageStart := time.Now()
	t, err := s.transcriber.Transcribe(ctx, art)
	if m := monitor.Get(); m != nil {
		m.TranscribeDuration.Observe(time.Since(stageStart).Seconds())
	}
	if err != nil {
		return s.fail(&unit, log, fmt.Errorf("transcribe: %w", err))
	}
	unit.Transcript = t
	if t.Empty() {
		// Nothing usable was recovered; leave the artifact unledgered so a
		// later run retries it.
		return s.fail(&unit, log, fmt.Errorf("transcribe: empty transcript"))
	}
	if t.Incomplete {
		log.Warn("accepting incomplete transcript", "failed_chunks", len(t.FailedChunks))
	}
	s.advance(&unit, StateTranscribed)

	s.advance(&unit, StateClassifying)
	stageStart = time.Now()
	c, reused, err := s.classify(ctx, unit.Transcript)
	if m := monitor.Get(); m != nil {
		m.ClassifyDuration.Observe(time.Since(stageStart).Seconds())
	}
	if err != nil {
		return s.fail(&unit, log, fmt.Errorf("classify: %w", err))
	}
	unit.Classification = c
	if reused {
		log.Info("reusing stored classification", "taxonomy_version", c.TaxonomyVersion)
	}
	s.advance(&unit, StateClassified)

	s.advance(&unit, StatePublishing)
	rec := publish.Record{
		Fingerprint:     art.Fingerprint,
		FileName:        art.Name(),
		Transcript:      unit.Transcript.Text,
		Incomplete:      unit.Transcript.Incomplete,
		DurationSeconds: art.Duration.Seconds(),
	}
	rec.Title = publish.DeriveTitle(art.Name(), unit.Transcript.Text)
	rec.FromClassification(unit.Classification)
	if summary, err := s.summarize(ctx, unit.Transcript.Text); err != nil {
		log.Warn("summary generation failed, publishing without one", "error", err)
	} else {
		rec.Summary = summary
	}
	if tags, err := s.tag(ctx, unit.Transcript.Text); err != nil {
		log.Warn("tag generation failed, publishing without tags", "error", err)
	} else {
		unit.Tags = tags
		rec.Tags = tags
	}

	publisher := s.publisher
	if s.cfg.DryRun {
		publisher = publish.NopPublisher{}
	}
	stageStart = time.Now()
	ref, err := publisher.Publish(ctx, rec)
	if m := monitor.Get(); m != nil {
		m.PublishDuration.Observe(time.Since(stageStart).Seconds())
	}
	if err != nil {
		return s.fail(&unit, log, fmt.Errorf("publish: %w", err))
	}
	unit.ExternalRef = ref

	if !s.cfg.DryRun {
		if err := s.ledger.Commit(ctx, art.Fingerprint, ref); err != nil {
			// Published but uncommitted: the next run republishes, which the
			// document store absorbs by fingerprint key.
			return s.fail(&unit, log, fmt.Errorf("ledger commit: %w", err))
		}
	}
	s.advance(&unit, StateDone)
	log.Info("artifact done", "ref", ref, "incomplete", unit.Transcript.Incomplete)
	return unit
}

// classify returns a stored classification when one exists for the current
// taxonomy version, otherwise calls the labeler and stores the result.
func (s *Scheduler) classify(ctx context.Context, t transcribe.Transcript) (classify.Classification, bool, error) {
	if s.results != nil {
		stored, ok, err := s.results.Get(ctx, t.ArtifactFingerprint)
		if err != nil {
			s.log.Warn("result store read failed", "error", err)
		} else if ok && stored.TaxonomyVersion == s.taxonomy.Version {
			return stored, true, nil
		}
	}

	c, err := s.labeler.Classify(ctx, t, s.taxonomy)
	if err != nil {
		return classify.Classification{}, false, err
	}

	if s.results != nil && !s.cfg.DryRun {
		if err := s.results.Put(ctx, c); err != nil {
			s.log.Warn("result store write failed", "error", err)
		}
	}
	return c, false, nil
}

// summarize asks the gateway for a short summary. Optional: a nil invoker or
// any failure publishes the record without a summary.
func (s *Scheduler) summarize(ctx context.Context, text string) (string, error) {
	if s.invoker == nil || text == "" {
		return "", nil
	}
	prompt := "Summarize this voice memo transcript in 2-3 sentences:\n\n" + text
	return s.invoker.Invoke(ctx, "summarize", s.model, prompt)
}

// tag asks the gateway for freeform descriptive tags. These feed the published
// record and, over time, the taxonomy builder's corpus.
func (s *Scheduler) tag(ctx context.Context, text string) ([]string, error) {
	if s.invoker == nil || text == "" {
		return nil, nil
	}
	prompt := "List up to 20 short descriptive tags (1-3 words each, Title Case) " +
		"for this voice memo transcript. Respond with only a comma-separated list.\n\n" + text
	raw, err := s.invoker.Invoke(ctx, "tag", s.model, prompt)
	if err != nil {
		return nil, err
	}

	var tags []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" || strings.ContainsAny(t, "\n{}") {
			continue
		}
		tags = append(tags, t)
		if len(tags) == 20 {
			break
		}
	}
	return tags, nil
}

// advance moves a unit forward, panicking on an illegal transition. The
// transition table is fixed at compile time, so a panic here is a programming
// error, not an input condition.
func (s *Scheduler) advance(unit *Unit, to State) {
	if !CanTransition(unit.State, to) {
		panic(fmt.Sprintf("illegal transition %s -> %s", unit.State, to))
	}
	unit.State = to
}

func (s *Scheduler) fail(unit *Unit, log *slog.Logger, err error) Unit {
	unit.Err = err
	s.advance(unit, StateFailed)
	log.Error("artifact failed", "state", unit.State.String(), "error", err)
	return *unit
}

func (s *Scheduler) record(unit Unit) {
	var outcome monitor.Outcome
	switch unit.State {
	case StateDone:
		outcome = monitor.OutcomeDone
	default:
		outcome = monitor.OutcomeFailed
	}
	s.collector.RecordOutcome(outcome)
	if m := monitor.Get(); m != nil {
		m.ArtifactsProcessed.WithLabelValues(string(outcome)).Inc()
	}
}
