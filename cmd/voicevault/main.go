package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voicevault/voicevault/internal/artifact"
	"github.com/voicevault/voicevault/internal/cache"
	"github.com/voicevault/voicevault/internal/classify"
	"github.com/voicevault/voicevault/internal/config"
	"github.com/voicevault/voicevault/internal/gateway"
	"github.com/voicevault/voicevault/internal/ledger"
	"github.com/voicevault/voicevault/internal/logging"
	"github.com/voicevault/voicevault/internal/monitor"
	"github.com/voicevault/voicevault/internal/publish"
	"github.com/voicevault/voicevault/internal/scheduler"
	"github.com/voicevault/voicevault/internal/taxonomy"
	"github.com/voicevault/voicevault/internal/transcribe"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is a local-development convenience; absence is not an error.
	_ = godotenv.Load()

	configPath := flag.String("config", "voicevault.yaml", "config file path")
	folder := flag.String("folder", "", "audio folder to process (overrides config)")
	file := flag.String("file", "", "process a single audio file instead of a folder")
	batchSize := flag.Int("batch-size", 0, "files per sub-group")
	batchDelay := flag.Duration("batch-delay", -1, "pause between sub-groups")
	maxFiles := flag.Int("max-files", -1, "cap on files processed this run, 0 = unbounded")
	startFrom := flag.Int("start-from", -1, "skip the first N queued files")
	dryRun := flag.Bool("dry-run", false, "transcribe and classify without publishing or ledger commits")
	clearCache := flag.Bool("clear-cache", false, "empty the response cache before the run")
	rebuildTaxonomy := flag.Bool("rebuild-taxonomy", false, "force a taxonomy rebuild before scheduling")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	if *folder != "" {
		cfg.Queue.Folder = *folder
	}
	if *file != "" {
		cfg.Queue.SingleFile = *file
	}
	if *batchSize > 0 {
		cfg.Batch.BatchSize = *batchSize
	}
	if *batchDelay >= 0 {
		cfg.Batch.BatchDelay = *batchDelay
	}
	if *maxFiles >= 0 {
		cfg.Batch.MaxFiles = *maxFiles
	}
	if *startFrom >= 0 {
		cfg.Batch.StartFrom = *startFrom
	}
	if *dryRun {
		cfg.Batch.DryRun = true
	}
	if *clearCache {
		cfg.Cache.Clear = true
	}
	if *rebuildTaxonomy {
		cfg.Taxonomy.Rebuild = true
	}

	logging.Setup(cfg.Logging)

	runID := logging.NewRunID()
	ctx, cancel := context.WithCancel(logging.WithRunID(context.Background(), runID))
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	log := slog.With("run_id", runID)
	log.Info("voicevault starting", "dry_run", cfg.Batch.DryRun)

	monitor.Init("voicevault")
	if cfg.Metrics.Enabled {
		go func() {
			if err := monitor.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()
	log.Info("ledger loaded", "entries", led.Len(), "path", cfg.Ledger.Path)

	store, err := cache.Open(ctx, cfg.Cache.Bucket)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()
	if cfg.Cache.Clear {
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		log.Info("response cache cleared")
	}

	client, err := gateway.NewClient(gateway.ClientConfig{
		Provider:   cfg.Gateway.Provider,
		Model:      cfg.Gateway.Model,
		APIKey:     cfg.Gateway.APIKey,
		OllamaHost: cfg.Gateway.OllamaHost,
	})
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}

	collector := monitor.NewCollector(cfg.Gateway.CostPerCallUSD)
	gw := gateway.New(client, store, collector, gateway.Options{
		Model:        cfg.Gateway.Model,
		CallInterval: cfg.Gateway.CallInterval,
		Burst:        cfg.Gateway.Burst,
		MaxAttempts:  cfg.Gateway.MaxAttempts,
		BaseDelay:    cfg.Gateway.BaseDelay,
		CallTimeout:  cfg.Gateway.CallTimeout,
	})

	tax, err := loadOrBuildTaxonomy(ctx, cfg, gw, log)
	if err != nil {
		return err
	}
	log.Info("taxonomy ready", "version", tax.Version, "life_areas", len(tax.LifeAreas))

	results, err := classify.OpenStore(ctx, cfg.Publish.ResultsURL)
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}
	defer results.Close()
	if classify.Invalidation(cfg.Taxonomy.Invalidation) == classify.InvalidationEager {
		removed, err := results.Invalidate(ctx, tax.Version)
		if err != nil {
			return fmt.Errorf("invalidate stale results: %w", err)
		}
		if removed > 0 {
			log.Info("discarded stale classifications", "removed", removed)
		}
	}

	arts, err := discover(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("artifacts discovered", "count", len(arts))

	orch := transcribe.New(
		transcribe.NewHTTPEngine("short", cfg.Transcribe.ShortURL, cfg.Transcribe.CallTimeout),
		transcribe.NewHTTPEngine("long", cfg.Transcribe.LongURL, cfg.Transcribe.CallTimeout),
		nil,
		transcribe.Options{
			LongThreshold: cfg.Transcribe.LongThreshold,
			ChunkLength:   cfg.Transcribe.ChunkLength,
			ChunkOverlap:  cfg.Transcribe.ChunkOverlap,
			ChunkRetries:  cfg.Transcribe.ChunkRetries,
		},
	)

	sched := scheduler.New(
		led,
		orch,
		classify.New(gw, cfg.Gateway.Model),
		results,
		publish.NewHTTP(cfg.Publish),
		gw,
		tax,
		collector,
		cfg.Batch,
		cfg.Gateway.Model,
	)

	report, runErr := sched.Run(ctx, arts)
	printReport(report)

	if !cfg.Batch.DryRun {
		if err := growTagCorpus(cfg.Taxonomy.TagsPath, report); err != nil {
			log.Warn("tag corpus update failed", "error", err)
		}
	}

	return runErr
}

// discover builds the artifact queue from either the single-file target or
// the configured folder.
func discover(ctx context.Context, cfg config.Config) ([]artifact.Artifact, error) {
	probe := artifact.FFProbe(ctx)

	if cfg.Queue.SingleFile != "" {
		var dur time.Duration
		if probe != nil {
			if d, err := probe(cfg.Queue.SingleFile); err == nil {
				dur = d
			}
		}
		art, err := artifact.FromFile(cfg.Queue.SingleFile, dur)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", cfg.Queue.SingleFile, err)
		}
		return []artifact.Artifact{art}, nil
	}

	arts, err := artifact.Discover(cfg.Queue.Folder, cfg.Queue.Formats, probe)
	if err != nil {
		return nil, fmt.Errorf("discover artifacts: %w", err)
	}
	return arts, nil
}

// loadOrBuildTaxonomy returns the saved taxonomy, building a fresh one when
// none exists or a rebuild was requested.
func loadOrBuildTaxonomy(ctx context.Context, cfg config.Config, gw *gateway.Gateway, log *slog.Logger) (*taxonomy.Taxonomy, error) {
	if !cfg.Taxonomy.Rebuild {
		tax, err := taxonomy.Load(cfg.Taxonomy.Path)
		if err == nil {
			return tax, nil
		}
		if !errors.Is(err, taxonomy.ErrNoTaxonomy) {
			return nil, fmt.Errorf("load taxonomy: %w", err)
		}
		log.Info("no taxonomy found, building one")
	}

	tags, err := taxonomy.LoadTags(cfg.Taxonomy.TagsPath)
	if err != nil {
		return nil, fmt.Errorf("load tag corpus: %w", err)
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("taxonomy build requires a tag corpus at %s", cfg.Taxonomy.TagsPath)
	}

	tax, err := taxonomy.NewBuilder(gw, cfg.Gateway.Model).Build(ctx, tags)
	if err != nil {
		return nil, fmt.Errorf("build taxonomy: %w", err)
	}
	if err := taxonomy.Save(tax, cfg.Taxonomy.Path); err != nil {
		return nil, fmt.Errorf("save taxonomy: %w", err)
	}
	return tax, nil
}

// growTagCorpus folds the run's generated tags back into the historical
// corpus that future taxonomy rebuilds read.
func growTagCorpus(path string, report scheduler.Report) error {
	var fresh []string
	for _, u := range report.Units {
		if u.State == scheduler.StateDone {
			fresh = append(fresh, u.Tags...)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	_, err := taxonomy.MergeTags(path, fresh)
	return err
}

// printReport writes the session summary to stdout, separate from the
// structured log stream.
func printReport(r scheduler.Report) {
	p := r.Perf
	fmt.Println("============ session report ============")
	if r.DryRun {
		fmt.Println("mode:               dry run (no publishes, no ledger commits)")
	}
	fmt.Printf("windowed:           %d\n", r.Windowed)
	fmt.Printf("processed:          %d\n", p.Processed)
	fmt.Printf("succeeded:          %d\n", p.Succeeded)
	fmt.Printf("failed:             %d\n", p.Failed)
	fmt.Printf("skipped (ledgered): %d\n", p.Skipped)
	fmt.Printf("model calls:        %d\n", p.ModelCalls)
	fmt.Printf("cache hits:         %d (%.1f%%)\n", p.CacheHits, p.CacheHitRate)
	fmt.Printf("estimated cost:     $%.2f\n", p.EstimatedCostUSD)
	fmt.Printf("estimated savings:  $%.2f\n", p.EstimatedSaveUSD)
	fmt.Printf("avg artifact time:  %s\n", p.AvgArtifactTime.Round(time.Millisecond))
	fmt.Printf("elapsed:            %s\n", p.Elapsed.Round(time.Millisecond))
	fmt.Println("========================================")
}
