// Package gateway is the sole path to the language-model service. It owns
// response caching, rate limiting, and retry with exponential backoff, so
// identical requests never hit the network twice and concurrent callers share
// one limiter.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/voicevault/voicevault/internal/cache"
	"github.com/voicevault/voicevault/internal/monitor"
)

// ModelClient makes the actual network call to the language-model service.
type ModelClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options configures the gateway.
type Options struct {
	Model        string
	CallInterval time.Duration // minimum spacing between network calls
	Burst        int
	MaxAttempts  int
	BaseDelay    time.Duration
	CallTimeout  time.Duration
}

// Gateway fronts the model service with a cache-first invoke path.
type Gateway struct {
	client    ModelClient
	store     cache.Store
	limiter   *rate.Limiter
	collector *monitor.Collector
	opts      Options
	log       *slog.Logger
}

// New creates a gateway. collector may be nil.
func New(client ModelClient, store cache.Store, collector *monitor.Collector, opts Options) *Gateway {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	limit := rate.Inf
	if opts.CallInterval > 0 {
		limit = rate.Every(opts.CallInterval)
	}

	return &Gateway{
		client:    client,
		store:     store,
		limiter:   rate.NewLimiter(limit, opts.Burst),
		collector: collector,
		opts:      opts,
		log:       slog.With("component", "gateway"),
	}
}

// Invoke returns the model response for (op, model, input), serving from the
// cache when possible. A cache hit consumes no rate-limit token and is
// behaviorally indistinguishable from a fresh call. On a miss the response is
// written to the cache before being returned.
func (g *Gateway) Invoke(ctx context.Context, op, model, input string) (string, error) {
	key := RequestKey(op, model, input)
	log := g.log.With("op", op, "key", key[:12])

	if entry, ok, err := g.store.Get(ctx, key); err != nil {
		log.Warn("cache read failed, falling through to network", "error", err)
	} else if ok {
		log.Debug("cache hit")
		g.recordHit()
		return entry.Response, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", &Error{Kind: KindTransient, Op: op, Err: err}
	}

	response, err := g.callWithRetry(ctx, op, input)
	if err != nil {
		return "", err
	}

	if err := g.store.Put(ctx, key, cache.Entry{
		Response:  response,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		// The response is still good; only future dedup is lost.
		log.Warn("cache write failed", "error", err)
	}

	return response, nil
}

// callWithRetry runs the network call under the retry policy. Transient and
// rate-limited failures back off and retry up to the attempt cap; permanent
// and quota failures short-circuit.
func (g *Gateway) callWithRetry(ctx context.Context, op, input string) (string, error) {
	var response string

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.opts.BaseDelay
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(g.opts.MaxAttempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		callCtx := ctx
		if g.opts.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.opts.CallTimeout)
			defer cancel()
		}

		start := time.Now()
		out, err := g.client.Generate(callCtx, input)
		g.recordCall()
		if err != nil {
			kind := classify(err)
			g.log.Warn("model call failed",
				"op", op, "attempt", attempt, "kind", kind.String(), "error", err)
			if m := monitor.Get(); m != nil && kind.Retryable() {
				m.RetryAttempts.WithLabelValues("model_call").Inc()
			}
			ge := &Error{Kind: kind, Op: op, Err: err}
			if !kind.Retryable() {
				return backoff.Permanent(ge)
			}
			return ge
		}

		g.log.Debug("model call succeeded",
			"op", op, "attempt", attempt, "duration", time.Since(start).String())
		response = out
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return response, nil
}

func (g *Gateway) recordCall() {
	if g.collector != nil {
		g.collector.RecordModelCall()
	}
	if m := monitor.Get(); m != nil {
		m.ModelCalls.Inc()
	}
}

func (g *Gateway) recordHit() {
	if g.collector != nil {
		g.collector.RecordCacheHit()
	}
	if m := monitor.Get(); m != nil {
		m.CacheHits.Inc()
	}
}

// RequestKey derives the cache key for a gateway request. The input is
// normalized so whitespace-only differences share one entry.
func RequestKey(op, model, input string) string {
	h := sha256.New()
	h.Write([]byte(op))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(input)))
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize collapses runs of whitespace and trims the input.
func Normalize(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
