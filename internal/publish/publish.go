// Package publish delivers finished pipeline results to the external document
// store. The store assigns the external reference that the ledger records.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/voicevault/voicevault/internal/classify"
	"github.com/voicevault/voicevault/internal/config"
	"github.com/voicevault/voicevault/internal/monitor"
)

// Record is everything published for one artifact.
type Record struct {
	Fingerprint     string   `json:"fingerprint"`
	FileName        string   `json:"file_name"`
	Title           string   `json:"title"`
	Summary         string   `json:"summary,omitempty"`
	Transcript      string   `json:"transcript"`
	Incomplete      bool     `json:"incomplete,omitempty"`
	DurationSeconds float64  `json:"duration_seconds"`
	TaxonomyVersion string   `json:"taxonomy_version"`
	LifeAreas       []string `json:"life_areas"`
	Topics          []string `json:"topics"`
	Tags            []string `json:"tags,omitempty"`
}

// FromClassification fills the label fields of a record.
func (r *Record) FromClassification(c classify.Classification) {
	r.TaxonomyVersion = c.TaxonomyVersion
	r.LifeAreas = c.LifeAreas
	r.Topics = c.Topics
}

// Publisher delivers one record and returns the external reference assigned by
// the document store.
type Publisher interface {
	Publish(ctx context.Context, rec Record) (string, error)
}

// HTTPPublisher posts records as JSON to a document-store endpoint.
type HTTPPublisher struct {
	cfg    config.PublishConfig
	client *http.Client
	log    *slog.Logger
}

// NewHTTP creates a publisher for the configured endpoint.
func NewHTTP(cfg config.PublishConfig) *HTTPPublisher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &HTTPPublisher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.CallTimeout},
		log:    slog.With("component", "publish"),
	}
}

// publishResponse is the document store's reply.
type publishResponse struct {
	ID string `json:"id"`
}

// Publish posts the record with retries. The same record may be re-posted
// after a crash that lost the ledger commit; the document store keys on
// fingerprint, so a repeat post overwrites rather than duplicates.
func (p *HTTPPublisher) Publish(ctx context.Context, rec Record) (string, error) {
	var ref string

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.BaseDelay
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(p.cfg.MaxAttempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		id, err := p.post(ctx, rec)
		if err != nil {
			p.log.Warn("publish attempt failed",
				"fingerprint", rec.Fingerprint,
				"attempt", attempt,
				"error", err,
			)
			if m := monitor.Get(); m != nil {
				m.RetryAttempts.WithLabelValues("publish").Inc()
			}
			return err
		}
		ref = id
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return "", fmt.Errorf("publishing %s: %w", rec.Fingerprint, err)
	}

	p.log.Info("published", "fingerprint", rec.Fingerprint, "ref", ref, "title", rec.Title)
	return ref, nil
}

func (p *HTTPPublisher) post(ctx context.Context, rec Record) (string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}

	var pr publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil || pr.ID == "" {
		// A store that replies without a body still accepted the record;
		// fall back to the fingerprint as the reference.
		return rec.Fingerprint, nil
	}
	return pr.ID, nil
}

// NopPublisher accepts every record without side effects. Used by dry runs.
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, rec Record) (string, error) {
	return "dry-run:" + rec.Fingerprint, nil
}
