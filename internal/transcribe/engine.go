// Package transcribe converts audio artifacts into text. Engine selection is
// a pure function of duration; long media is chunked, transcribed per chunk,
// and stitched back in index order.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Engine transcribes raw audio bytes.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Selection names the routing outcome for an artifact.
type Selection int

const (
	// SelectShort routes to the fast engine, no chunking.
	SelectShort Selection = iota
	// SelectLong routes to the high-accuracy engine with mandatory chunking.
	SelectLong
)

// Select routes by duration: below threshold goes to the short engine,
// at or above goes to the long engine. This is the single routing point;
// nothing downstream branches on engine identity.
func Select(duration, threshold time.Duration) Selection {
	if duration < threshold {
		return SelectShort
	}
	return SelectLong
}

// HTTPEngine posts audio bytes to an external transcription service and
// returns the plain-text body.
type HTTPEngine struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewHTTPEngine creates an engine client for the given service endpoint.
func NewHTTPEngine(name, endpoint string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPEngine{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEngine) Name() string { return e.name }

func (e *HTTPEngine) Transcribe(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcribe response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("transcribe service %s: status %d: %s", e.name, resp.StatusCode, body)
	}
	return string(body), nil
}
