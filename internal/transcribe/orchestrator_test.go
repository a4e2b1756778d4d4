package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voicevault/voicevault/internal/artifact"
)

// mockEngine implements Engine for testing.
type mockEngine struct {
	mu    sync.Mutex
	name  string
	out   string
	errs  map[int]error // per-call errors, keyed by call ordinal
	calls int
}

func (m *mockEngine) Name() string { return m.name }

func (m *mockEngine) Transcribe(ctx context.Context, audio []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := m.calls
	m.calls++
	if err, ok := m.errs[call]; ok {
		return "", err
	}
	return m.out, nil
}

func (m *mockEngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testArtifact(t *testing.T, duration time.Duration) artifact.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memo.m4a")
	if err := os.WriteFile(path, []byte("audio-bytes-for-testing-only"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	art, err := artifact.FromFile(path, duration)
	if err != nil {
		t.Fatalf("from file: %v", err)
	}
	return art
}

func TestSelect(t *testing.T) {
	threshold := 15 * time.Minute
	tests := []struct {
		duration time.Duration
		want     Selection
	}{
		{90 * time.Second, SelectShort},
		{14 * time.Minute, SelectShort},
		{15 * time.Minute, SelectLong},
		{2 * time.Hour, SelectLong},
		{0, SelectShort},
	}
	for _, tt := range tests {
		if got := Select(tt.duration, threshold); got != tt.want {
			t.Errorf("Select(%s) = %v, want %v", tt.duration, got, tt.want)
		}
	}
}

func TestTranscribeShortRouting(t *testing.T) {
	short := &mockEngine{name: "short", out: "short transcript"}
	long := &mockEngine{name: "long", out: "long transcript"}
	o := New(short, long, nil, Options{LongThreshold: 15 * time.Minute, RetryDelay: time.Millisecond})

	got, err := o.Transcribe(context.Background(), testArtifact(t, 90*time.Second))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got.EngineUsed != "short" {
		t.Errorf("EngineUsed = %q, want short", got.EngineUsed)
	}
	if got.Text != "short transcript" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Incomplete {
		t.Error("transcript marked incomplete")
	}
	if long.callCount() != 0 {
		t.Error("long engine must not be called for short media")
	}
}

func TestTranscribeLongChunksAndStitches(t *testing.T) {
	short := &mockEngine{name: "short", out: "unused"}
	long := &mockEngine{name: "long", out: "A sentence from one of the chunks."}
	o := New(short, long, nil, Options{
		LongThreshold: 15 * time.Minute,
		ChunkLength:   10 * time.Minute,
		ChunkOverlap:  30 * time.Second,
		RetryDelay:    time.Millisecond,
	})

	got, err := o.Transcribe(context.Background(), testArtifact(t, 25*time.Minute))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got.EngineUsed != "long" {
		t.Errorf("EngineUsed = %q, want long", got.EngineUsed)
	}
	if got.ChunkCount != 3 {
		t.Errorf("ChunkCount = %d, want 3", got.ChunkCount)
	}
	if got.Incomplete {
		t.Error("transcript marked incomplete with no failures")
	}
	// Identical chunk outputs collapse to one sentence via overlap dedup.
	if got.Text != "A sentence from one of the chunks." {
		t.Errorf("Text = %q", got.Text)
	}
	if short.callCount() != 0 {
		t.Error("short engine must not be called for long media")
	}
}

func TestTranscribeChunkFailureDegrades(t *testing.T) {
	// Chunk 1 fails on every attempt (ordinals 1-3 with 3 retries); the
	// transcript degrades instead of aborting.
	long := &mockEngine{
		name: "long",
		out:  "Recovered text from a surviving chunk.",
		errs: map[int]error{
			1: errors.New("boom"),
			2: errors.New("boom"),
			3: errors.New("boom"),
		},
	}
	o := New(&mockEngine{name: "short"}, long, nil, Options{
		LongThreshold: 15 * time.Minute,
		ChunkLength:   10 * time.Minute,
		ChunkOverlap:  30 * time.Second,
		ChunkRetries:  3,
		RetryDelay:    time.Millisecond,
	})

	got, err := o.Transcribe(context.Background(), testArtifact(t, 25*time.Minute))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if !got.Incomplete {
		t.Error("transcript with a failed chunk must be incomplete")
	}
	if len(got.FailedChunks) != 1 || got.FailedChunks[0] != 1 {
		t.Errorf("FailedChunks = %v, want [1]", got.FailedChunks)
	}
	if got.Text == "" {
		t.Error("surviving chunks must still produce text")
	}
}

func TestTranscribeShortRetriesThenSucceeds(t *testing.T) {
	short := &mockEngine{
		name: "short",
		out:  "made it",
		errs: map[int]error{0: errors.New("transient")},
	}
	o := New(short, &mockEngine{name: "long"}, nil, Options{
		LongThreshold: 15 * time.Minute,
		ChunkRetries:  3,
		RetryDelay:    time.Millisecond,
	})

	got, err := o.Transcribe(context.Background(), testArtifact(t, time.Minute))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got.Text != "made it" {
		t.Errorf("Text = %q", got.Text)
	}
	if short.callCount() != 2 {
		t.Errorf("calls = %d, want 2", short.callCount())
	}
}

func TestTranscribeUnreadableArtifact(t *testing.T) {
	o := New(&mockEngine{name: "short"}, &mockEngine{name: "long"}, nil, Options{RetryDelay: time.Millisecond})

	art := artifact.Artifact{
		Fingerprint: "sha256:gone",
		Path:        filepath.Join(t.TempDir(), "missing.m4a"),
		Duration:    time.Minute,
	}
	got, err := o.Transcribe(context.Background(), art)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if !got.Incomplete {
		t.Error("unreadable input must yield an incomplete transcript")
	}
	if !got.Empty() {
		t.Errorf("Text = %q, want empty", got.Text)
	}
}

func TestTranscribeShortExhaustedRetriesDegrades(t *testing.T) {
	short := &mockEngine{
		name: "short",
		errs: map[int]error{0: errors.New("x"), 1: errors.New("x"), 2: errors.New("x")},
	}
	o := New(short, &mockEngine{name: "long"}, nil, Options{
		LongThreshold: 15 * time.Minute,
		ChunkRetries:  3,
		RetryDelay:    time.Millisecond,
	})

	got, err := o.Transcribe(context.Background(), testArtifact(t, time.Minute))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if !got.Incomplete || !got.Empty() {
		t.Errorf("got incomplete=%v empty=%v, want both true", got.Incomplete, got.Empty())
	}
}
