package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voicevault/voicevault/internal/config"
)

func testRecord() Record {
	return Record{
		Fingerprint:     "sha256:abc",
		FileName:        "memo.m4a",
		Title:           "Morning Notes",
		Transcript:      "some text",
		TaxonomyVersion: "v0123456789ab",
		LifeAreas:       []string{"Health"},
		Topics:          []string{"Fitness"},
	}
}

func TestPublishPostsRecord(t *testing.T) {
	var got Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "doc-42"})
	}))
	defer srv.Close()

	p := NewHTTP(config.PublishConfig{Endpoint: srv.URL, Token: "tok"})
	ref, err := p.Publish(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ref != "doc-42" {
		t.Errorf("ref = %q, want doc-42", ref)
	}
	if got.Fingerprint != "sha256:abc" || got.Title != "Morning Notes" {
		t.Errorf("server received %+v", got)
	}
}

func TestPublishRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "doc-1"})
	}))
	defer srv.Close()

	p := NewHTTP(config.PublishConfig{
		Endpoint:    srv.URL,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})
	ref, err := p.Publish(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ref != "doc-1" {
		t.Errorf("ref = %q", ref)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestPublishExhaustedRetriesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTP(config.PublishConfig{
		Endpoint:    srv.URL,
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	})
	if _, err := p.Publish(context.Background(), testRecord()); err == nil {
		t.Error("expected an error after exhausting retries")
	}
}

func TestPublishEmptyResponseBodyFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewHTTP(config.PublishConfig{Endpoint: srv.URL})
	ref, err := p.Publish(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ref != "sha256:abc" {
		t.Errorf("ref = %q, want fingerprint fallback", ref)
	}
}

func TestNopPublisher(t *testing.T) {
	ref, err := NopPublisher{}.Publish(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ref != "dry-run:sha256:abc" {
		t.Errorf("ref = %q", ref)
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name       string
		fileName   string
		transcript string
		want       string
	}{
		{
			name:       "first sentence promoted",
			fileName:   "rec-001.m4a",
			transcript: "Planning the product launch today. More detail follows.",
			want:       "Planning the product launch today",
		},
		{
			name:       "short first sentence falls back to filename",
			fileName:   "morning_notes.m4a",
			transcript: "Okay. So this is a much longer second sentence.",
			want:       "Morning Notes",
		},
		{
			name:       "long first sentence falls back to filename",
			fileName:   "weekly-review.mp3",
			transcript: "This opening sentence runs on far too long to make a reasonable title for anything.",
			want:       "Weekly Review",
		},
		{
			name:       "empty transcript",
			fileName:   "untagged_thoughts.wav",
			transcript: "",
			want:       "Untagged Thoughts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.fileName, tt.transcript); got != tt.want {
				t.Errorf("DeriveTitle = %q, want %q", got, tt.want)
			}
		})
	}
}
