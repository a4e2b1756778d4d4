package transcribe

import (
	"testing"
	"time"
)

func TestWindows(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		chunkLen time.Duration
		overlap  time.Duration
		want     []Window
	}{
		{
			name:     "shorter than one chunk",
			duration: 4 * time.Minute,
			chunkLen: 10 * time.Minute,
			overlap:  30 * time.Second,
			want: []Window{
				{Index: 0, Start: 0, Length: 4 * time.Minute},
			},
		},
		{
			name:     "exact chunk length",
			duration: 10 * time.Minute,
			chunkLen: 10 * time.Minute,
			overlap:  30 * time.Second,
			want: []Window{
				{Index: 0, Start: 0, Length: 10 * time.Minute},
			},
		},
		{
			name:     "default long recording",
			duration: 25 * time.Minute,
			chunkLen: 10 * time.Minute,
			overlap:  30 * time.Second,
			want: []Window{
				{Index: 0, Start: 0, Length: 10 * time.Minute},
				{Index: 1, Start: 9*time.Minute + 30*time.Second, Length: 10 * time.Minute},
				{Index: 2, Start: 19 * time.Minute, Length: 6 * time.Minute},
			},
		},
		{
			name:     "overlap at chunk length degrades to zero",
			duration: 20 * time.Minute,
			chunkLen: 10 * time.Minute,
			overlap:  10 * time.Minute,
			want: []Window{
				{Index: 0, Start: 0, Length: 10 * time.Minute},
				{Index: 1, Start: 10 * time.Minute, Length: 10 * time.Minute},
			},
		},
		{
			name:     "zero duration",
			duration: 0,
			chunkLen: 10 * time.Minute,
			overlap:  30 * time.Second,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Windows(tt.duration, tt.chunkLen, tt.overlap)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d windows, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("window %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestWindowsCoverFullDuration(t *testing.T) {
	duration := 47*time.Minute + 13*time.Second
	windows := Windows(duration, 10*time.Minute, 30*time.Second)

	last := windows[len(windows)-1]
	if last.Start+last.Length != duration {
		t.Errorf("windows end at %s, want %s", last.Start+last.Length, duration)
	}
	for i := 1; i < len(windows); i++ {
		if windows[i].Start >= windows[i-1].Start+windows[i-1].Length {
			t.Errorf("window %d does not overlap its predecessor", i)
		}
	}
}

func TestProportionalSlicer(t *testing.T) {
	audio := make([]byte, 1000)
	for i := range audio {
		audio[i] = byte(i % 256)
	}
	total := 100 * time.Second

	s := ProportionalSlicer{}
	piece, err := s.Slice(audio, total, Window{Start: 10 * time.Second, Length: 20 * time.Second})
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if len(piece) != 200 {
		t.Errorf("len(piece) = %d, want 200", len(piece))
	}
	if piece[0] != audio[100] {
		t.Error("slice does not start at the proportional offset")
	}
}

func TestStitchDeduplicatesOverlap(t *testing.T) {
	chunks := []string{
		"This is the first sentence of the memo. The overlap region repeats here.",
		"The overlap region repeats here. And this is new material from chunk two.",
	}

	got := Stitch(chunks)
	want := "This is the first sentence of the memo. The overlap region repeats here. And this is new material from chunk two."
	if got != want {
		t.Errorf("Stitch = %q, want %q", got, want)
	}
}

func TestStitchPreservesOrder(t *testing.T) {
	chunks := []string{
		"Alpha section comes first in the recording.",
		"Beta section follows immediately after.",
		"Gamma section closes out the recording.",
	}

	got := Stitch(chunks)
	want := "Alpha section comes first in the recording. Beta section follows immediately after. Gamma section closes out the recording."
	if got != want {
		t.Errorf("Stitch = %q, want %q", got, want)
	}
}

func TestStitchDropsShortFragments(t *testing.T) {
	chunks := []string{
		"A real sentence that should survive. uh",
		"yeah. Another full sentence with content.",
	}

	got := Stitch(chunks)
	want := "A real sentence that should survive. Another full sentence with content."
	if got != want {
		t.Errorf("Stitch = %q, want %q", got, want)
	}
}

func TestStitchEmpty(t *testing.T) {
	if got := Stitch(nil); got != "" {
		t.Errorf("Stitch(nil) = %q, want empty", got)
	}
	if got := Stitch([]string{"", ""}); got != "" {
		t.Errorf("Stitch of empty chunks = %q, want empty", got)
	}
}
