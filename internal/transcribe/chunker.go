package transcribe

import (
	"strings"
	"time"
)

// Window is one chunk of a long recording, positioned in the time domain.
type Window struct {
	Index  int
	Start  time.Duration
	Length time.Duration
}

// Windows splits a recording of the given duration into fixed-length chunks
// with the given overlap. The final window may be shorter. An overlap at or
// above the chunk length degrades to zero overlap rather than looping.
func Windows(duration, chunkLen, overlap time.Duration) []Window {
	if duration <= 0 || chunkLen <= 0 {
		return nil
	}
	if overlap >= chunkLen {
		overlap = 0
	}

	var out []Window
	step := chunkLen - overlap
	idx := 0
	for start := time.Duration(0); start < duration; start += step {
		length := chunkLen
		if start+length > duration {
			length = duration - start
		}
		out = append(out, Window{Index: idx, Start: start, Length: length})
		idx++
		if start+chunkLen >= duration {
			break
		}
	}
	return out
}

// Slicer extracts the audio bytes for a time window. Format-aware slicing
// belongs to the external encoder; ProportionalSlicer is the built-in
// approximation for raw formats.
type Slicer interface {
	Slice(audio []byte, total time.Duration, w Window) ([]byte, error)
}

// ProportionalSlicer maps time windows onto byte ranges proportionally.
type ProportionalSlicer struct{}

func (ProportionalSlicer) Slice(audio []byte, total time.Duration, w Window) ([]byte, error) {
	if total <= 0 || len(audio) == 0 {
		return audio, nil
	}
	start := int(int64(len(audio)) * int64(w.Start) / int64(total))
	end := int(int64(len(audio)) * int64(w.Start+w.Length) / int64(total))
	if start < 0 {
		start = 0
	}
	if end > len(audio) {
		end = len(audio)
	}
	if start >= end {
		return nil, nil
	}
	return audio[start:end], nil
}

// Stitch joins chunk outputs in index order into one transcript and drops
// sentence-level duplicates introduced by window overlap. Order is preserved;
// there is no cross-chunk semantic merge.
func Stitch(chunks []string) string {
	joined := strings.Join(chunks, " ")
	if joined == "" {
		return ""
	}

	sentences := strings.Split(joined, ".")
	seen := make(map[string]bool, len(sentences))
	var kept []string
	for _, s := range sentences {
		trimmed := strings.TrimSpace(s)
		normalized := strings.ToLower(trimmed)
		// Short fragments are boundary noise, not sentences worth keeping
		// on their own.
		if len(normalized) <= 10 || seen[normalized] {
			continue
		}
		seen[normalized] = true
		kept = append(kept, trimmed)
	}

	if len(kept) == 0 {
		return strings.TrimSpace(joined)
	}
	return strings.Join(kept, ". ") + "."
}
