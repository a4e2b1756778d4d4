// Package artifact models source audio recordings and their content
// fingerprints.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Artifact is one source audio recording to be processed. It is immutable
// once fingerprinted.
type Artifact struct {
	Fingerprint string
	Path        string
	Size        int64
	Duration    time.Duration
	ModTime     time.Time
}

// Name returns the base filename of the artifact.
func (a Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Bytes reads the raw audio bytes from disk.
func (a Artifact) Bytes() ([]byte, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", a.Path, err)
	}
	return data, nil
}

// Fingerprint computes the content fingerprint over raw bytes.
func Fingerprint(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// FromFile fingerprints a file on disk and returns its Artifact.
// The duration estimate is supplied by the caller (probed externally).
func FromFile(path string, duration time.Duration) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return Artifact{
		Fingerprint: Fingerprint(data),
		Path:        path,
		Size:        info.Size(),
		Duration:    duration,
		ModTime:     info.ModTime(),
	}, nil
}

// DurationProbe estimates the play length of an audio file. Probing is an
// external concern (media metadata reader); the pipeline only consumes the
// estimate.
type DurationProbe func(path string) (time.Duration, error)

// Discover lists supported audio files directly under folder, in
// deterministic (path-sorted) order. Subdirectories are not descended into;
// processed files are moved below the queue root and must not be rediscovered.
func Discover(folder string, formats []string, probe DurationProbe) ([]Artifact, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read queue folder %s: %w", folder, err)
	}

	supported := make(map[string]bool, len(formats))
	for _, f := range formats {
		supported[strings.ToLower(f)] = true
	}

	var out []Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !supported[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		path := filepath.Join(folder, entry.Name())

		var dur time.Duration
		if probe != nil {
			// A failed probe is not fatal: duration 0 routes to the
			// short engine and the artifact still gets processed.
			if d, err := probe(path); err == nil {
				dur = d
			}
		}

		art, err := FromFile(path, dur)
		if err != nil {
			return nil, err
		}
		out = append(out, art)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
