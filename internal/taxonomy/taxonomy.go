package taxonomy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoTaxonomy is returned by Load when no taxonomy has been built yet.
var ErrNoTaxonomy = errors.New("taxonomy: not found")

// FallbackLifeArea absorbs tags the model leaves uncovered.
const (
	FallbackLifeArea = "General"
	FallbackTopic    = "Uncategorized"
)

// LifeArea is a broad life pillar with its specific themes.
type LifeArea struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Topics      []string `json:"topics"`
}

// Mapping places one historical tag inside the scheme.
type Mapping struct {
	LifeArea string `json:"life_area"`
	Topic    string `json:"topic"`
}

// Taxonomy is the two-level classification scheme. Version identifies the
// content: two taxonomies with the same areas and topics share a version
// regardless of when or how they were built.
type Taxonomy struct {
	Version     string             `json:"version"`
	CreatedAt   time.Time          `json:"created_at"`
	LifeAreas   []LifeArea         `json:"life_areas"`
	TagMappings map[string]Mapping `json:"tag_mappings,omitempty"`
}

// Vocabulary returns the closed label sets, sorted.
func (t *Taxonomy) Vocabulary() (areas, topics []string) {
	topicSet := make(map[string]struct{})
	for _, la := range t.LifeAreas {
		areas = append(areas, la.Name)
		for _, tp := range la.Topics {
			topicSet[tp] = struct{}{}
		}
	}
	for tp := range topicSet {
		topics = append(topics, tp)
	}
	sort.Strings(areas)
	sort.Strings(topics)
	return areas, topics
}

// HasLifeArea reports whether name is part of the scheme.
func (t *Taxonomy) HasLifeArea(name string) bool {
	for _, la := range t.LifeAreas {
		if la.Name == name {
			return true
		}
	}
	return false
}

// HasTopic reports whether name appears under any life area.
func (t *Taxonomy) HasTopic(name string) bool {
	for _, la := range t.LifeAreas {
		for _, tp := range la.Topics {
			if tp == name {
				return true
			}
		}
	}
	return false
}

// Stamp computes and sets the content version. Call after any mutation.
func (t *Taxonomy) Stamp() {
	t.Version = contentVersion(t.LifeAreas)
}

// contentVersion hashes the canonical (sorted) structure so that ordering
// differences do not produce distinct versions.
func contentVersion(areas []LifeArea) string {
	lines := make([]string, 0, len(areas))
	for _, la := range areas {
		topics := append([]string(nil), la.Topics...)
		sort.Strings(topics)
		lines = append(lines, la.Name+"="+strings.Join(topics, ","))
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])[:12]
}

// Save writes the taxonomy to path atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated scheme behind.
func Save(t *Taxonomy, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating taxonomy directory: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling taxonomy: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing taxonomy temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming taxonomy file: %w", err)
	}
	return nil
}

// Load reads a previously saved taxonomy. Returns ErrNoTaxonomy when the file
// does not exist.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoTaxonomy
		}
		return nil, fmt.Errorf("reading taxonomy file: %w", err)
	}

	var t Taxonomy
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing taxonomy file %s: %w", path, err)
	}
	if t.Version == "" {
		t.Stamp()
	}
	return &t, nil
}
