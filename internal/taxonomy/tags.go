package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadTags reads the historical tag corpus, a JSON array of strings. A missing
// file is an empty corpus, not an error.
func LoadTags(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading tag corpus: %w", err)
	}

	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("parsing tag corpus %s: %w", path, err)
	}
	return tags, nil
}

// MergeTags adds new tags to the corpus file, deduplicated, written atomically.
// Returns the merged corpus.
func MergeTags(path string, fresh []string) ([]string, error) {
	existing, err := LoadTags(path)
	if err != nil {
		return nil, err
	}

	merged := dedupeTags(append(existing, fresh...))
	if len(fresh) == 0 {
		return merged, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating tag corpus directory: %w", err)
	}
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling tag corpus: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing tag corpus temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("renaming tag corpus file: %w", err)
	}
	return merged, nil
}
