package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Invoker is the language-model dependency of the builder. Satisfied by
// *gateway.Gateway.
type Invoker interface {
	Invoke(ctx context.Context, op, model, input string) (string, error)
}

// Builder derives a two-level scheme from the historical tag corpus.
type Builder struct {
	invoker Invoker
	model   string
	log     *slog.Logger
}

// NewBuilder creates a builder issuing calls for the given model.
func NewBuilder(invoker Invoker, model string) *Builder {
	return &Builder{
		invoker: invoker,
		model:   model,
		log:     slog.With("component", "taxonomy"),
	}
}

// buildResponse is the shape the model is asked to return.
type buildResponse struct {
	LifeAreas []struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Topics      []string `json:"topics"`
	} `json:"life_areas"`
	TagMappings map[string]struct {
		LifeArea string `json:"life_area"`
		Topic    string `json:"topic"`
	} `json:"tag_mappings"`
}

// Build derives a taxonomy covering every tag in the corpus. Tags the model
// leaves unmapped are re-prompted once; anything still unmapped lands in the
// fallback bucket so the coverage guarantee holds unconditionally.
func (b *Builder) Build(ctx context.Context, tags []string) (*Taxonomy, error) {
	corpus := dedupeTags(tags)
	if len(corpus) == 0 {
		return nil, fmt.Errorf("taxonomy: empty tag corpus")
	}
	b.log.Info("building taxonomy", "tags", len(corpus))

	t, uncovered, err := b.prompt(ctx, buildPrompt(corpus), corpus, nil)
	if err != nil {
		return nil, err
	}

	if len(uncovered) > 0 {
		b.log.Info("re-prompting for uncovered tags", "uncovered", len(uncovered))
		t, uncovered, err = b.prompt(ctx, repairPrompt(t, uncovered), corpus, t)
		if err != nil {
			return nil, err
		}
	}

	if len(uncovered) > 0 {
		b.log.Warn("assigning uncovered tags to fallback bucket", "tags", len(uncovered))
		assignFallback(t, uncovered)
	}

	t.CreatedAt = time.Now().UTC()
	t.Stamp()
	b.log.Info("taxonomy built",
		"version", t.Version,
		"life_areas", len(t.LifeAreas),
		"mapped_tags", len(t.TagMappings),
	)
	return t, nil
}

// prompt runs one model round and merges the response into base (which may be
// nil for the first round). Returns the merged taxonomy and the tags it still
// does not cover.
func (b *Builder) prompt(ctx context.Context, input string, corpus []string, base *Taxonomy) (*Taxonomy, []string, error) {
	raw, err := b.invoker.Invoke(ctx, "build_taxonomy", b.model, input)
	if err != nil {
		return nil, nil, fmt.Errorf("taxonomy build call: %w", err)
	}

	var resp buildResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, nil, fmt.Errorf("parsing taxonomy response: %w", err)
	}

	t := base
	if t == nil {
		t = &Taxonomy{TagMappings: make(map[string]Mapping)}
	}
	merge(t, resp)

	var uncovered []string
	for _, tag := range corpus {
		if _, ok := t.TagMappings[tag]; !ok {
			uncovered = append(uncovered, tag)
		}
	}
	return t, uncovered, nil
}

// merge folds a model response into t, creating life areas and topics as
// needed and recording tag mappings whose targets exist in the scheme.
func merge(t *Taxonomy, resp buildResponse) {
	for _, ra := range resp.LifeAreas {
		if ra.Name == "" {
			continue
		}
		idx := -1
		for i := range t.LifeAreas {
			if t.LifeAreas[i].Name == ra.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			t.LifeAreas = append(t.LifeAreas, LifeArea{Name: ra.Name, Description: ra.Description})
			idx = len(t.LifeAreas) - 1
		}
		for _, tp := range ra.Topics {
			if tp != "" && !contains(t.LifeAreas[idx].Topics, tp) {
				t.LifeAreas[idx].Topics = append(t.LifeAreas[idx].Topics, tp)
			}
		}
	}

	for tag, m := range resp.TagMappings {
		if tag == "" || m.LifeArea == "" {
			continue
		}
		if !t.HasLifeArea(m.LifeArea) {
			continue
		}
		topic := m.Topic
		if topic != "" && !t.HasTopic(topic) {
			topic = ""
		}
		t.TagMappings[tag] = Mapping{LifeArea: m.LifeArea, Topic: topic}
	}
}

// assignFallback maps every remaining tag into the fallback bucket, appending
// the bucket to the scheme if absent.
func assignFallback(t *Taxonomy, tags []string) {
	if !t.HasLifeArea(FallbackLifeArea) {
		t.LifeAreas = append(t.LifeAreas, LifeArea{
			Name:        FallbackLifeArea,
			Description: "Material that does not fit the derived scheme",
			Topics:      []string{FallbackTopic},
		})
	} else if !t.HasTopic(FallbackTopic) {
		for i := range t.LifeAreas {
			if t.LifeAreas[i].Name == FallbackLifeArea {
				t.LifeAreas[i].Topics = append(t.LifeAreas[i].Topics, FallbackTopic)
			}
		}
	}
	for _, tag := range tags {
		t.TagMappings[tag] = Mapping{LifeArea: FallbackLifeArea, Topic: FallbackTopic}
	}
}

func buildPrompt(tags []string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following tags collected from a voice memo archive ")
	sb.WriteString("and design a two-level classification taxonomy.\n\n")
	sb.WriteString("Requirements:\n")
	sb.WriteString("- Life Areas are broad life pillars (health, business, relationships, ...). Aim for 10-15.\n")
	sb.WriteString("- Topics are specific recurring themes nested under life areas. Aim for 40-50 total.\n")
	sb.WriteString("- Every input tag must appear in tag_mappings, assigned to exactly one life area and topic.\n\n")
	sb.WriteString("Respond with only a JSON object of this shape:\n")
	sb.WriteString(`{"life_areas":[{"name":"...","description":"...","topics":["..."]}],` +
		`"tag_mappings":{"<tag>":{"life_area":"...","topic":"..."}}}`)
	sb.WriteString("\n\nTags:\n")
	for _, tag := range tags {
		sb.WriteString("- ")
		sb.WriteString(tag)
		sb.WriteString("\n")
	}
	return sb.String()
}

func repairPrompt(t *Taxonomy, uncovered []string) string {
	areas, topics := t.Vocabulary()

	var sb strings.Builder
	sb.WriteString("A taxonomy already exists. Map the remaining tags into it, ")
	sb.WriteString("preferring existing life areas and topics; introduce a new topic only when nothing fits.\n\n")
	sb.WriteString("Existing life areas: ")
	sb.WriteString(strings.Join(areas, ", "))
	sb.WriteString("\nExisting topics: ")
	sb.WriteString(strings.Join(topics, ", "))
	sb.WriteString("\n\nRespond with only a JSON object of this shape:\n")
	sb.WriteString(`{"life_areas":[{"name":"...","description":"...","topics":["..."]}],` +
		`"tag_mappings":{"<tag>":{"life_area":"...","topic":"..."}}}`)
	sb.WriteString("\n\nUnmapped tags:\n")
	for _, tag := range uncovered {
		sb.WriteString("- ")
		sb.WriteString(tag)
		sb.WriteString("\n")
	}
	return sb.String()
}

// extractJSON strips prose and code fences around the outermost JSON object.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
