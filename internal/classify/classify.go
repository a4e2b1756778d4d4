package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voicevault/voicevault/internal/taxonomy"
	"github.com/voicevault/voicevault/internal/transcribe"
)

// Classification assigns a transcript labels drawn from one taxonomy version.
type Classification struct {
	Fingerprint     string   `json:"fingerprint"`
	TaxonomyVersion string   `json:"taxonomy_version"`
	LifeAreas       []string `json:"life_areas"`
	Topics          []string `json:"topics"`
}

// Empty reports whether no labels were assigned.
func (c Classification) Empty() bool {
	return len(c.LifeAreas) == 0 && len(c.Topics) == 0
}

// Invoker is the language-model dependency. Satisfied by *gateway.Gateway.
type Invoker interface {
	Invoke(ctx context.Context, op, model, input string) (string, error)
}

// Classifier assigns vocabulary-bound labels to transcripts.
type Classifier struct {
	invoker Invoker
	model   string
	log     *slog.Logger
}

// New creates a classifier issuing calls for the given model.
func New(invoker Invoker, model string) *Classifier {
	return &Classifier{
		invoker: invoker,
		model:   model,
		log:     slog.With("component", "classify"),
	}
}

// modelLabels is the shape the model is asked to return.
type modelLabels struct {
	LifeAreas []string `json:"life_areas"`
	Topics    []string `json:"topics"`
}

// Classify labels one transcript against the taxonomy. Labels outside the
// taxonomy vocabulary are dropped, never invented. An empty transcript yields
// the degenerate empty classification without a model call.
func (c *Classifier) Classify(ctx context.Context, t transcribe.Transcript, tax *taxonomy.Taxonomy) (Classification, error) {
	out := Classification{
		Fingerprint:     t.ArtifactFingerprint,
		TaxonomyVersion: tax.Version,
	}

	if t.Empty() {
		c.log.Warn("empty transcript, skipping model call", "fingerprint", t.ArtifactFingerprint)
		return out, nil
	}

	raw, err := c.invoker.Invoke(ctx, "classify", c.model, classifyPrompt(t.Text, tax))
	if err != nil {
		return out, fmt.Errorf("classify call: %w", err)
	}

	var labels modelLabels
	if err := json.Unmarshal([]byte(extractJSON(raw)), &labels); err != nil {
		return out, fmt.Errorf("parsing classification response: %w", err)
	}

	for _, la := range labels.LifeAreas {
		if tax.HasLifeArea(la) {
			out.LifeAreas = append(out.LifeAreas, la)
		} else {
			c.log.Warn("dropping out-of-vocabulary life area", "label", la)
		}
	}
	for _, tp := range labels.Topics {
		if tax.HasTopic(tp) {
			out.Topics = append(out.Topics, tp)
		} else {
			c.log.Warn("dropping out-of-vocabulary topic", "label", tp)
		}
	}
	return out, nil
}

// classifyPrompt embeds the taxonomy version so that gateway cache keys change
// whenever the scheme is rebuilt.
func classifyPrompt(text string, tax *taxonomy.Taxonomy) string {
	areas, topics := tax.Vocabulary()

	var sb strings.Builder
	sb.WriteString("Classify the following voice memo transcript.\n\n")
	sb.WriteString("Taxonomy version: ")
	sb.WriteString(tax.Version)
	sb.WriteString("\nLife Areas (choose only from these): ")
	sb.WriteString(strings.Join(areas, ", "))
	sb.WriteString("\nTopics (choose only from these): ")
	sb.WriteString(strings.Join(topics, ", "))
	sb.WriteString("\n\nA memo can belong to multiple life areas and multiple topics. ")
	sb.WriteString("Assign every relevant label, and no label outside the lists above.\n")
	sb.WriteString("Respond with only a JSON object of this shape:\n")
	sb.WriteString(`{"life_areas":["..."],"topics":["..."]}`)
	sb.WriteString("\n\nTranscript:\n")
	sb.WriteString(text)
	return sb.String()
}

func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
