package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/voicevault/voicevault/internal/taxonomy"
	"github.com/voicevault/voicevault/internal/transcribe"
)

// mockInvoker implements Invoker with a fixed response.
type mockInvoker struct {
	response string
	err      error
	calls    int
	lastOp   string
	lastIn   string
}

func (m *mockInvoker) Invoke(ctx context.Context, op, model, input string) (string, error) {
	m.calls++
	m.lastOp = op
	m.lastIn = input
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func testTaxonomy() *taxonomy.Taxonomy {
	tax := &taxonomy.Taxonomy{LifeAreas: []taxonomy.LifeArea{
		{Name: "Health", Topics: []string{"Fitness", "Sleep"}},
		{Name: "Work", Topics: []string{"Career"}},
	}}
	tax.Stamp()
	return tax
}

func TestClassifyBindsToVocabulary(t *testing.T) {
	inv := &mockInvoker{response: `{"life_areas":["Health","Invented Area"],"topics":["Fitness","Invented Topic"]}`}
	c := New(inv, "m")

	got, err := c.Classify(context.Background(),
		transcribe.Transcript{ArtifactFingerprint: "sha256:x", Text: "went for a run"},
		testTaxonomy(),
	)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}

	if len(got.LifeAreas) != 1 || got.LifeAreas[0] != "Health" {
		t.Errorf("LifeAreas = %v, want [Health]", got.LifeAreas)
	}
	if len(got.Topics) != 1 || got.Topics[0] != "Fitness" {
		t.Errorf("Topics = %v, want [Fitness]", got.Topics)
	}
}

func TestClassifyEmptyTranscriptSkipsModel(t *testing.T) {
	inv := &mockInvoker{response: `{"life_areas":["Health"],"topics":[]}`}
	c := New(inv, "m")

	got, err := c.Classify(context.Background(),
		transcribe.Transcript{ArtifactFingerprint: "sha256:empty", Incomplete: true},
		testTaxonomy(),
	)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !got.Empty() {
		t.Errorf("classification = %+v, want empty", got)
	}
	if got.TaxonomyVersion == "" {
		t.Error("empty classification still carries the taxonomy version")
	}
	if inv.calls != 0 {
		t.Errorf("model calls = %d, want 0", inv.calls)
	}
}

func TestClassifyPromptEmbedsVersionAndVocabulary(t *testing.T) {
	inv := &mockInvoker{response: `{"life_areas":[],"topics":[]}`}
	c := New(inv, "m")
	tax := testTaxonomy()

	if _, err := c.Classify(context.Background(),
		transcribe.Transcript{ArtifactFingerprint: "f", Text: "some text"}, tax); err != nil {
		t.Fatalf("classify: %v", err)
	}

	if inv.lastOp != "classify" {
		t.Errorf("op = %q", inv.lastOp)
	}
	if !strings.Contains(inv.lastIn, tax.Version) {
		t.Error("prompt does not embed the taxonomy version")
	}
	for _, label := range []string{"Health", "Work", "Fitness", "Sleep", "Career"} {
		if !strings.Contains(inv.lastIn, label) {
			t.Errorf("prompt missing vocabulary label %q", label)
		}
	}
}

func TestClassifyHandsThroughFence(t *testing.T) {
	inv := &mockInvoker{response: "```json\n{\"life_areas\":[\"Work\"],\"topics\":[\"Career\"]}\n```"}
	c := New(inv, "m")

	got, err := c.Classify(context.Background(),
		transcribe.Transcript{ArtifactFingerprint: "f", Text: "quarterly planning"},
		testTaxonomy(),
	)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(got.LifeAreas) != 1 || got.LifeAreas[0] != "Work" {
		t.Errorf("LifeAreas = %v", got.LifeAreas)
	}
}

func TestClassifyInvokeError(t *testing.T) {
	inv := &mockInvoker{err: errors.New("boom")}
	c := New(inv, "m")

	_, err := c.Classify(context.Background(),
		transcribe.Transcript{ArtifactFingerprint: "f", Text: "text"},
		testTaxonomy(),
	)
	if err == nil {
		t.Error("expected the invoke error to propagate")
	}
}
