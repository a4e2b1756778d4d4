package classify

import (
	"context"
	"testing"
)

func TestResultStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStore(ctx, "mem://")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	want := Classification{
		Fingerprint:     "sha256:abc",
		TaxonomyVersion: "v111111111111",
		LifeAreas:       []string{"Health"},
		Topics:          []string{"Fitness"},
	}
	if err := s.Put(ctx, want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := s.Get(ctx, "sha256:abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected a stored result")
	}
	if got.TaxonomyVersion != want.TaxonomyVersion || len(got.LifeAreas) != 1 {
		t.Errorf("got %+v", got)
	}

	if _, ok, _ := s.Get(ctx, "sha256:absent"); ok {
		t.Error("unexpected hit for absent fingerprint")
	}
}

func TestInvalidateRemovesStaleOnly(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStore(ctx, "mem://")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	current := "vcurrent00000"
	entries := []Classification{
		{Fingerprint: "sha256:a", TaxonomyVersion: current},
		{Fingerprint: "sha256:b", TaxonomyVersion: "vstale0000000"},
		{Fingerprint: "sha256:c", TaxonomyVersion: "volder0000000"},
	}
	for _, e := range entries {
		if err := s.Put(ctx, e); err != nil {
			t.Fatalf("put %s: %v", e.Fingerprint, err)
		}
	}

	removed, err := s.Invalidate(ctx, current)
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	if _, ok, _ := s.Get(ctx, "sha256:a"); !ok {
		t.Error("current-version result was removed")
	}
	for _, fp := range []string{"sha256:b", "sha256:c"} {
		if _, ok, _ := s.Get(ctx, fp); ok {
			t.Errorf("stale result %s survived invalidation", fp)
		}
	}
}
