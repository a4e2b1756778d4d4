package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// Invalidation controls what happens to stored results whose taxonomy version
// no longer matches the current scheme.
type Invalidation string

const (
	// InvalidationLazy keeps stale results until the artifact is next
	// classified; readers see the version they were produced under.
	InvalidationLazy Invalidation = "lazy"
	// InvalidationEager discards stale results up front so the run recomputes
	// them.
	InvalidationEager Invalidation = "eager"
)

// ResultStore persists classifications by fingerprint so that republish runs
// do not repeat model work.
type ResultStore struct {
	bucket *blob.Bucket
}

// OpenStore opens a result store at the given blob URL.
func OpenStore(ctx context.Context, bucketURL string) (*ResultStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open results bucket %s: %w", bucketURL, err)
	}
	return &ResultStore{bucket: bucket}, nil
}

// Get returns the stored classification for a fingerprint, if any.
func (s *ResultStore) Get(ctx context.Context, fingerprint string) (Classification, bool, error) {
	data, err := s.bucket.ReadAll(ctx, resultKey(fingerprint))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return Classification{}, false, nil
		}
		return Classification{}, false, fmt.Errorf("read result: %w", err)
	}

	var c Classification
	if err := json.Unmarshal(data, &c); err != nil {
		return Classification{}, false, nil
	}
	return c, true, nil
}

// Put stores one classification, replacing any previous version.
func (s *ResultStore) Put(ctx context.Context, c Classification) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.bucket.WriteAll(ctx, resultKey(c.Fingerprint), data, nil); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// Invalidate removes every stored result whose taxonomy version differs from
// version. Used by the eager policy after a rebuild.
func (s *ResultStore) Invalidate(ctx context.Context, version string) (int, error) {
	removed := 0
	iter := s.bucket.List(&blob.ListOptions{})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return removed, nil
		}
		if err != nil {
			return removed, fmt.Errorf("list results: %w", err)
		}

		data, err := s.bucket.ReadAll(ctx, obj.Key)
		if err != nil {
			continue
		}
		var c Classification
		if err := json.Unmarshal(data, &c); err != nil || c.TaxonomyVersion == version {
			continue
		}
		if err := s.bucket.Delete(ctx, obj.Key); err != nil {
			return removed, fmt.Errorf("delete stale result %s: %w", obj.Key, err)
		}
		removed++
	}
}

func (s *ResultStore) Close() error {
	return s.bucket.Close()
}

func resultKey(fingerprint string) string {
	return "results/" + fingerprint + ".json"
}
