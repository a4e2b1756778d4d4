// Package cache is the durable response cache behind the model gateway.
// Entries are whole-object overwrites keyed by request hash, so a reader can
// never observe a half-written value.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // local filesystem driver
	_ "gocloud.dev/blob/memblob"  // in-memory driver for tests and previews
	"gocloud.dev/gcerrors"
)

// Entry is one cached model response.
type Entry struct {
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the {get, put} capability set over durable cache state, plus the
// clear operation used to force re-classification.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// blobStore persists entries in a gocloud blob bucket, one object per key.
type blobStore struct {
	bucket *blob.Bucket
}

// Open opens a cache store at the given blob URL, e.g.
// "file:///var/voicevault/cache" or "mem://".
func Open(ctx context.Context, bucketURL string) (Store, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open cache bucket %s: %w", bucketURL, err)
	}
	return &blobStore{bucket: bucket}, nil
}

func (s *blobStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := s.bucket.ReadAll(ctx, objectKey(key))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("read cache entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// An unparseable entry is treated as a miss; the fresh response
		// overwrites it.
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *blobStore) Put(ctx context.Context, key string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := s.bucket.WriteAll(ctx, objectKey(key), data, nil); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *blobStore) Clear(ctx context.Context) error {
	iter := s.bucket.List(&blob.ListOptions{})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list cache entries: %w", err)
		}
		if err := s.bucket.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("delete cache entry %s: %w", obj.Key, err)
		}
	}
}

func (s *blobStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.bucket.List(&blob.ListOptions{})
	for {
		_, err := iter.Next(ctx)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("list cache entries: %w", err)
		}
		n++
	}
}

func (s *blobStore) Close() error {
	return s.bucket.Close()
}

func objectKey(key string) string {
	return key + ".json"
}
