package features

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/myaudio"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

// Cache keeps embeddings in memory, keyed by front end, path, size and
// modification time. It is never persisted.
type Cache struct {
	store    *cache.Cache
	metrics  *metrics.TrainingMetrics
	recorder metrics.Recorder
}

// NewCache creates a cache whose entries expire after ttl. m may be nil.
func NewCache(ttl time.Duration, m *metrics.TrainingMetrics) *Cache {
	c := &Cache{
		store:    cache.New(ttl, ttl*2),
		metrics:  m,
		recorder: metrics.NoopRecorder{},
	}
	if m != nil {
		c.recorder = m
	}
	return c
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

func cacheKey(p Params, path string, fi os.FileInfo) string {
	return fmt.Sprintf("%+v|%s|%d|%d", p, path, fi.Size(), fi.ModTime().UnixNano())
}

// EmbedFile decodes path and embeds it with ex, consulting the cache first.
// A nil Cache always decodes.
func (c *Cache) EmbedFile(ctx context.Context, ex Extractor, path string) ([]float64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(err).
			Component("features").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	var key string
	if c != nil {
		key = cacheKey(ex.Params(), path, fi)
		if v, found := c.store.Get(key); found {
			if c.metrics != nil {
				c.metrics.RecordCacheLookup(true)
			}
			return v.([]float64), nil
		}
		if c.metrics != nil {
			c.metrics.RecordCacheLookup(false)
		}
	}

	start := time.Now()
	clip, err := myaudio.ReadFile(path)
	if err != nil {
		return nil, err
	}
	emb, err := ex.Embed(ctx, clip)
	if err != nil {
		if c != nil {
			c.recorder.RecordError(metrics.OpFeatures, string(errors.CategoryAudio))
		}
		return nil, err
	}

	if c != nil {
		c.recorder.RecordOperation(metrics.OpFeatures, metrics.StatusSuccess)
		c.recorder.RecordDuration(metrics.OpFeatures, time.Since(start).Seconds())
		c.store.Set(key, emb, cache.DefaultExpiration)
	}
	return emb, nil
}

// EmbedFiles embeds paths in order, stopping at the first error or when
// ctx is cancelled.
func (c *Cache) EmbedFiles(ctx context.Context, ex Extractor, paths []string) ([][]float64, error) {
	out := make([][]float64, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err).
				Component("features").
				Category(errors.CategoryCancellation).
				Build()
		}
		emb, err := c.EmbedFile(ctx, ex, path)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	GetLogger().Debug("embedded files",
		logger.String("family", ex.Params().Family),
		logger.Int("files", len(paths)),
		logger.Int("dim", ex.Dim()))
	return out, nil
}
