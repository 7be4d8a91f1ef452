// v0
// internal/recorder/recorder.go
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nrgchamp/greenhouse/internal/metrics"
	"nrgchamp/greenhouse/internal/model"
)

const (
	keySensorData  = "sensor-data"
	keySensorStats = "sensor-stats"
)

// Recorder stores incoming readings and serves them back, caching the
// rendered responses until the next insert.
type Recorder struct {
	store   Store
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger

	// fillMu orders cache fills against invalidations. gen counts inserts.
	fillMu sync.Mutex
	gen    uint64
}

// New builds a recorder. cache and m may be nil.
func New(store Store, cache Cache, ttl time.Duration, m *metrics.Metrics, log *slog.Logger) *Recorder {
	if cache == nil {
		cache = noCache{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, cache: cache, ttl: ttl, metrics: m, log: log.With(slog.String("component", "recorder"))}
}

// Ingest decodes one message and inserts it.
func (r *Recorder) Ingest(ctx context.Context, payload []byte) error {
	reading, err := model.DecodeReading(payload)
	if err != nil {
		r.metrics.MessageIngested("invalid")
		return err
	}
	row := RowFromReading(reading)
	if err := r.store.Insert(ctx, &row); err != nil {
		r.metrics.MessageIngested("store_error")
		return fmt.Errorf("insert sensor %d: %w", reading.SensorID, err)
	}
	r.metrics.MessageIngested("stored")
	r.log.Debug("reading_stored", slog.Uint64("row_id", uint64(row.ID)), slog.Int("sensor", row.SensorID))
	r.fillMu.Lock()
	r.gen++
	err = r.cache.Delete(ctx, keySensorData, keySensorStats)
	r.fillMu.Unlock()
	if err != nil {
		r.log.Warn("cache_invalidate_failed", slog.Any("err", err))
	}
	return nil
}

// SensorData returns every stored row as a JSON array.
func (r *Recorder) SensorData(ctx context.Context) ([]byte, error) {
	return r.cached(ctx, keySensorData, func() (any, error) {
		rows, err := r.store.All(ctx)
		if rows == nil {
			rows = []Row{}
		}
		return rows, err
	})
}

// SensorStats returns per-sensor aggregates as a JSON array.
func (r *Recorder) SensorStats(ctx context.Context) ([]byte, error) {
	return r.cached(ctx, keySensorStats, func() (any, error) {
		stats, err := r.store.Stats(ctx)
		if stats == nil {
			stats = []SensorStats{}
		}
		return stats, err
	})
}

func (r *Recorder) cached(ctx context.Context, key string, load func() (any, error)) ([]byte, error) {
	if b, ok, err := r.cache.Get(ctx, key); err != nil {
		r.log.Warn("cache_get_failed", slog.String("key", key), slog.Any("err", err))
	} else if ok {
		r.metrics.CacheHit()
		return b, nil
	}
	r.metrics.CacheMiss()

	r.fillMu.Lock()
	gen := r.gen
	r.fillMu.Unlock()
	v, err := load()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	// An insert that landed during load may not be in b; skip the fill.
	r.fillMu.Lock()
	defer r.fillMu.Unlock()
	if r.gen != gen {
		r.log.Debug("cache_fill_skipped", slog.String("key", key))
		return b, nil
	}
	if err := r.cache.Set(ctx, key, b, r.ttl); err != nil {
		r.log.Warn("cache_set_failed", slog.String("key", key), slog.Any("err", err))
	}
	return b, nil
}
