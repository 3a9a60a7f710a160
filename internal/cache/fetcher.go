// Package cache implements read-through caching of chain metrics on top of a
// durable store, and the scheduler that keeps every cached key warm.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/knowable-run/chain-metrics-gateway/internal/metrics"
	"github.com/knowable-run/chain-metrics-gateway/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CacheKey identifies one logical metric. It doubles as the store key.
type CacheKey string

// Producer computes a fresh value for a key.
type Producer[T any] func(ctx context.Context) (T, error)

// FetchError reports that the producer for Key failed. The previously stored
// value, if any, is left untouched.
type FetchError struct {
	Key CacheKey
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher serves the stored value for Key, or runs Produce and stores the
// result when the value is missing or a refresh is forced. Entries carry no
// TTL; freshness comes from the Scheduler forcing refreshes.
type Fetcher[T any] struct {
	Key     CacheKey
	Produce Producer[T]

	store  store.Store
	logger *zap.Logger
	flight singleflight.Group
}

func NewFetcher[T any](key CacheKey, produce Producer[T], s store.Store, logger *zap.Logger) *Fetcher[T] {
	return &Fetcher[T]{
		Key:     key,
		Produce: produce,
		store:   s,
		logger:  logger.Named("fetcher").With(zap.String("key", string(key))),
	}
}

// Fetch returns the cached value unless forceRefresh is set or nothing is
// stored yet. Concurrent producer runs for the same key are collapsed into one.
func (f *Fetcher[T]) Fetch(ctx context.Context, forceRefresh bool) (T, error) {
	if !forceRefresh {
		v, ok := f.load(ctx)
		if ok {
			metrics.CacheFetches.WithLabelValues(string(f.Key), metrics.ResultHit).Inc()
			f.logger.Debug("Using cached value")
			return v, nil
		}
		metrics.CacheFetches.WithLabelValues(string(f.Key), metrics.ResultMiss).Inc()
	} else {
		metrics.CacheFetches.WithLabelValues(string(f.Key), metrics.ResultRefresh).Inc()
	}

	// The shared run must not die with whichever caller started it, so it
	// gets a context without cancellation. Each caller still stops waiting
	// when its own ctx is done.
	ch := f.flight.DoChan(string(f.Key), func() (interface{}, error) {
		return f.produce(context.WithoutCancel(ctx))
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, &FetchError{Key: f.Key, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// Refresh runs Fetch and discards the value. It lets fetchers of different
// payload types share one Scheduler.
func (f *Fetcher[T]) Refresh(ctx context.Context, force bool) error {
	_, err := f.Fetch(ctx, force)
	return err
}

func (f *Fetcher[T]) load(ctx context.Context) (T, bool) {
	var v T
	data, found, err := f.store.Get(ctx, string(f.Key))
	if err != nil {
		f.logger.Warn("Failed to read cached value, recomputing", zap.Error(err))
		return v, false
	}
	if !found {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		f.logger.Warn("Cached value does not decode, recomputing", zap.Error(err))
		return v, false
	}
	return v, true
}

func (f *Fetcher[T]) produce(ctx context.Context) (T, error) {
	start := time.Now()
	v, err := f.Produce(ctx)
	metrics.CacheRefreshDuration.WithLabelValues(string(f.Key)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CacheFetches.WithLabelValues(string(f.Key), metrics.ResultError).Inc()
		return v, &FetchError{Key: f.Key, Err: err}
	}

	data, err := json.Marshal(v)
	if err != nil {
		metrics.CacheFetches.WithLabelValues(string(f.Key), metrics.ResultError).Inc()
		return v, &FetchError{Key: f.Key, Err: fmt.Errorf("encode value: %w", err)}
	}
	if err := f.store.Set(ctx, string(f.Key), data); err != nil {
		// The fresh value is still good to serve; the next refresh retries the write.
		f.logger.Error("Failed to store value", zap.Error(err))
	} else {
		f.logger.Info("Value cached", zap.Duration("took", time.Since(start)))
	}
	metrics.CacheLastSuccess.WithLabelValues(string(f.Key)).SetToCurrentTime()
	return v, nil
}
