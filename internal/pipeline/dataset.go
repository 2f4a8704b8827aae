// Package pipeline wires record sources, the ragged normalizer, the tensor
// cache and the classifier into the offline and live flows.
package pipeline

import (
	"context"
	"errors"
	"time"

	"outfitcast/internal/dataset"
	"outfitcast/internal/logging"
	"outfitcast/internal/metrics"
	"outfitcast/internal/model"
	"outfitcast/internal/ragged"
)

// Reader yields outfit records. corpus.Dir is the file-backed implementation.
type Reader interface {
	Outfits(ctx context.Context) ([]model.Outfit, error)
}

// Normalize pads outfits and records the run.
func Normalize(outfits []model.Outfit) (*ragged.Dataset, error) {
	start := time.Now()
	metrics.NormalizeRuns.Inc()
	ds, err := ragged.Normalize(outfits)
	if err != nil {
		metrics.NormalizeErrors.Inc()
		return nil, err
	}
	metrics.OutfitsNormalized.Add(float64(ds.Len()))
	metrics.ObserveNormalizeDuration(start)
	logging.Info("normalize", map[string]any{"outfits": ds.Len(), "items": ds.Extents.Items, "tags": ds.Extents.Tags, "features": ds.Features})
	return ds, nil
}

// LoadDataset returns the cached tensors when all artifacts are present and
// otherwise reads src, normalizes and stores the result. The second return
// reports a cache hit.
func LoadDataset(ctx context.Context, cache *dataset.Cache, src Reader) (*ragged.Dataset, bool, error) {
	ds, err := cache.Load()
	if err == nil {
		metrics.IncCacheLookup("hit")
		logging.Info("dataset_cache_hit", map[string]any{"dir": cache.Dir, "outfits": ds.Len()})
		return ds, true, nil
	}
	if !errors.Is(err, dataset.ErrCacheMiss) {
		return nil, false, err
	}
	metrics.IncCacheLookup("miss")
	outfits, err := src.Outfits(ctx)
	if err != nil {
		return nil, false, err
	}
	ds, err = Normalize(outfits)
	if err != nil {
		return nil, false, err
	}
	if err := cache.Store(ds); err != nil {
		if !errors.Is(err, dataset.ErrEmptyAxis) {
			return nil, false, err
		}
		logging.Warn("dataset_cache_skipped", map[string]any{"dir": cache.Dir, "error": err.Error()})
		return ds, false, nil
	}
	logging.Info("dataset_cache_store", map[string]any{"dir": cache.Dir, "bytes": cache.Size()})
	return ds, false, nil
}
