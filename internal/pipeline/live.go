package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outfitcast/internal/logging"
	"outfitcast/internal/metrics"
	"outfitcast/internal/model"
	"outfitcast/internal/ragged"
	"outfitcast/internal/store/sqlitedoc"
	"outfitcast/internal/weather"
)

// ErrNoOutfits is returned when a user has nothing the model can score.
var ErrNoOutfits = errors.New("no scorable outfits")

// DefaultThreshold is used when no calibrated threshold is stored.
const DefaultThreshold = 0.5

// OutfitStore is the part of the document store the live flow reads and writes.
type OutfitStore interface {
	OutfitsForUser(ctx context.Context, userID string) ([]sqlitedoc.StoredOutfit, error)
	PutPredictions(ctx context.Context, ps []sqlitedoc.Prediction) error
}

// Scorer is satisfied by *nn.Classifier.
type Scorer interface {
	Predict(ds *ragged.Dataset) ([]float64, error)
}

// LiveBatch is one request's normalized batch and the rows it came from.
type LiveBatch struct {
	Dataset *ragged.Dataset
	Outfits []sqlitedoc.StoredOutfit
	Weather [][]float32
}

// BuildLiveBatch pairs each of the user's outfits with today's forecast for
// location and pads them to ext, the extents the model was trained on. An
// outfit larger than ext fails the whole request with ragged.ErrExtentsExceeded.
func BuildLiveBatch(ctx context.Context, store OutfitStore, provider weather.Provider, userID, location string, ext model.Extents) (*LiveBatch, error) {
	rows, err := store.OutfitsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	fc, err := provider.Forecast(ctx, location)
	if err != nil {
		return nil, err
	}
	w, err := fc.Today()
	if err != nil {
		return nil, fmt.Errorf("forecast for %s: %w", location, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNoOutfits)
	}
	b := &LiveBatch{Weather: w, Outfits: rows}
	outfits := make([]model.Outfit, len(rows))
	for i, r := range rows {
		o := r.Outfit
		o.Weather = w
		o.Label = nil
		outfits[i] = o
	}
	start := time.Now()
	metrics.NormalizeRuns.Inc()
	ds, err := ragged.NormalizeWithExtents(outfits, ext)
	if err != nil {
		metrics.NormalizeErrors.Inc()
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	metrics.OutfitsNormalized.Add(float64(ds.Len()))
	metrics.ObserveNormalizeDuration(start)
	b.Dataset = ds
	return b, nil
}

// Scored is one outfit's probability and the decision at the threshold.
type Scored struct {
	OutfitID    int64
	Probability float64
	Wear        bool
}

// Predictor scores a user's outfits against the live forecast.
type Predictor struct {
	Store     OutfitStore
	Provider  weather.Provider
	Model     Scorer
	Extents   model.Extents
	Threshold float64
	Now       func() time.Time
}

// Predict returns scores in outfit order and logs each served prediction.
func (p *Predictor) Predict(ctx context.Context, userID, location string) ([]Scored, error) {
	b, err := BuildLiveBatch(ctx, p.Store, p.Provider, userID, location, p.Extents)
	if err != nil {
		return nil, err
	}
	probs, err := p.Model.Predict(b.Dataset)
	if err != nil {
		return nil, err
	}
	thr := p.Threshold
	if thr <= 0 {
		thr = DefaultThreshold
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	ts := now().UTC()
	out := make([]Scored, len(probs))
	logged := make([]sqlitedoc.Prediction, len(probs))
	for i, prob := range probs {
		id := b.Outfits[i].ID
		out[i] = Scored{OutfitID: id, Probability: prob, Wear: prob >= thr}
		logged[i] = sqlitedoc.Prediction{TS: ts, OutfitID: id, Location: location, Weather: b.Weather, Probability: prob}
	}
	if err := p.Store.PutPredictions(ctx, logged); err != nil {
		return nil, err
	}
	metrics.Predictions.Add(float64(len(out)))
	logging.Info("predict", map[string]any{"user": userID, "location": location, "outfits": len(out), "threshold": thr})
	return out, nil
}
