package nn

import (
	"bytes"
	"context"
	"fmt"

	"outfitcast/internal/logging"
	"outfitcast/internal/ragged"
	"outfitcast/internal/store/sqlitedoc"
)

// TrainToStore trains through the external binary, checks the checkpoint it
// wrote against the dataset and registers it under name. A calibrated
// threshold in the checkpoint is saved alongside.
func TrainToStore(ctx context.Context, db *sqlitedoc.DB, ds *ragged.Dataset, binPath, outPath, name string, opts TrainOptions) (*Classifier, int, error) {
	if err := Train(ctx, binPath, outPath, ds, opts); err != nil {
		return nil, 0, err
	}
	cp, err := ReadCheckpoint(outPath)
	if err != nil {
		return nil, 0, err
	}
	if cp.Shape.Extents != ds.Extents || cp.Shape.Features != ds.Features {
		return nil, 0, fmt.Errorf("trainer wrote %s features=%d for data padded to %s features=%d: %w",
			cp.Shape.Extents, cp.Shape.Features, ds.Extents, ds.Features, ErrExtentMismatch)
	}
	clf, err := FromCheckpoint(cp)
	if err != nil {
		return nil, 0, err
	}
	var blob bytes.Buffer
	if err := cp.Encode(&blob); err != nil {
		return nil, 0, err
	}
	version, err := db.SaveModel(ctx, sqlitedoc.ModelRecord{Name: name, Extents: cp.Shape.Extents, Features: cp.Shape.Features, Checkpoint: blob.Bytes()})
	if err != nil {
		return nil, 0, err
	}
	if cp.Threshold > 0 {
		if err := db.SaveThreshold(ctx, name, cp.Threshold); err != nil {
			return nil, 0, err
		}
	}
	logging.Info("model_registered", map[string]any{
		"name":       name,
		"version":    version,
		"extents":    cp.Shape.Extents.String(),
		"l2_penalty": clf.Penalty(),
		"threshold":  cp.Threshold,
	})
	return clf, version, nil
}

// LoadFromStore decodes the latest checkpoint registered under name.
func LoadFromStore(ctx context.Context, db *sqlitedoc.DB, name string) (*Classifier, error) {
	rec, err := db.LoadModel(ctx, name)
	if err != nil {
		return nil, err
	}
	cp, err := DecodeCheckpoint(bytes.NewReader(rec.Checkpoint))
	if err != nil {
		return nil, err
	}
	return FromCheckpoint(cp)
}
