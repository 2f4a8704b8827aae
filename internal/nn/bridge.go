package nn

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"outfitcast/internal/config"
	"outfitcast/internal/ragged"
)

// Sample is one JSONL line fed to the external trainer.
type Sample struct {
	Weather [][]float32 `json:"weather"`
	Types   []int32     `json:"types"`
	Tags    [][]int32   `json:"tags"`
	Y       int32       `json:"y"`
}

// TrainOptions are the trainer loop settings plus what the trainer needs to
// build the same architecture this package loads.
type TrainOptions struct {
	Epochs    int
	BatchSize int
	LR        float64
	ValSplit  float64
	Patience  int
	NumTypes  int
	NumTags   int
	Hyper     Hyper
}

// TrainOptionsFromConfig combines the trainer and model sections.
func TrainOptionsFromConfig(cfg config.Config, numTypes, numTags int) TrainOptions {
	return TrainOptions{
		Epochs:    cfg.Trainer.Epochs,
		BatchSize: cfg.Trainer.BatchSize,
		LR:        cfg.Trainer.LearningRate,
		ValSplit:  cfg.Trainer.ValSplit,
		Patience:  cfg.Trainer.Patience,
		NumTypes:  numTypes,
		NumTags:   numTags,
		Hyper:     HyperFromConfig(cfg.Model),
	}
}

// Train calls the trainer binary with JSONL samples to produce a checkpoint
// at outPath. The dataset must be labelled.
func Train(ctx context.Context, binaryPath, outPath string, ds *ragged.Dataset, opts TrainOptions) error {
	if ds.Labels == nil {
		return errors.New("train: dataset has no labels")
	}
	if ds.Len() == 0 {
		return fmt.Errorf("train: %w", ErrEmptyBatch)
	}
	if err := ds.Check(); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	hyper, err := json.Marshal(opts.Hyper)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	enc := json.NewEncoder(w)
	for i := 0; i < ds.Len(); i++ {
		s := Sample{Weather: ds.Weather[i], Types: ds.Types[i], Tags: ds.Tags[i], Y: ds.Labels[i]}
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, binaryPath, "train",
		"--out", outPath,
		"--items", fmt.Sprint(ds.Extents.Items),
		"--tags", fmt.Sprint(ds.Extents.Tags),
		"--features", fmt.Sprint(ds.Features),
		"--num-types", fmt.Sprint(opts.NumTypes),
		"--num-tags", fmt.Sprint(opts.NumTags),
		"--epochs", fmt.Sprint(opts.Epochs),
		"--batch-size", fmt.Sprint(opts.BatchSize),
		"--lr", fmt.Sprint(opts.LR),
		"--val-split", fmt.Sprint(opts.ValSplit),
		"--patience", fmt.Sprint(opts.Patience),
		"--hyper", string(hyper),
	)
	cmd.Stdin = &buf
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("train error: %v: %s", err, string(out))
	}
	return nil
}
