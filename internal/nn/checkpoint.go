package nn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// CheckpointVersion is bumped when parameter names or layout change.
const CheckpointVersion = 1

// ErrCheckpointVersion is returned for checkpoints written by another layout.
var ErrCheckpointVersion = errors.New("unsupported checkpoint version")

// Tensor is a row-major matrix as stored in a checkpoint.
type Tensor struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// Checkpoint carries the weights together with the extents they were trained
// on. The external trainer writes the same document.
type Checkpoint struct {
	Version int               `json:"version"`
	Shape   Shape             `json:"shape"`
	Hyper   Hyper             `json:"hyper"`
	Params  map[string]Tensor `json:"params"`

	// Threshold is the calibrated decision threshold, 0 when uncalibrated.
	Threshold float64 `json:"threshold,omitempty"`
}

func (c *Classifier) params() map[string]*mat.Dense {
	p := map[string]*mat.Dense{
		"type_embedding": c.TypeEmb.Table,
		"tag_embedding":  c.TagEmb.Table,
		"conv.kernel":    c.Weather.Conv.K,
		"conv.bias":      c.Weather.Conv.B,
		"weather.w":      c.Weather.Proj.W,
		"weather.b":      c.Weather.Proj.B,
		"out.w":          c.Out.W,
		"out.b":          c.Out.B,
	}
	for i, l := range c.Hidden {
		p[fmt.Sprintf("hidden.%d.w", i)] = l.W
		p[fmt.Sprintf("hidden.%d.b", i)] = l.B
	}
	return p
}

// Checkpoint snapshots the classifier.
func (c *Classifier) Checkpoint() *Checkpoint {
	cp := &Checkpoint{Version: CheckpointVersion, Shape: c.Shape, Hyper: c.Hyper, Params: map[string]Tensor{}}
	for name, m := range c.params() {
		r, k := m.Dims()
		data := make([]float64, 0, r*k)
		for i := 0; i < r; i++ {
			data = append(data, m.RawRowView(i)...)
		}
		cp.Params[name] = Tensor{Rows: r, Cols: k, Data: data}
	}
	return cp
}

// FromCheckpoint rebuilds a classifier. Every parameter must be present with
// the shape the stored Shape and Hyper imply.
func FromCheckpoint(cp *Checkpoint) (*Classifier, error) {
	if cp.Version != CheckpointVersion {
		return nil, fmt.Errorf("version %d: %w", cp.Version, ErrCheckpointVersion)
	}
	c, err := New(cp.Shape, cp.Hyper)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	for name, m := range c.params() {
		t, ok := cp.Params[name]
		if !ok {
			return nil, fmt.Errorf("checkpoint: missing %s", name)
		}
		r, k := m.Dims()
		if t.Rows != r || t.Cols != k || len(t.Data) != r*k {
			return nil, fmt.Errorf("checkpoint: %s is %dx%d (%d values), want %dx%d", name, t.Rows, t.Cols, len(t.Data), r, k)
		}
		for i := 0; i < r; i++ {
			copy(m.RawRowView(i), t.Data[i*k:(i+1)*k])
		}
	}
	return c, nil
}

// Encode writes cp as JSON.
func (cp *Checkpoint) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(cp)
}

// DecodeCheckpoint reads a JSON checkpoint.
func DecodeCheckpoint(r io.Reader) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.NewDecoder(r).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// ReadCheckpoint loads a checkpoint file.
func ReadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCheckpoint(f)
}

// WriteCheckpoint saves a checkpoint file.
func WriteCheckpoint(path string, cp *Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := cp.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
