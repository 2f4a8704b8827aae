package nn

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"outfitcast/internal/model"
)

var (
	// ErrUnknownAggregation is returned at construction for modes other than sum and mean.
	ErrUnknownAggregation = errors.New("aggregation must be sum or mean")
	// ErrUnknownID is returned for ids outside [1, N], including the padding id.
	ErrUnknownID = errors.New("id has no embedding")
	// ErrExtentMismatch is returned when a batch was padded to different extents than the model.
	ErrExtentMismatch = errors.New("batch extents differ from model extents")
)

// meanEpsilon guards the mean of an item with no real tags.
const meanEpsilon = 1e-8

// Embedding is a lookup table for ids in [1, N]. Row 0 exists so ids index
// rows directly, but it is never read.
type Embedding struct {
	Table *mat.Dense // (N+1) x D
}

// NewEmbedding builds a table for n categories of width dim.
func NewEmbedding(n, dim int, rng *rand.Rand) *Embedding {
	t := uniform(n+1, dim, 0.05, rng)
	for j := 0; j < dim; j++ {
		t.Set(int(model.PadID), j, 0)
	}
	return &Embedding{Table: t}
}

// Len is N, the number of real categories.
func (e *Embedding) Len() int {
	r, _ := e.Table.Dims()
	return r - 1
}

// Dim is the embedding width D.
func (e *Embedding) Dim() int {
	_, c := e.Table.Dims()
	return c
}

// Vector returns the embedding of a real id. The padding id is refused.
func (e *Embedding) Vector(id int32) ([]float64, error) {
	if id == model.PadID {
		return nil, fmt.Errorf("padding id %d looked up as a real category: %w", id, ErrUnknownID)
	}
	if id < 1 || int(id) > e.Len() {
		return nil, fmt.Errorf("id %d outside [1,%d]: %w", id, e.Len(), ErrUnknownID)
	}
	return e.Table.RawRowView(int(id)), nil
}

// Aggregation combines the embeddings along the tag axis.
type Aggregation int

const (
	Sum Aggregation = iota + 1
	Mean
)

func (a Aggregation) String() string {
	switch a {
	case Sum:
		return "sum"
	case Mean:
		return "mean"
	}
	return fmt.Sprintf("Aggregation(%d)", int(a))
}

// ParseAggregation accepts "sum" and "mean".
func ParseAggregation(s string) (Aggregation, error) {
	switch s {
	case "sum":
		return Sum, nil
	case "mean":
		return Mean, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownAggregation)
}

// MaskedAggregator embeds padded id tensors and aggregates only real entries.
// Its output width is Items*D, so Items must match the extents the data was
// padded with.
type MaskedAggregator struct {
	emb   *Embedding
	mode  Aggregation
	items int
}

// NewMaskedAggregator validates mode up front; a bad mode never reaches a forward pass.
func NewMaskedAggregator(emb *Embedding, mode string, items int) (*MaskedAggregator, error) {
	m, err := ParseAggregation(mode)
	if err != nil {
		return nil, err
	}
	if items < 1 {
		return nil, fmt.Errorf("items extent %d: must be at least 1", items)
	}
	return &MaskedAggregator{emb: emb, mode: m, items: items}, nil
}

// Mode is the configured aggregation.
func (a *MaskedAggregator) Mode() Aggregation { return a.mode }

// OutputDim is Items*D.
func (a *MaskedAggregator) OutputDim() int { return a.items * a.emb.Dim() }

// embed returns the embedding for id and a mask value: 0 and a zero vector for padding.
func (a *MaskedAggregator) embed(id int32, zero []float64) ([]float64, float64, error) {
	if id == model.PadID {
		return zero, 0, nil
	}
	v, err := a.emb.Vector(id)
	if err != nil {
		return nil, 0, err
	}
	return v, 1, nil
}

// Aggregate maps ids [B][Items][T] to a B x Items*D matrix. Each item's tag
// embeddings are masked, then summed or averaged over real tags.
func (a *MaskedAggregator) Aggregate(ids [][][]int32) (*mat.Dense, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	d := a.emb.Dim()
	zero := make([]float64, d)
	out := mat.NewDense(len(ids), a.OutputDim(), nil)
	for b, outfit := range ids {
		if len(outfit) != a.items {
			return nil, fmt.Errorf("outfit %d has %d items, model has %d: %w", b, len(outfit), a.items, ErrExtentMismatch)
		}
		row := out.RawRowView(b)
		for j, tags := range outfit {
			acc := row[j*d : (j+1)*d]
			count := 0.0
			for _, id := range tags {
				v, m, err := a.embed(id, zero)
				if err != nil {
					return nil, fmt.Errorf("outfit %d item %d: %w", b, j, err)
				}
				for k := range acc {
					acc[k] += v[k] * m
				}
				count += m
			}
			if a.mode == Mean {
				for k := range acc {
					acc[k] /= count + meanEpsilon
				}
			}
		}
	}
	return out, nil
}

// Flatten maps single-level ids [B][Items] to a B x Items*D matrix with
// padding slots left at zero.
func (a *MaskedAggregator) Flatten(ids [][]int32) (*mat.Dense, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	d := a.emb.Dim()
	zero := make([]float64, d)
	out := mat.NewDense(len(ids), a.OutputDim(), nil)
	for b, items := range ids {
		if len(items) != a.items {
			return nil, fmt.Errorf("outfit %d has %d items, model has %d: %w", b, len(items), a.items, ErrExtentMismatch)
		}
		row := out.RawRowView(b)
		for j, id := range items {
			v, m, err := a.embed(id, zero)
			if err != nil {
				return nil, fmt.Errorf("outfit %d item %d: %w", b, j, err)
			}
			acc := row[j*d : (j+1)*d]
			for k := range acc {
				acc[k] = v[k] * m
			}
		}
	}
	return out, nil
}
