// Package nn holds the forward pass of the outfit/weather classifier: masked
// embedding aggregation over padded id tensors, a convolutional weather
// encoder and a dense stack with a sigmoid output. Training runs in an
// external binary fed through Train; this package loads what it writes.
package nn

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"outfitcast/internal/config"
	"outfitcast/internal/model"
	"outfitcast/internal/ragged"
)

// Hyper are the architecture knobs. They are stored with the weights.
type Hyper struct {
	EmbedDim    int     `json:"embed_dim"`
	Aggregation string  `json:"aggregation"`
	UseTags     bool    `json:"use_tags"`
	ConvFilters int     `json:"conv_filters"`
	ConvKernel  int     `json:"conv_kernel"`
	WeatherOut  int     `json:"weather_out"`
	Hidden      []int   `json:"hidden"`
	Dropout     float64 `json:"dropout"`
	L2          float64 `json:"l2"`
	LeakySlope  float64 `json:"leaky_slope"`
	Seed        int64   `json:"seed"`
}

// HyperFromConfig copies the model section of the config.
func HyperFromConfig(m config.ModelConfig) Hyper {
	return Hyper{
		EmbedDim:    m.EmbedDim,
		Aggregation: m.Aggregation,
		UseTags:     m.UseTags,
		ConvFilters: m.ConvFilters,
		ConvKernel:  m.ConvKernel,
		WeatherOut:  m.WeatherOut,
		Hidden:      append([]int(nil), m.Hidden...),
		Dropout:     m.Dropout,
		L2:          m.L2,
		LeakySlope:  m.LeakySlope,
		Seed:        m.Seed,
	}
}

// Shape is what the data fixes: padding extents, catalog sizes and weather width.
type Shape struct {
	Extents  model.Extents `json:"extents"`
	NumTypes int           `json:"num_types"`
	NumTags  int           `json:"num_tags"`
	Features int           `json:"features"`
}

func (s Shape) validate() error {
	if s.Extents.Items < 1 {
		return fmt.Errorf("items extent %d: need at least one item slot", s.Extents.Items)
	}
	if s.NumTypes < 1 || s.NumTags < 1 {
		return fmt.Errorf("catalog sizes types=%d tags=%d: must be positive", s.NumTypes, s.NumTags)
	}
	if s.Features < 1 {
		return errors.New("weather has no features")
	}
	return nil
}

// Classifier scores outfits against the day's weather.
type Classifier struct {
	Shape Shape
	Hyper Hyper

	TypeEmb *Embedding
	TagEmb  *Embedding
	Weather *WeatherEncoder
	Hidden  []*Dense
	Out     *Dense

	types *MaskedAggregator
	tags  *MaskedAggregator
	rng   *rand.Rand
}

// New builds a classifier with freshly initialised weights seeded by h.Seed.
func New(s Shape, h Hyper) (*Classifier, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if h.EmbedDim < 1 || h.ConvFilters < 1 || h.WeatherOut < 1 {
		return nil, errors.New("embed dim, conv filters and weather out must be positive")
	}
	if h.Dropout < 0 || h.Dropout >= 1 {
		return nil, fmt.Errorf("dropout %v outside [0,1)", h.Dropout)
	}
	rng := rand.New(rand.NewSource(h.Seed))
	c := &Classifier{Shape: s, Hyper: h, rng: rng}

	c.TypeEmb = NewEmbedding(s.NumTypes, h.EmbedDim, rng)
	c.TagEmb = NewEmbedding(s.NumTags, h.EmbedDim, rng)
	var err error
	// Types have no inner axis; the mode only matters for tags.
	if c.types, err = NewMaskedAggregator(c.TypeEmb, h.Aggregation, s.Extents.Items); err != nil {
		return nil, err
	}
	if c.tags, err = NewMaskedAggregator(c.TagEmb, h.Aggregation, s.Extents.Items); err != nil {
		return nil, err
	}
	if c.Weather, err = NewWeatherEncoder(s.Features, h.ConvKernel, h.ConvFilters, h.WeatherOut, rng); err != nil {
		return nil, err
	}

	in := c.Weather.OutputDim() + c.types.OutputDim()
	if h.UseTags {
		in += c.tags.OutputDim()
	}
	for _, width := range h.Hidden {
		if width < 1 {
			return nil, fmt.Errorf("hidden width %d", width)
		}
		l := NewDense(in, width, LeakyReLU, rng)
		l.Slope = h.LeakySlope
		c.Hidden = append(c.Hidden, l)
		in = width
	}
	c.Out = NewDense(in, 1, Sigmoid, rng)
	return c, nil
}

// InputDim is the width of the concatenated feature row fed to the dense stack.
func (c *Classifier) InputDim() int {
	if len(c.Hidden) > 0 {
		r, _ := c.Hidden[0].W.Dims()
		return r
	}
	r, _ := c.Out.W.Dims()
	return r
}

// Forward returns B x 1 probabilities. Dropout is applied after the first
// hidden layer only when training is true.
func (c *Classifier) Forward(ds *ragged.Dataset, training bool) (*mat.Dense, error) {
	if ds.Len() == 0 {
		return nil, ErrEmptyBatch
	}
	if ds.Extents != c.Shape.Extents {
		return nil, fmt.Errorf("batch padded to %s, model trained on %s: %w", ds.Extents, c.Shape.Extents, ErrExtentMismatch)
	}
	if ds.Features != c.Shape.Features {
		return nil, fmt.Errorf("batch has %d weather features, model has %d: %w", ds.Features, c.Shape.Features, ErrExtentMismatch)
	}

	parts := make([]*mat.Dense, 0, 3)
	w, err := c.Weather.Encode(ds.Weather)
	if err != nil {
		return nil, err
	}
	parts = append(parts, w)
	t, err := c.types.Flatten(ds.Types)
	if err != nil {
		return nil, fmt.Errorf("types: %w", err)
	}
	parts = append(parts, t)
	if c.Hyper.UseTags {
		g, err := c.tags.Aggregate(ds.Tags)
		if err != nil {
			return nil, fmt.Errorf("tags: %w", err)
		}
		parts = append(parts, g)
	}

	x := concat(parts)
	for i, l := range c.Hidden {
		x = l.Forward(x)
		if training && i == 0 {
			dropout(x, c.Hyper.Dropout, c.rng)
		}
	}
	return c.Out.Forward(x), nil
}

// Predict returns one probability per outfit, in batch order.
func (c *Classifier) Predict(ds *ragged.Dataset) ([]float64, error) {
	y, err := c.Forward(ds, false)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, y), nil
}

// Penalty is the L2 term over dense kernels, L2 * sum(w^2).
func (c *Classifier) Penalty() float64 {
	if c.Hyper.L2 == 0 {
		return 0
	}
	sum := 0.0
	for _, l := range append(append([]*Dense{c.Weather.Proj}, c.Hidden...), c.Out) {
		sum += mat.Sum(squared(l.W))
	}
	return c.Hyper.L2 * sum
}

func squared(m *mat.Dense) *mat.Dense {
	var sq mat.Dense
	sq.MulElem(m, m)
	return &sq
}

func concat(parts []*mat.Dense) *mat.Dense {
	rows, _ := parts[0].Dims()
	width := 0
	for _, p := range parts {
		_, c := p.Dims()
		width += c
	}
	out := mat.NewDense(rows, width, nil)
	for i := 0; i < rows; i++ {
		dst := out.RawRowView(i)
		off := 0
		for _, p := range parts {
			off += copy(dst[off:], p.RawRowView(i))
		}
	}
	return out
}
