package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"outfitcast/internal/weather"
)

// Conv1D is a valid-padding 1-D convolution over the hour axis with ReLU.
// Kernels are stored flattened as (K*F) x C so a window row times K gives
// all C filter responses at one position.
type Conv1D struct {
	K      *mat.Dense
	B      *mat.Dense // 1 x C
	Kernel int
}

func newConv1D(features, kernel, filters int, rng *rand.Rand) *Conv1D {
	return &Conv1D{
		K:      glorot(kernel*features, filters, rng),
		B:      mat.NewDense(1, filters, nil),
		Kernel: kernel,
	}
}

// Positions is the number of output steps for a series of the given length.
func (c *Conv1D) Positions(hours int) int { return hours - c.Kernel + 1 }

// Forward maps one 24 x F series to a flattened Positions*C row.
func (c *Conv1D) Forward(series [][]float32, dst []float64) {
	kf, filters := c.K.Dims()
	positions := c.Positions(len(series))
	window := mat.NewDense(positions, kf, nil)
	for p := 0; p < positions; p++ {
		row := window.RawRowView(p)
		for k := 0; k < c.Kernel; k++ {
			for f, v := range series[p+k] {
				row[k*len(series[p+k])+f] = float64(v)
			}
		}
	}
	out := mat.NewDense(positions, filters, nil)
	out.Mul(window, c.K)
	bias := c.B.RawRowView(0)
	for p := 0; p < positions; p++ {
		for j, v := range out.RawRowView(p) {
			dst[p*filters+j] = math.Max(0, v+bias[j])
		}
	}
}

// WeatherEncoder turns a B x 24 x F batch into a B x D_w feature matrix.
type WeatherEncoder struct {
	Conv     *Conv1D
	Proj     *Dense
	Features int
}

// NewWeatherEncoder requires kernel <= 24.
func NewWeatherEncoder(features, kernel, filters, out int, rng *rand.Rand) (*WeatherEncoder, error) {
	if features < 1 {
		return nil, fmt.Errorf("weather encoder: %d features", features)
	}
	if kernel < 1 || kernel > weather.Hours {
		return nil, fmt.Errorf("weather encoder: kernel %d outside [1,%d]", kernel, weather.Hours)
	}
	conv := newConv1D(features, kernel, filters, rng)
	flat := conv.Positions(weather.Hours) * filters
	return &WeatherEncoder{Conv: conv, Proj: NewDense(flat, out, ReLU, rng), Features: features}, nil
}

// OutputDim is D_w.
func (e *WeatherEncoder) OutputDim() int {
	_, c := e.Proj.W.Dims()
	return c
}

// Encode runs the convolution per sample, then the projection on the whole batch.
func (e *WeatherEncoder) Encode(batch [][][]float32) (*mat.Dense, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	flat, _ := e.Proj.W.Dims()
	x := mat.NewDense(len(batch), flat, nil)
	for b, series := range batch {
		if len(series) != weather.Hours {
			return nil, fmt.Errorf("sample %d has %d hours, want %d: %w", b, len(series), weather.Hours, ErrExtentMismatch)
		}
		for h, row := range series {
			if len(row) != e.Features {
				return nil, fmt.Errorf("sample %d hour %d has %d features, model has %d: %w", b, h, len(row), e.Features, ErrExtentMismatch)
			}
		}
		e.Conv.Forward(series, x.RawRowView(b))
	}
	return e.Proj.Forward(x), nil
}
