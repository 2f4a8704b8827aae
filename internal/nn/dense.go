package nn

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrEmptyBatch is returned when a forward pass gets no rows.
var ErrEmptyBatch = errors.New("empty batch")

// Activation selects the nonlinearity applied after a Dense projection.
type Activation int

const (
	Linear Activation = iota
	ReLU
	LeakyReLU
	Sigmoid
)

// Dense is y = act(xW + b). W is in x out, B is 1 x out.
type Dense struct {
	W     *mat.Dense
	B     *mat.Dense
	Act   Activation
	Slope float64 // negative slope for LeakyReLU
}

// NewDense builds a layer with Glorot-uniform weights and zero bias.
func NewDense(in, out int, act Activation, rng *rand.Rand) *Dense {
	return &Dense{W: glorot(in, out, rng), B: mat.NewDense(1, out, nil), Act: act}
}

// Forward applies the layer to a batch x (rows are samples).
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	r, _ := x.Dims()
	_, out := d.W.Dims()
	y := mat.NewDense(r, out, nil)
	y.Mul(x, d.W)
	bias := d.B.RawRowView(0)
	y.Apply(func(_, j int, v float64) float64 { return d.activate(v + bias[j]) }, y)
	return y
}

func (d *Dense) activate(v float64) float64 {
	switch d.Act {
	case ReLU:
		return math.Max(0, v)
	case LeakyReLU:
		if v < 0 {
			return d.Slope * v
		}
		return v
	case Sigmoid:
		return 1 / (1 + math.Exp(-v))
	default:
		return v
	}
}

func glorot(in, out int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(in, out, data)
}

func uniform(r, c int, limit float64, rng *rand.Rand) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(r, c, data)
}

// dropout zeroes each entry with probability p and rescales survivors by 1/(1-p).
func dropout(x *mat.Dense, p float64, rng *rand.Rand) {
	if p <= 0 {
		return
	}
	keep := 1 - p
	x.Apply(func(_, _ int, v float64) float64 {
		if rng.Float64() < p {
			return 0
		}
		return v / keep
	}, x)
}
