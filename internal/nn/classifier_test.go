package nn

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"outfitcast/internal/config"
	"outfitcast/internal/model"
	"outfitcast/internal/ragged"
	"outfitcast/internal/weather"
)

func testOutfits(rng *rand.Rand, n, features int) []model.Outfit {
	out := make([]model.Outfit, n)
	for i := range out {
		items := 1 + rng.Intn(3)
		o := model.Outfit{Label: model.Labelled(int32(i % 2))}
		for j := 0; j < items; j++ {
			o.TypeIDs = append(o.TypeIDs, int32(1+rng.Intn(5)))
			tags := make([]int32, rng.Intn(4))
			for k := range tags {
				tags[k] = int32(1 + rng.Intn(6))
			}
			o.TagIDLists = append(o.TagIDLists, tags)
		}
		for h := 0; h < weather.Hours; h++ {
			row := make([]float32, features)
			for f := range row {
				row[f] = rng.Float32()
			}
			o.Weather = append(o.Weather, row)
		}
		out[i] = o
	}
	return out
}

func testHyper() Hyper {
	h := HyperFromConfig(config.Default().Model)
	h.EmbedDim = 4
	h.ConvFilters = 3
	h.WeatherOut = 5
	h.Hidden = []int{8, 4}
	h.UseTags = true
	return h
}

func testBatch(t *testing.T) (*ragged.Dataset, Shape) {
	t.Helper()
	ds, err := ragged.Normalize(testOutfits(rand.New(rand.NewSource(3)), 6, 4))
	require.NoError(t, err)
	return ds, Shape{Extents: ds.Extents, NumTypes: 5, NumTags: 6, Features: ds.Features}
}

func TestPredictIsDeterministicAndBounded(t *testing.T) {
	ds, shape := testBatch(t)
	a, err := New(shape, testHyper())
	require.NoError(t, err)
	b, err := New(shape, testHyper())
	require.NoError(t, err)

	pa, err := a.Predict(ds)
	require.NoError(t, err)
	pb, err := b.Predict(ds)
	require.NoError(t, err)
	require.Len(t, pa, ds.Len())
	require.Equal(t, pa, pb)
	for _, p := range pa {
		require.Greater(t, p, 0.0)
		require.Less(t, p, 1.0)
	}
	again, err := a.Predict(ds)
	require.NoError(t, err)
	require.Equal(t, pa, again)
}

func TestTrainingForwardAppliesDropout(t *testing.T) {
	ds, shape := testBatch(t)
	h := testHyper()
	h.Dropout = 0.9
	c, err := New(shape, h)
	require.NoError(t, err)
	eval, err := c.Forward(ds, false)
	require.NoError(t, err)
	train, err := c.Forward(ds, true)
	require.NoError(t, err)
	require.NotEqual(t, eval.RawMatrix().Data, train.RawMatrix().Data)
}

func TestForwardRefusesOtherExtents(t *testing.T) {
	ds, shape := testBatch(t)
	shape.Extents.Tags++
	c, err := New(shape, testHyper())
	require.NoError(t, err)
	_, err = c.Predict(ds)
	require.ErrorIs(t, err, ErrExtentMismatch)

	_, shape = testBatch(t)
	shape.Features++
	c, err = New(shape, testHyper())
	require.NoError(t, err)
	_, err = c.Predict(ds)
	require.ErrorIs(t, err, ErrExtentMismatch)
}

func TestNewValidates(t *testing.T) {
	_, shape := testBatch(t)
	h := testHyper()
	h.Aggregation = "max"
	_, err := New(shape, h)
	require.ErrorIs(t, err, ErrUnknownAggregation)

	h = testHyper()
	h.ConvKernel = 25
	_, err = New(shape, h)
	require.Error(t, err)

	zero := shape
	zero.Extents.Items = 0
	_, err = New(zero, testHyper())
	require.Error(t, err)
}

func TestPenalty(t *testing.T) {
	_, shape := testBatch(t)
	c, err := New(shape, testHyper())
	require.NoError(t, err)
	require.Greater(t, c.Penalty(), 0.0)

	h := testHyper()
	h.L2 = 0
	c, err = New(shape, h)
	require.NoError(t, err)
	require.Zero(t, c.Penalty())
}

func TestCheckpointRoundTrip(t *testing.T) {
	ds, shape := testBatch(t)
	h := testHyper()
	c, err := New(shape, h)
	require.NoError(t, err)
	want, err := c.Predict(ds)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Checkpoint().Encode(&buf))
	cp, err := DecodeCheckpoint(&buf)
	require.NoError(t, err)
	require.Equal(t, ds.Extents, cp.Shape.Extents)

	// a different seed proves the weights come from the checkpoint
	cp.Hyper.Seed = 99
	restored, err := FromCheckpoint(cp)
	require.NoError(t, err)
	got, err := restored.Predict(ds)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFromCheckpointRejectsBadDocuments(t *testing.T) {
	_, shape := testBatch(t)
	c, err := New(shape, testHyper())
	require.NoError(t, err)

	cp := c.Checkpoint()
	cp.Version = 0
	_, err = FromCheckpoint(cp)
	require.ErrorIs(t, err, ErrCheckpointVersion)

	cp = c.Checkpoint()
	delete(cp.Params, "out.w")
	_, err = FromCheckpoint(cp)
	require.ErrorContains(t, err, "out.w")

	cp = c.Checkpoint()
	cp.Shape.Extents.Items++
	_, err = FromCheckpoint(cp)
	require.Error(t, err)
}

func TestWeatherEncoderShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	enc, err := NewWeatherEncoder(2, 3, 4, 5, rng)
	require.NoError(t, err)
	require.Equal(t, 22, enc.Conv.Positions(weather.Hours))
	batch := [][][]float32{make([][]float32, weather.Hours)}
	for h := range batch[0] {
		batch[0][h] = []float32{1, -1}
	}
	out, err := enc.Encode(batch)
	require.NoError(t, err)
	r, c := out.Dims()
	require.Equal(t, 1, r)
	require.Equal(t, 5, c)
	for _, v := range out.RawRowView(0) {
		require.GreaterOrEqual(t, v, 0.0)
	}

	batch[0][3] = []float32{1}
	_, err = enc.Encode(batch)
	require.ErrorIs(t, err, ErrExtentMismatch)

	_, err = NewWeatherEncoder(2, 0, 4, 5, rng)
	require.Error(t, err)
}
