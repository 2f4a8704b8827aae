package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func testEmbedding(t *testing.T) *Embedding {
	t.Helper()
	return NewEmbedding(4, 3, rand.New(rand.NewSource(7)))
}

func TestParseAggregation(t *testing.T) {
	for _, s := range []string{"sum", "mean"} {
		a, err := ParseAggregation(s)
		require.NoError(t, err)
		require.Equal(t, s, a.String())
	}
	_, err := ParseAggregation("max")
	require.ErrorIs(t, err, ErrUnknownAggregation)

	_, err = NewMaskedAggregator(testEmbedding(t), "median", 2)
	require.ErrorIs(t, err, ErrUnknownAggregation)
}

func TestAggregateFullyPaddedItemIsZero(t *testing.T) {
	emb := testEmbedding(t)
	for _, mode := range []string{"sum", "mean"} {
		agg, err := NewMaskedAggregator(emb, mode, 2)
		require.NoError(t, err)
		out, err := agg.Aggregate([][][]int32{{{1, 2, 0}, {0, 0, 0}}})
		require.NoError(t, err)
		row := out.RawRowView(0)
		require.Len(t, row, agg.OutputDim())
		require.Equal(t, []float64{0, 0, 0}, row[3:], mode)
		require.NotEqual(t, []float64{0, 0, 0}, row[:3], mode)
	}
}

func TestAggregateSumAndMean(t *testing.T) {
	emb := testEmbedding(t)
	v1, err := emb.Vector(1)
	require.NoError(t, err)
	v3, err := emb.Vector(3)
	require.NoError(t, err)
	ids := [][][]int32{{{1, 3, 0, 0}}}

	sum, err := NewMaskedAggregator(emb, "sum", 1)
	require.NoError(t, err)
	s, err := sum.Aggregate(ids)
	require.NoError(t, err)

	mean, err := NewMaskedAggregator(emb, "mean", 1)
	require.NoError(t, err)
	m, err := mean.Aggregate(ids)
	require.NoError(t, err)

	for k := 0; k < emb.Dim(); k++ {
		require.InDelta(t, v1[k]+v3[k], s.At(0, k), 1e-12)
		require.InDelta(t, (v1[k]+v3[k])/2, m.At(0, k), 1e-6)
	}
}

func TestAggregateIgnoresPaddingPosition(t *testing.T) {
	emb := testEmbedding(t)
	agg, err := NewMaskedAggregator(emb, "mean", 1)
	require.NoError(t, err)
	short, err := agg.Aggregate([][][]int32{{{2}}})
	require.NoError(t, err)
	padded, err := agg.Aggregate([][][]int32{{{2, 0, 0, 0, 0}}})
	require.NoError(t, err)
	for k := 0; k < emb.Dim(); k++ {
		require.InDelta(t, short.At(0, k), padded.At(0, k), 1e-6)
	}
}

func TestAggregateErrors(t *testing.T) {
	emb := testEmbedding(t)
	agg, err := NewMaskedAggregator(emb, "sum", 2)
	require.NoError(t, err)

	_, err = agg.Aggregate([][][]int32{{{5}, {}}})
	require.ErrorIs(t, err, ErrUnknownID)
	_, err = agg.Aggregate([][][]int32{{{-1}, {}}})
	require.ErrorIs(t, err, ErrUnknownID)
	_, err = agg.Aggregate([][][]int32{{{1}}})
	require.ErrorIs(t, err, ErrExtentMismatch)
	_, err = agg.Aggregate(nil)
	require.ErrorIs(t, err, ErrEmptyBatch)

	_, err = emb.Vector(0)
	require.ErrorIs(t, err, ErrUnknownID)
}

func TestFlattenZeroesPadding(t *testing.T) {
	emb := testEmbedding(t)
	agg, err := NewMaskedAggregator(emb, "sum", 3)
	require.NoError(t, err)
	out, err := agg.Flatten([][]int32{{4, 0, 0}, {0, 0, 0}})
	require.NoError(t, err)
	v4, err := emb.Vector(4)
	require.NoError(t, err)
	require.Equal(t, v4, out.RawRowView(0)[:3])
	require.Equal(t, make([]float64, 6), out.RawRowView(0)[3:])
	require.Equal(t, make([]float64, 9), out.RawRowView(1))
}
