package ragged

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"outfitcast/internal/model"
	"outfitcast/internal/weather"
)

func hours(features int, v float32) [][]float32 {
	w := make([][]float32, weather.Hours)
	for h := range w {
		row := make([]float32, features)
		for f := range row {
			row[f] = v + float32(h)
		}
		w[h] = row
	}
	return w
}

func outfit(types []int32, tags [][]int32, label int32) model.Outfit {
	return model.Outfit{TypeIDs: types, TagIDLists: tags, Weather: hours(3, float32(label)), Label: model.Labelled(label)}
}

func nonZero(xs []int32) int {
	n := 0
	for _, x := range xs {
		if x != model.PadID {
			n++
		}
	}
	return n
}

func TestNormalizeTwoOutfitScenario(t *testing.T) {
	a := outfit([]int32{4, 7}, [][]int32{{11}, {12, 13, 14}}, 1)
	b := outfit([]int32{5}, [][]int32{{21, 22}}, 0)

	ds, err := Normalize([]model.Outfit{a, b})
	require.NoError(t, err)
	require.Equal(t, model.Extents{Items: 2, Tags: 3}, ds.Extents)
	require.Equal(t, [][]int32{{4, 7}, {5, 0}}, ds.Types)
	require.Equal(t, [][][]int32{
		{{11, 0, 0}, {12, 13, 14}},
		{{21, 22, 0}, {0, 0, 0}},
	}, ds.Tags)
	require.Equal(t, []int32{1, 0}, ds.Labels)
	require.Equal(t, 3, ds.Features)
	require.NoError(t, ds.Check())
}

func TestNormalizeRejectsLengthMismatch(t *testing.T) {
	bad := outfit([]int32{1, 2}, [][]int32{{1}, {2}, {3}}, 1)
	bad.Source = "pos/3.json#0"
	good := outfit([]int32{1}, [][]int32{{1}}, 0)

	_, err := Normalize([]model.Outfit{good, bad})
	require.ErrorIs(t, err, ErrMalformedOutfit)
	var me *MalformedOutfitError
	require.True(t, errors.As(err, &me))
	require.Equal(t, 1, me.Index)
	require.Equal(t, "pos/3.json#0", me.Source)
	require.Contains(t, err.Error(), "2 type ids but 3 tag lists")
}

func TestNormalizeRejectsSentinelAsRealID(t *testing.T) {
	_, err := Normalize([]model.Outfit{outfit([]int32{0}, [][]int32{{1}}, 1)})
	require.ErrorIs(t, err, ErrMalformedOutfit)

	_, err = Normalize([]model.Outfit{outfit([]int32{1}, [][]int32{{2, 0}}, 1)})
	require.ErrorIs(t, err, ErrMalformedOutfit)

	_, err = Normalize([]model.Outfit{outfit([]int32{-3}, [][]int32{{2}}, 1)})
	require.ErrorIs(t, err, ErrMalformedOutfit)
}

func TestNormalizeRejectsBadWeather(t *testing.T) {
	o := outfit([]int32{1}, [][]int32{{1}}, 1)
	o.Weather = o.Weather[:20]
	_, err := Normalize([]model.Outfit{o})
	require.ErrorIs(t, err, ErrMalformedOutfit)

	a := outfit([]int32{1}, [][]int32{{1}}, 1)
	b := outfit([]int32{1}, [][]int32{{1}}, 0)
	b.Weather = hours(4, 0)
	_, err = Normalize([]model.Outfit{a, b})
	require.ErrorIs(t, err, ErrMalformedOutfit)
}

func TestNormalizeRejectsMixedLabels(t *testing.T) {
	a := outfit([]int32{1}, [][]int32{{1}}, 1)
	b := outfit([]int32{1}, [][]int32{{1}}, 0)
	b.Label = nil
	_, err := Normalize([]model.Outfit{a, b})
	require.ErrorIs(t, err, ErrMalformedOutfit)
}

func TestNormalizeZeroItemOutfit(t *testing.T) {
	empty := outfit([]int32{}, [][]int32{}, 0)
	full := outfit([]int32{3, 3}, [][]int32{{1, 2}, {}}, 1)

	ds, err := Normalize([]model.Outfit{empty, full})
	require.NoError(t, err)
	require.Equal(t, []int32{0, 0}, ds.Types[0])
	require.Equal(t, [][]int32{{0, 0}, {0, 0}}, ds.Tags[0])
	require.Equal(t, [][]int32{{1, 2}, {0, 0}}, ds.Tags[1])
}

func TestNormalizeUnlabelledBatch(t *testing.T) {
	o := outfit([]int32{1}, [][]int32{{1}}, 0)
	o.Label = nil
	ds, err := Normalize([]model.Outfit{o})
	require.NoError(t, err)
	require.Nil(t, ds.Labels)
	require.NoError(t, ds.Check())
}

func randomOutfits(rng *rand.Rand, n int) []model.Outfit {
	out := make([]model.Outfit, n)
	for i := range out {
		items := rng.Intn(5)
		types := make([]int32, items)
		tags := make([][]int32, items)
		for j := range types {
			types[j] = int32(1 + rng.Intn(9))
			tags[j] = make([]int32, rng.Intn(6))
			for k := range tags[j] {
				tags[j][k] = int32(1 + rng.Intn(30))
			}
		}
		out[i] = outfit(types, tags, int32(rng.Intn(2)))
	}
	return out
}

func TestNormalizePreservesCountsAndOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	outfits := randomOutfits(rng, 40)

	ds, err := Normalize(outfits)
	require.NoError(t, err)
	require.Equal(t, len(outfits), len(ds.Weather))
	require.Equal(t, len(outfits), len(ds.Tags))
	require.Equal(t, len(outfits), len(ds.Types))
	require.Equal(t, len(outfits), len(ds.Labels))

	for i, o := range outfits {
		require.Equal(t, len(o.TypeIDs), nonZero(ds.Types[i]), "outfit %d", i)
		require.Equal(t, o.TypeIDs, ds.Types[i][:len(o.TypeIDs)])
		for j, tags := range o.TagIDLists {
			require.Equal(t, len(tags), nonZero(ds.Tags[i][j]), "outfit %d item %d", i, j)
			require.Equal(t, tags, ds.Tags[i][j][:len(tags)])
		}
		for j := len(o.TagIDLists); j < ds.Extents.Items; j++ {
			require.Zero(t, nonZero(ds.Tags[i][j]))
		}
		require.Equal(t, *o.Label, ds.Labels[i])
	}
}

func TestNormalizeIsIdempotentOnMaximalBatch(t *testing.T) {
	outfits := []model.Outfit{
		outfit([]int32{1, 2}, [][]int32{{1, 2}, {3, 4}}, 1),
		outfit([]int32{3, 4}, [][]int32{{5, 6}, {7, 8}}, 0),
	}
	ds, err := Normalize(outfits)
	require.NoError(t, err)

	again := make([]model.Outfit, ds.Len())
	for i := range again {
		again[i] = model.Outfit{TypeIDs: ds.Types[i], TagIDLists: ds.Tags[i], Weather: ds.Weather[i], Label: model.Labelled(ds.Labels[i])}
	}
	ds2, err := Normalize(again)
	require.NoError(t, err)
	require.Equal(t, ds, ds2)
	for i, o := range outfits {
		require.Equal(t, o.TypeIDs, ds.Types[i])
		require.Equal(t, o.TagIDLists, ds.Tags[i])
	}
}

func TestNormalizeWithExtents(t *testing.T) {
	o := outfit([]int32{1}, [][]int32{{1, 2}}, 0)
	o.Label = nil

	ds, err := NormalizeWithExtents([]model.Outfit{o}, model.Extents{Items: 3, Tags: 4})
	require.NoError(t, err)
	require.Equal(t, []int32{1, 0, 0}, ds.Types[0])
	require.Equal(t, []int32{1, 2, 0, 0}, ds.Tags[0][0])
	require.Equal(t, model.Extents{Items: 3, Tags: 4}, ds.Extents)

	_, err = NormalizeWithExtents([]model.Outfit{o}, model.Extents{Items: 1, Tags: 1})
	require.ErrorIs(t, err, ErrExtentsExceeded)
}

func TestExtentScannerMatchesScanExtents(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	outfits := randomOutfits(rng, 25)

	var s ExtentScanner
	for _, o := range outfits {
		require.NoError(t, s.Observe(o))
	}
	ext, err := ScanExtents(outfits)
	require.NoError(t, err)
	require.Equal(t, ext, s.Extents())
	require.Equal(t, 25, s.Count())
	require.Equal(t, 3, s.Features())
}

func TestPermuteKeepsRowsAligned(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ds, err := Normalize(randomOutfits(rng, 30))
	require.NoError(t, err)

	orig := make([][]int32, ds.Len())
	copy(orig, ds.Types)
	origTags := make([][][]int32, ds.Len())
	copy(origTags, ds.Tags)
	origLabels := append([]int32(nil), ds.Labels...)

	ds.Permute(rand.New(rand.NewSource(5)))
	require.NoError(t, ds.Check())
	perm := rand.New(rand.NewSource(5)).Perm(len(orig))
	for to, from := range perm {
		require.Equal(t, orig[from], ds.Types[to])
		require.Equal(t, origTags[from], ds.Tags[to])
		require.Equal(t, origLabels[from], ds.Labels[to])
	}
}
