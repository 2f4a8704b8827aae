package pipeline

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"outfitcast/internal/catalog"
	"outfitcast/internal/dataset"
	"outfitcast/internal/model"
	"outfitcast/internal/ragged"
	"outfitcast/internal/store/sqlitedoc"
	"outfitcast/internal/weather"
)

func hourMajor(v float32) [][]float32 {
	out := make([][]float32, weather.Hours)
	for h := range out {
		out[h] = []float32{v + float32(h), -v}
	}
	return out
}

type fakeReader struct {
	outfits []model.Outfit
	calls   int
	err     error
}

func (f *fakeReader) Outfits(ctx context.Context) ([]model.Outfit, error) {
	f.calls++
	return f.outfits, f.err
}

func labelled() []model.Outfit {
	return []model.Outfit{
		{TypeIDs: []int32{1, 2}, TagIDLists: [][]int32{{3}, {4, 5}}, Weather: hourMajor(1), Label: model.Labelled(1)},
		{TypeIDs: []int32{3}, TagIDLists: [][]int32{{1, 2, 3}}, Weather: hourMajor(2), Label: model.Labelled(0)},
	}
}

func TestLoadDatasetReadsThroughCache(t *testing.T) {
	cache := dataset.New(filepath.Join(t.TempDir(), "data"))
	src := &fakeReader{outfits: labelled()}
	ctx := context.Background()

	first, hit, err := LoadDataset(ctx, cache, src)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, model.Extents{Items: 2, Tags: 3}, first.Extents)

	second, hit, err := LoadDataset(ctx, cache, src)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 1, src.calls)
	require.Equal(t, first, second)
}

func TestLoadDatasetSkipsCacheForEmptyItemAxis(t *testing.T) {
	empty := []model.Outfit{
		{TypeIDs: []int32{}, TagIDLists: [][]int32{}, Weather: hourMajor(1), Label: model.Labelled(1)},
		{TypeIDs: []int32{}, TagIDLists: [][]int32{}, Weather: hourMajor(2), Label: model.Labelled(0)},
	}
	cache := dataset.New(t.TempDir())
	ds, hit, err := LoadDataset(context.Background(), cache, &fakeReader{outfits: empty})
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, ds.Len())
	require.Zero(t, ds.Extents.Items)
	require.False(t, cache.Exists())
}

func TestLoadDatasetPropagatesMalformed(t *testing.T) {
	bad := labelled()
	bad[1].TagIDLists = append(bad[1].TagIDLists, []int32{1})
	cache := dataset.New(t.TempDir())
	_, _, err := LoadDataset(context.Background(), cache, &fakeReader{outfits: bad})
	require.ErrorIs(t, err, ragged.ErrMalformedOutfit)
	require.False(t, cache.Exists())

	_, _, err = LoadDataset(context.Background(), cache, &fakeReader{err: errors.New("disk")})
	require.ErrorContains(t, err, "disk")
}

type fakeProvider struct {
	fc  *weather.Forecast
	err error
}

func (f fakeProvider) Forecast(ctx context.Context, location string) (*weather.Forecast, error) {
	return f.fc, f.err
}

func forecast() *weather.Forecast {
	temp := make([]float32, weather.Hours)
	hum := make([]float32, weather.Hours)
	for h := range temp {
		temp[h] = float32(h)
		hum[h] = 50
	}
	return &weather.Forecast{Location: "Oslo", Days: []weather.Day{{
		Date:   "2026-10-15",
		Fields: []string{"temp_c", "humidity"},
		Values: map[string][]float32{"temp_c": temp, "humidity": hum},
	}}}
}

type fixedScorer struct{ probs []float64 }

func (f fixedScorer) Predict(ds *ragged.Dataset) ([]float64, error) {
	if ds.Len() != len(f.probs) {
		return nil, errors.New("batch size")
	}
	return f.probs, nil
}

func openStore(t *testing.T) *sqlitedoc.DB {
	t.Helper()
	db, err := sqlitedoc.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBuildLiveBatchUsesTrainedExtents(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()
	_, err := db.PutOutfit(ctx, "u", model.Outfit{TypeIDs: []int32{1}, TagIDLists: [][]int32{{2}}})
	require.NoError(t, err)

	ext := model.Extents{Items: 3, Tags: 4}
	b, err := BuildLiveBatch(ctx, db, fakeProvider{fc: forecast()}, "u", "Oslo", ext)
	require.NoError(t, err)
	require.Equal(t, ext, b.Dataset.Extents)
	require.Equal(t, 2, b.Dataset.Features)
	require.Nil(t, b.Dataset.Labels)
	require.Len(t, b.Outfits, 1)
	require.Equal(t, [][]int32{{1, 0, 0}}, b.Dataset.Types)
	require.Equal(t, []float32{5, 50}, b.Dataset.Weather[0][5])
}

func TestBuildLiveBatchRejectsOutfitsBeyondTrainedExtents(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()
	_, err := db.PutOutfit(ctx, "u", model.Outfit{TypeIDs: []int32{1}, TagIDLists: [][]int32{{2}}})
	require.NoError(t, err)
	_, err = db.PutOutfit(ctx, "u", model.Outfit{TypeIDs: []int32{1, 2}, TagIDLists: [][]int32{{1}, {2}}})
	require.NoError(t, err)

	b, err := BuildLiveBatch(ctx, db, fakeProvider{fc: forecast()}, "u", "Oslo", model.Extents{Items: 1, Tags: 1})
	require.True(t, errors.Is(err, ragged.ErrExtentsExceeded), "got %v", err)
	require.Nil(t, b)

	p := &Predictor{Store: db, Provider: fakeProvider{fc: forecast()}, Model: fixedScorer{probs: []float64{0.9}}, Extents: model.Extents{Items: 1, Tags: 1}}
	_, err = p.Predict(ctx, "u", "Oslo")
	require.ErrorIs(t, err, ragged.ErrExtentsExceeded)
	logged, err := db.PredictionsRange(ctx, time.Unix(0, 0), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, logged)
}

func TestBuildLiveBatchErrors(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()
	ext := model.Extents{Items: 1, Tags: 1}

	_, err := BuildLiveBatch(ctx, db, fakeProvider{fc: forecast()}, "nobody", "Oslo", ext)
	require.ErrorIs(t, err, ErrNoOutfits)

	_, err = BuildLiveBatch(ctx, db, fakeProvider{err: weather.ErrProviderRejected}, "nobody", "Oslo", ext)
	require.ErrorIs(t, err, weather.ErrProviderRejected)

	short := forecast()
	short.Days[0].Values["temp_c"] = short.Days[0].Values["temp_c"][:10]
	_, err = BuildLiveBatch(ctx, db, fakeProvider{fc: short}, "nobody", "Oslo", ext)
	require.ErrorIs(t, err, weather.ErrShortSeries)
}

func TestPredictorScoresAndLogs(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()
	a, err := db.PutOutfit(ctx, "u", model.Outfit{TypeIDs: []int32{1}, TagIDLists: [][]int32{{2}}})
	require.NoError(t, err)
	b, err := db.PutOutfit(ctx, "u", model.Outfit{TypeIDs: []int32{2}, TagIDLists: [][]int32{{}}})
	require.NoError(t, err)

	now := time.Unix(1_800_000_000, 0)
	p := &Predictor{
		Store:     db,
		Provider:  fakeProvider{fc: forecast()},
		Model:     fixedScorer{probs: []float64{0.7, 0.3}},
		Extents:   model.Extents{Items: 1, Tags: 2},
		Threshold: 0.6,
		Now:       func() time.Time { return now },
	}
	got, err := p.Predict(ctx, "u", "Oslo")
	require.NoError(t, err)
	require.Equal(t, []Scored{{OutfitID: a, Probability: 0.7, Wear: true}, {OutfitID: b, Probability: 0.3, Wear: false}}, got)

	logged, err := db.PredictionsRange(ctx, now.Add(-time.Second), now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, logged, 2)
	require.Len(t, logged[0].Weather, weather.Hours)
}

func TestDiagnostics(t *testing.T) {
	ds, err := ragged.Normalize(labelled())
	require.NoError(t, err)
	types, err := catalog.New("type", map[string]int32{"shirt": 1, "coat": 2, "boots": 3})
	require.NoError(t, err)
	tags, err := catalog.New("tag", map[string]int32{"red": 1, "wool": 2, "warm": 3, "blue": 4, "thin": 5})
	require.NoError(t, err)

	d := Summarize(ds, &catalog.Catalog{Types: types, Tags: tags}, 2048)
	require.Equal(t, 2, d.Outfits)
	require.Equal(t, 1, d.Positives)
	require.Equal(t, 1, d.Negatives)
	require.Equal(t, [3]int{2, 24, 2}, d.WeatherShape)
	require.Equal(t, [3]int{2, 2, 3}, d.TagsShape)
	require.Equal(t, 4, d.TypeInputs)
	require.Equal(t, 6, d.TagInputs)

	var buf bytes.Buffer
	require.NoError(t, d.Write(&buf, ds))
	require.Contains(t, buf.String(), "2 (1 positive, 1 negative)")
	require.Contains(t, buf.String(), "2.0 kB")
	require.Contains(t, buf.String(), "first types: [1 2]")
}
