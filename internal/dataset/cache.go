// Package dataset persists normalized tensors so later runs can skip the
// corpus scan. The cache is four NumPy .npy files written through npyio; it
// is a hit only when all four exist.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"outfitcast/internal/model"
	"outfitcast/internal/ragged"
	"outfitcast/internal/weather"
)

// ErrCacheMiss is returned by Load when any artifact is missing.
var ErrCacheMiss = errors.New("dataset cache miss")

const (
	WeatherFile = "weather.npy"
	TagsFile    = "tags.npy"
	TypesFile   = "types.npy"
	LabelsFile  = "labels.npy"
)

// Files lists the artifacts in write order.
var Files = []string{WeatherFile, TagsFile, TypesFile, LabelsFile}

// Cache stores a labelled dataset under Dir.
type Cache struct {
	Dir string
}

func New(dir string) *Cache { return &Cache{Dir: dir} }

func (c *Cache) path(name string) string { return filepath.Join(c.Dir, name) }

// Exists reports whether all four artifacts are present.
func (c *Cache) Exists() bool {
	for _, f := range Files {
		if _, err := os.Stat(c.path(f)); err != nil {
			return false
		}
	}
	return true
}

// Size is the total size in bytes of the artifacts present.
func (c *Cache) Size() int64 {
	var n int64
	for _, f := range Files {
		if st, err := os.Stat(c.path(f)); err == nil {
			n += st.Size()
		}
	}
	return n
}

// Clear removes every artifact.
func (c *Cache) Clear() error {
	for _, f := range Files {
		if err := os.Remove(c.path(f)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Store writes the four artifacts. Each file is replaced atomically through a
// rename, but the four renames are independent: a crash between them can leave
// a mix of old and new artifacts.
func (c *Cache) Store(ds *ragged.Dataset) error {
	if ds.Labels == nil {
		return errors.New("dataset cache holds labelled corpora only")
	}
	if err := ds.Check(); err != nil {
		return err
	}
	b := ds.Len()
	ext := ds.Extents
	if b == 0 || ext.Items == 0 {
		return fmt.Errorf("%d outfits padded to %s: %w", b, ext, ErrEmptyAxis)
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}

	weatherFlat := make([]float32, 0, b*weather.Hours*ds.Features)
	for _, w := range ds.Weather {
		for _, row := range w {
			weatherFlat = append(weatherFlat, row...)
		}
	}
	tagsFlat := make([]int32, 0, b*ext.Items*ext.Tags)
	for _, outfit := range ds.Tags {
		for _, tags := range outfit {
			tagsFlat = append(tagsFlat, tags...)
		}
	}
	typesFlat := make([]int32, 0, b*ext.Items)
	for _, types := range ds.Types {
		typesFlat = append(typesFlat, types...)
	}

	writes := []struct {
		name  string
		write func(io.Writer) error
	}{
		{WeatherFile, func(w io.Writer) error {
			return writeArray(w, []int{b, weather.Hours, ds.Features}, weatherFlat)
		}},
		{TagsFile, func(w io.Writer) error {
			return writeArray(w, []int{b, ext.Items, ext.Tags}, tagsFlat)
		}},
		{TypesFile, func(w io.Writer) error { return writeArray(w, []int{b, ext.Items}, typesFlat) }},
		{LabelsFile, func(w io.Writer) error { return writeArray(w, []int{b}, ds.Labels) }},
	}
	for _, wr := range writes {
		if err := c.writeFile(wr.name, wr.write); err != nil {
			return fmt.Errorf("%s: %w", wr.name, err)
		}
	}
	return nil
}

func (c *Cache) writeFile(name string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(c.Dir, name+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path(name))
}

// Load reads the four artifacts back into a dataset.
func (c *Cache) Load() (*ragged.Dataset, error) {
	if !c.Exists() {
		return nil, ErrCacheMiss
	}
	var (
		wShape, tShape, yShape, lShape []int
		wData                          []float32
		tData, yData, lData            []int32
	)
	err := c.readFile(WeatherFile, func(r io.Reader) (err error) {
		wShape, wData, err = readArray[float32](r, float32Descr)
		return err
	})
	if err == nil {
		err = c.readFile(TagsFile, func(r io.Reader) (err error) {
			tShape, tData, err = readArray[int32](r, int32Descr)
			return err
		})
	}
	if err == nil {
		err = c.readFile(TypesFile, func(r io.Reader) (err error) {
			yShape, yData, err = readArray[int32](r, int32Descr)
			return err
		})
	}
	if err == nil {
		err = c.readFile(LabelsFile, func(r io.Reader) (err error) {
			lShape, lData, err = readArray[int32](r, int32Descr)
			return err
		})
	}
	if err != nil {
		return nil, err
	}
	if len(wShape) != 3 || len(tShape) != 3 || len(yShape) != 2 || len(lShape) != 1 {
		return nil, fmt.Errorf("artifact ranks %d/%d/%d/%d, want 3/3/2/1", len(wShape), len(tShape), len(yShape), len(lShape))
	}
	b := lShape[0]
	if wShape[0] != b || tShape[0] != b || yShape[0] != b || wShape[1] != weather.Hours || tShape[1] != yShape[1] {
		return nil, fmt.Errorf("artifacts disagree: weather %v tags %v types %v labels %v", wShape, tShape, yShape, lShape)
	}

	ds := &ragged.Dataset{
		Weather:  make([][][]float32, b),
		Tags:     make([][][]int32, b),
		Types:    make([][]int32, b),
		Labels:   lData,
		Extents:  model.Extents{Items: tShape[1], Tags: tShape[2]},
		Features: wShape[2],
	}
	f, items, tags := ds.Features, ds.Extents.Items, ds.Extents.Tags
	for i := 0; i < b; i++ {
		w := make([][]float32, weather.Hours)
		for h := range w {
			off := (i*weather.Hours + h) * f
			w[h] = wData[off : off+f : off+f]
		}
		ds.Weather[i] = w

		ds.Types[i] = yData[i*items : (i+1)*items : (i+1)*items]

		rows := make([][]int32, items)
		for j := range rows {
			off := (i*items + j) * tags
			rows[j] = tData[off : off+tags : off+tags]
		}
		ds.Tags[i] = rows
	}
	return ds, ds.Check()
}

func (c *Cache) readFile(name string, read func(io.Reader) error) error {
	fh, err := os.Open(c.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrCacheMiss
		}
		return err
	}
	defer fh.Close()
	if err := read(fh); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
