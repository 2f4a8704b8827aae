// Package ragged pads outfits with a variable number of items, each with a
// variable number of tags, into dense tensors. Padding uses model.PadID and
// extents are fixed for the whole batch before any record is padded.
package ragged

import (
	"fmt"
	"math/rand"

	"outfitcast/internal/model"
	"outfitcast/internal/weather"
)

// Dataset is the dense batch view. All tensors share the leading dimension.
type Dataset struct {
	Weather [][][]float32 // [B][24][F]
	Tags    [][][]int32   // [B][Items][Tags]
	Types   [][]int32     // [B][Items]
	Labels  []int32       // [B], nil in inference mode

	Extents  model.Extents
	Features int
}

// Len is the batch size B.
func (d *Dataset) Len() int { return len(d.Types) }

// Check verifies the tensors agree on every dimension.
func (d *Dataset) Check() error {
	b := len(d.Types)
	if len(d.Weather) != b || len(d.Tags) != b || (d.Labels != nil && len(d.Labels) != b) {
		return fmt.Errorf("leading dims differ: weather=%d tags=%d types=%d labels=%d",
			len(d.Weather), len(d.Tags), b, len(d.Labels))
	}
	for i := 0; i < b; i++ {
		if len(d.Types[i]) != d.Extents.Items || len(d.Tags[i]) != d.Extents.Items {
			return fmt.Errorf("outfit %d: item axis is not %d", i, d.Extents.Items)
		}
		for j, tags := range d.Tags[i] {
			if len(tags) != d.Extents.Tags {
				return fmt.Errorf("outfit %d item %d: tag axis is not %d", i, j, d.Extents.Tags)
			}
		}
		if len(d.Weather[i]) != weather.Hours {
			return fmt.Errorf("outfit %d: weather has %d hours", i, len(d.Weather[i]))
		}
		for _, row := range d.Weather[i] {
			if len(row) != d.Features {
				return fmt.Errorf("outfit %d: weather width is not %d", i, d.Features)
			}
		}
	}
	return nil
}

// Positives counts outfits labelled 1.
func (d *Dataset) Positives() int {
	n := 0
	for _, l := range d.Labels {
		if l == 1 {
			n++
		}
	}
	return n
}

// Permute reorders all four tensors with one random permutation.
func (d *Dataset) Permute(rng *rand.Rand) {
	perm := rng.Perm(d.Len())
	weather := make([][][]float32, len(perm))
	tags := make([][][]int32, len(perm))
	types := make([][]int32, len(perm))
	var labels []int32
	if d.Labels != nil {
		labels = make([]int32, len(perm))
	}
	for to, from := range perm {
		weather[to] = d.Weather[from]
		tags[to] = d.Tags[from]
		types[to] = d.Types[from]
		if labels != nil {
			labels[to] = d.Labels[from]
		}
	}
	d.Weather, d.Tags, d.Types, d.Labels = weather, tags, types, labels
}

// ExtentScanner is the first pass: it validates outfits one at a time and
// tracks the extents and weather width seen so far.
type ExtentScanner struct {
	ext        model.Extents
	features   int
	n          int
	labelled   int
	unlabelled int
}

// Observe validates o and folds it into the running extents.
func (s *ExtentScanner) Observe(o model.Outfit) error {
	i := s.n
	if len(o.TypeIDs) != len(o.TagIDLists) {
		return malformed(i, o.Source, "%d type ids but %d tag lists", len(o.TypeIDs), len(o.TagIDLists))
	}
	for j, id := range o.TypeIDs {
		if id <= model.PadID {
			return malformed(i, o.Source, "item %d has type id %d; real ids start at 1", j, id)
		}
	}
	for j, tags := range o.TagIDLists {
		for k, id := range tags {
			if id <= model.PadID {
				return malformed(i, o.Source, "item %d tag %d has id %d; real ids start at 1", j, k, id)
			}
		}
	}
	if len(o.Weather) != weather.Hours {
		return malformed(i, o.Source, "weather has %d hours, want %d", len(o.Weather), weather.Hours)
	}
	width := len(o.Weather[0])
	for h, row := range o.Weather {
		if len(row) != width {
			return malformed(i, o.Source, "weather hour %d has %d fields, hour 0 has %d", h, len(row), width)
		}
	}
	if s.n > 0 && width != s.features {
		return malformed(i, o.Source, "weather has %d fields, batch has %d", width, s.features)
	}
	if o.Label != nil {
		if *o.Label != 0 && *o.Label != 1 {
			return malformed(i, o.Source, "label %d is not 0 or 1", *o.Label)
		}
		s.labelled++
	} else {
		s.unlabelled++
	}
	if s.labelled > 0 && s.unlabelled > 0 {
		return malformed(i, o.Source, "batch mixes labelled and unlabelled outfits")
	}

	s.features = width
	s.ext.Items = max(s.ext.Items, len(o.TypeIDs), len(o.TagIDLists))
	for _, tags := range o.TagIDLists {
		s.ext.Tags = max(s.ext.Tags, len(tags))
	}
	s.n++
	return nil
}

// Extents returns the extents of everything observed so far.
func (s *ExtentScanner) Extents() model.Extents { return s.ext }

// Features is the weather width F, 0 before the first outfit.
func (s *ExtentScanner) Features() int { return s.features }

// Count is the number of outfits observed.
func (s *ExtentScanner) Count() int { return s.n }

// ScanExtents validates every outfit and returns the batch extents.
func ScanExtents(outfits []model.Outfit) (model.Extents, error) {
	var s ExtentScanner
	for _, o := range outfits {
		if err := s.Observe(o); err != nil {
			return model.Extents{}, err
		}
	}
	return s.Extents(), nil
}

// Normalize pads outfits to the extents of the batch itself.
func Normalize(outfits []model.Outfit) (*Dataset, error) {
	var s ExtentScanner
	for _, o := range outfits {
		if err := s.Observe(o); err != nil {
			return nil, err
		}
	}
	return pad(outfits, s.Extents(), s.Features(), s.labelled > 0), nil
}

// NormalizeWithExtents pads outfits to extents fixed elsewhere, typically the
// ones a model was trained with. Outfits that do not fit are rejected.
func NormalizeWithExtents(outfits []model.Outfit, ext model.Extents) (*Dataset, error) {
	var s ExtentScanner
	for i, o := range outfits {
		if err := s.Observe(o); err != nil {
			return nil, err
		}
		if !ext.Fits(o) {
			got, _ := ScanExtents([]model.Outfit{o})
			return nil, fmt.Errorf("outfit %d (%s) needs %s, have %s: %w", i, o.Source, got, ext, ErrExtentsExceeded)
		}
	}
	return pad(outfits, ext, s.Features(), s.labelled > 0), nil
}

// pad is the second pass. Extents must already cover every outfit.
func pad(outfits []model.Outfit, ext model.Extents, features int, labelled bool) *Dataset {
	d := &Dataset{
		Weather:  make([][][]float32, len(outfits)),
		Tags:     make([][][]int32, len(outfits)),
		Types:    make([][]int32, len(outfits)),
		Extents:  ext,
		Features: features,
	}
	if labelled {
		d.Labels = make([]int32, len(outfits))
	}
	for i, o := range outfits {
		types := make([]int32, ext.Items)
		copy(types, o.TypeIDs)
		d.Types[i] = types

		tags := make([][]int32, ext.Items)
		for j := range tags {
			row := make([]int32, ext.Tags)
			if j < len(o.TagIDLists) {
				copy(row, o.TagIDLists[j])
			}
			tags[j] = row
		}
		d.Tags[i] = tags

		w := make([][]float32, len(o.Weather))
		for h, row := range o.Weather {
			w[h] = append([]float32(nil), row...)
		}
		d.Weather[i] = w

		if labelled {
			d.Labels[i] = *o.Label
		}
	}
	return d
}
