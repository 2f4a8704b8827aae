// Package corpus reads the labelled outfit corpus from disk. The corpus root
// holds a pos/ and a neg/ directory of JSON documents; each document is an
// outfit triple [type_ids, tag_id_lists, weather_series] or a list of them.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"outfitcast/internal/model"
	"outfitcast/internal/ragged"
	"outfitcast/internal/weather"
)

const (
	PositiveDir = "pos"
	NegativeDir = "neg"
)

// Dir is a file-backed corpus rooted at Root.
type Dir struct {
	Root string
}

// Outfits reads pos/ (label 1) then neg/ (label 0). Files are read in name order.
func (d Dir) Outfits(ctx context.Context) ([]model.Outfit, error) {
	pos, err := ReadPartition(ctx, filepath.Join(d.Root, PositiveDir), 1)
	if err != nil {
		return nil, err
	}
	neg, err := ReadPartition(ctx, filepath.Join(d.Root, NegativeDir), 0)
	if err != nil {
		return nil, err
	}
	return append(pos, neg...), nil
}

// ReadPartition reads every .json document in dir and labels its outfits.
func ReadPartition(ctx context.Context, dir string, label int32) ([]model.Outfit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []model.Outfit
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		src := filepath.Join(filepath.Base(dir), e.Name())
		outfits, err := Decode(b, src)
		if err != nil {
			return nil, err
		}
		for i := range outfits {
			outfits[i].Label = model.Labelled(label)
		}
		out = append(out, outfits...)
	}
	return out, nil
}

// Decode parses one document. Outfits come back unlabelled with Source set to src#index.
func Decode(b []byte, src string) ([]model.Outfit, error) {
	var top []json.RawMessage
	if err := json.Unmarshal(b, &top); err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	docs := [][]json.RawMessage{top}
	if !isTriple(top) {
		docs = docs[:0]
		for i, raw := range top {
			var t []json.RawMessage
			if err := json.Unmarshal(raw, &t); err != nil {
				return nil, ragged.Malformed(i, fmt.Sprintf("%s#%d", src, i), err)
			}
			docs = append(docs, t)
		}
	}
	out := make([]model.Outfit, 0, len(docs))
	for i, t := range docs {
		o, err := decodeTriple(t)
		if err != nil {
			return nil, ragged.Malformed(i, fmt.Sprintf("%s#%d", src, i), err)
		}
		o.Source = fmt.Sprintf("%s#%d", src, i)
		out = append(out, o)
	}
	return out, nil
}

// isTriple tells a single outfit from a list of outfits: only a single
// outfit has a flat id list as its first element.
func isTriple(top []json.RawMessage) bool {
	if len(top) != 3 {
		return false
	}
	var ids []int32
	return json.Unmarshal(top[0], &ids) == nil
}

func decodeTriple(t []json.RawMessage) (model.Outfit, error) {
	var o model.Outfit
	if len(t) != 3 {
		return o, fmt.Errorf("outfit has %d elements, want [type_ids, tag_id_lists, weather]", len(t))
	}
	if err := json.Unmarshal(t[0], &o.TypeIDs); err != nil {
		return o, fmt.Errorf("type_ids: %w", err)
	}
	if err := json.Unmarshal(t[1], &o.TagIDLists); err != nil {
		return o, fmt.Errorf("tag_id_lists: %w", err)
	}
	var series [][]float32
	if err := json.Unmarshal(t[2], &series); err != nil {
		return o, fmt.Errorf("weather: %w", err)
	}
	if o.TypeIDs == nil {
		o.TypeIDs = []int32{}
	}
	if o.TagIDLists == nil {
		o.TagIDLists = [][]int32{}
	}
	if len(series) == 0 {
		return o, errors.New("weather has no fields")
	}
	w, err := weather.Reshape(series)
	if err != nil {
		return o, err
	}
	o.Weather = w
	return o, nil
}
