// Package catalog loads the category mapping files that assign ids to clothing
// types and tags. Only their cardinality reaches the model; ids themselves are
// assigned upstream and must leave 0 free for padding.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"outfitcast/internal/model"
)

var (
	// ErrMissingCategory is returned by Lookup for an unknown name.
	ErrMissingCategory = errors.New("category not in mapping")
	// ErrInvalidMapping is returned when a mapping file breaks the id contract.
	ErrInvalidMapping = errors.New("invalid category mapping")
)

// Mapping is a name -> id table with ids in [1, Len()].
type Mapping struct {
	kind string
	ids  map[string]int32
}

// New validates ids and builds a mapping. kind names the mapping in errors ("type", "tag").
func New(kind string, ids map[string]int32) (*Mapping, error) {
	n := int32(len(ids))
	seen := make(map[int32]string, len(ids))
	for name, id := range ids {
		if id == model.PadID {
			return nil, fmt.Errorf("%s %q uses reserved id %d: %w", kind, name, model.PadID, ErrInvalidMapping)
		}
		if id < 1 || id > n {
			return nil, fmt.Errorf("%s %q has id %d outside [1,%d]: %w", kind, name, id, n, ErrInvalidMapping)
		}
		if other, dup := seen[id]; dup {
			return nil, fmt.Errorf("%s ids collide: %q and %q both map to %d: %w", kind, other, name, id, ErrInvalidMapping)
		}
		seen[id] = name
	}
	return &Mapping{kind: kind, ids: ids}, nil
}

// Len is the number of real categories N. Embedding tables need N+1 rows.
func (m *Mapping) Len() int { return len(m.ids) }

// Lookup returns the id of name.
func (m *Mapping) Lookup(name string) (int32, error) {
	id, ok := m.ids[name]
	if !ok {
		return 0, fmt.Errorf("%s %q: %w", m.kind, name, ErrMissingCategory)
	}
	return id, nil
}

// LoadTypes reads a {"name": id} document.
func LoadTypes(path string) (*Mapping, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids map[string]int32
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New("type", ids)
}

// LoadTags reads a {"tags": {"name": id}} document.
func LoadTags(path string) (*Mapping, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Tags map[string]int32 `json:"tags"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Tags == nil {
		return nil, fmt.Errorf("%s: no \"tags\" object: %w", path, ErrInvalidMapping)
	}
	return New("tag", doc.Tags)
}

// Catalog bundles both mappings.
type Catalog struct {
	Types *Mapping
	Tags  *Mapping
}

// Load reads both mapping files.
func Load(typesPath, tagsPath string) (*Catalog, error) {
	types, err := LoadTypes(typesPath)
	if err != nil {
		return nil, err
	}
	tags, err := LoadTags(tagsPath)
	if err != nil {
		return nil, err
	}
	return &Catalog{Types: types, Tags: tags}, nil
}

// Item is a clothing item described by names.
type Item struct {
	Type string   `json:"type"`
	Tags []string `json:"tags"`
}

// Encode maps named items to id lists. The first unknown name fails the whole outfit.
func (c *Catalog) Encode(items []Item) ([]int32, [][]int32, error) {
	typeIDs := make([]int32, 0, len(items))
	tagLists := make([][]int32, 0, len(items))
	for i, it := range items {
		tid, err := c.Types.Lookup(it.Type)
		if err != nil {
			return nil, nil, fmt.Errorf("item %d: %w", i, err)
		}
		tags := make([]int32, 0, len(it.Tags))
		for _, name := range it.Tags {
			id, err := c.Tags.Lookup(name)
			if err != nil {
				return nil, nil, fmt.Errorf("item %d: %w", i, err)
			}
			tags = append(tags, id)
		}
		typeIDs = append(typeIDs, tid)
		tagLists = append(tagLists, tags)
	}
	return typeIDs, tagLists, nil
}
