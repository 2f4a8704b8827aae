package model

import "fmt"

// PadID is the reserved category id meaning "no entry here".
// Real type and tag ids occupy [1, N]; nothing upstream may assign 0.
const PadID int32 = 0

// Outfit is one record: a set of clothing items, the ambient weather and an optional label.
type Outfit struct {
	// TypeIDs holds one clothing type id per item.
	TypeIDs []int32
	// TagIDLists holds one tag id list per item, aligned with TypeIDs.
	TagIDLists [][]int32
	// Weather is hour-major: Weather[h][f] for h in [0,24).
	Weather [][]float32
	// Label is 1 for positive, 0 for negative and nil when unknown (inference).
	Label *int32
	// Source identifies the record in error messages (file#index, store row id).
	Source string
}

// Items returns the number of clothing items in the outfit.
func (o Outfit) Items() int { return len(o.TypeIDs) }

// Labelled builds a label pointer.
func Labelled(v int32) *int32 { return &v }

// Extents are the padding sizes of the two ragged axes.
// They are fixed before any record is padded and travel with trained weights.
type Extents struct {
	Items int `json:"items" yaml:"items"`
	Tags  int `json:"tags" yaml:"tags"`
}

// Fits reports whether o can be padded to e without truncation.
func (e Extents) Fits(o Outfit) bool {
	if len(o.TypeIDs) > e.Items || len(o.TagIDLists) > e.Items {
		return false
	}
	for _, tags := range o.TagIDLists {
		if len(tags) > e.Tags {
			return false
		}
	}
	return true
}

func (e Extents) String() string { return fmt.Sprintf("items=%d tags=%d", e.Items, e.Tags) }
