package pipeline

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"outfitcast/internal/catalog"
	"outfitcast/internal/ragged"
	"outfitcast/internal/weather"
)

// Diagnostics summarizes a normalized dataset.
type Diagnostics struct {
	Outfits   int
	Positives int
	Negatives int

	WeatherShape [3]int
	TagsShape    [3]int
	TypesShape   [2]int
	LabelsShape  [1]int

	// Embedding table sizes, N+1 to leave row 0 for padding.
	TypeInputs int
	TagInputs  int

	CacheBytes int64
}

// Summarize computes the diagnostics. cat may be nil when mappings are unavailable.
func Summarize(ds *ragged.Dataset, cat *catalog.Catalog, cacheBytes int64) Diagnostics {
	d := Diagnostics{
		Outfits:      ds.Len(),
		Positives:    ds.Positives(),
		WeatherShape: [3]int{ds.Len(), weather.Hours, ds.Features},
		TagsShape:    [3]int{ds.Len(), ds.Extents.Items, ds.Extents.Tags},
		TypesShape:   [2]int{ds.Len(), ds.Extents.Items},
		LabelsShape:  [1]int{len(ds.Labels)},
		CacheBytes:   cacheBytes,
	}
	d.Negatives = len(ds.Labels) - d.Positives
	if cat != nil {
		d.TypeInputs = cat.Types.Len() + 1
		d.TagInputs = cat.Tags.Len() + 1
	}
	return d
}

// Write prints the summary and the first sample's ids.
func (d Diagnostics) Write(w io.Writer, ds *ragged.Dataset) error {
	lines := []string{
		fmt.Sprintf("outfits:   %s (%s positive, %s negative)", humanize.Comma(int64(d.Outfits)), humanize.Comma(int64(d.Positives)), humanize.Comma(int64(d.Negatives))),
		fmt.Sprintf("weather:   %v", d.WeatherShape),
		fmt.Sprintf("tags:      %v", d.TagsShape),
		fmt.Sprintf("types:     %v", d.TypesShape),
		fmt.Sprintf("labels:    %v", d.LabelsShape),
	}
	if d.TypeInputs > 0 {
		lines = append(lines, fmt.Sprintf("embedding: types=%d tags=%d", d.TypeInputs, d.TagInputs))
	}
	if d.CacheBytes > 0 {
		lines = append(lines, fmt.Sprintf("cache:     %s", humanize.Bytes(uint64(d.CacheBytes))))
	}
	if ds != nil && ds.Len() > 0 {
		lines = append(lines,
			fmt.Sprintf("first types: %v", ds.Types[0]),
			fmt.Sprintf("first tags:  %v", ds.Tags[0]),
		)
		if ds.Labels != nil {
			lines = append(lines, fmt.Sprintf("first label: %d", ds.Labels[0]))
		}
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
