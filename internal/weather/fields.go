package weather

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var droppedSuffixes = []string{"_epoch", "_f", "_mph", "_in"}

var droppedFields = map[string]bool{
	"wind_degree": true,
	"wind_dir":    true,
	"pressure_mb": true,
	"gust_kph":    true,
	"dewpoint_c":  true,
	"vis_km":      true,
	"vis_miles":   true,
	"uv":          true,
	"time":        true,
	"feelslike_c": true,
	"condition":   true,
}

// Keep reports whether an hourly provider field is one of the numeric signals the model uses.
func Keep(field string) bool {
	if droppedFields[field] {
		return false
	}
	for _, s := range droppedSuffixes {
		if strings.HasSuffix(field, s) {
			return false
		}
	}
	return true
}

// hourlySeries collects the kept numeric fields of a day's hour objects.
// Field order is the key order of the first hour.
func hourlySeries(hours []json.RawMessage) ([]string, map[string][]float32, error) {
	var fields []string
	values := make(map[string][]float32)
	for h, raw := range hours {
		if !gjson.ValidBytes(raw) {
			return nil, nil, fmt.Errorf("hour %d: invalid json", h)
		}
		obj := gjson.ParseBytes(raw)
		if !obj.IsObject() {
			return nil, nil, fmt.Errorf("hour %d: expected object, got %s", h, obj.Type)
		}
		seen := make(map[string]gjson.Result)
		obj.ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			if _, dup := seen[k]; dup {
				return true
			}
			seen[k] = value
			if h == 0 && Keep(k) {
				fields = append(fields, k)
			}
			return true
		})
		for _, k := range fields {
			v, ok := seen[k]
			if !ok {
				return nil, nil, fmt.Errorf("hour %d: %q: %w", h, k, ErrMissingField)
			}
			if v.Type != gjson.Number {
				return nil, nil, fmt.Errorf("hour %d: field %q is not numeric: %s", h, k, v.Raw)
			}
			values[k] = append(values[k], float32(v.Float()))
		}
	}
	return fields, values, nil
}
