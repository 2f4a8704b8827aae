package weather

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownDescriptor is returned for descriptor names outside the band tables.
	ErrUnknownDescriptor = errors.New("unknown weather descriptor")
	// ErrNoDominantDescriptor is returned by Describe when no hourly descriptor occurs twice.
	ErrNoDominantDescriptor = errors.New("no hourly descriptor repeats")
)

// descriptorSep joins the five components of a descriptor.
const descriptorSep = " | "

// Sky descriptors handled outside the bands.
const (
	Indoor = "Indoor"
	Foggy  = "Foggy"
)

type band struct {
	name     string
	min, max float64
}

// Bands are ordered; a value also matches a descriptor when it falls in the
// nearer half of an adjacent band.
var (
	temperatureBands = []band{
		{"Freezing", -50, 0}, {"Cold", 0, 10}, {"Cool", 10, 15}, {"Mild", 15, 20},
		{"Warm", 20, 25}, {"Hot", 25, 30}, {"Very Hot", 30, 50},
	}
	humidityBands = []band{
		{"Dry", 0, 40}, {"Moderate Humidity", 40, 60}, {"Humid", 60, 75}, {"Muggy", 75, 100},
	}
	windBands = []band{
		{"No Wind", 0, 0}, {"Calm", 0.1, 10}, {"Breezy", 10, 20}, {"Windy", 20, 30}, {"Gale", 30, 100},
	}
	skyBands = []band{
		{"Clear", 0, 10}, {"Partly Cloudy", 10, 30}, {"Mostly Cloudy", 30, 70}, {"Overcast", 70, 100},
	}
	precipitationTypes = []string{
		"No Precipitation", "Drizzle", "Rain", "Heavy Rain", "Thunderstorm", "Snow", "Heavy Snow", "Sleet",
	}
)

// DescriptorFields are the forecast fields the matcher reads.
var DescriptorFields = []string{"temp_c", "humidity", "precip_mm", "snow_cm", "wind_kph", "cloud", "is_day"}

// Descriptor names a day's weather by five components.
type Descriptor struct {
	Temperature   string
	Humidity      string
	Precipitation string
	Wind          string
	Sky           string
}

func (d Descriptor) parts() [5]string {
	return [5]string{d.Temperature, d.Humidity, d.Precipitation, d.Wind, d.Sky}
}

// String is the " | " joined form, e.g. "Cold | Humid | Rain | Breezy | Overcast".
func (d Descriptor) String() string {
	p := d.parts()
	return strings.Join(p[:], descriptorSep)
}

// ParseDescriptor reads the joined form and checks every component against the band tables.
func ParseDescriptor(s string) (Descriptor, error) {
	p := strings.Split(s, descriptorSep)
	if len(p) != 5 {
		return Descriptor{}, fmt.Errorf("descriptor %q has %d components, want 5", s, len(p))
	}
	for i := range p {
		p[i] = strings.TrimSpace(p[i])
	}
	d := Descriptor{Temperature: p[0], Humidity: p[1], Precipitation: p[2], Wind: p[3], Sky: p[4]}
	checks := []struct {
		name  string
		known bool
	}{
		{d.Temperature, bandIndex(temperatureBands, d.Temperature) >= 0},
		{d.Humidity, bandIndex(humidityBands, d.Humidity) >= 0},
		{d.Precipitation, isPrecipitationType(d.Precipitation)},
		{d.Wind, bandIndex(windBands, d.Wind) >= 0},
		{d.Sky, d.Sky == Indoor || d.Sky == Foggy || bandIndex(skyBands, d.Sky) >= 0},
	}
	for _, c := range checks {
		if !c.known {
			return Descriptor{}, fmt.Errorf("%q: %w", c.name, ErrUnknownDescriptor)
		}
	}
	return d, nil
}

func bandIndex(bands []band, name string) int {
	for i, b := range bands {
		if b.name == name {
			return i
		}
	}
	return -1
}

func isPrecipitationType(name string) bool {
	for _, t := range precipitationTypes {
		if t == name {
			return true
		}
	}
	return false
}

// bandOf returns the first band containing v, or "" when v falls in a gap.
func bandOf(bands []band, v float64) string {
	for _, b := range bands {
		if v >= b.min && v <= b.max {
			return b.name
		}
	}
	return ""
}

// nearBand reports whether v lies in the named band or in the nearer half of a neighbour.
func nearBand(bands []band, name string, v float64) bool {
	i := bandIndex(bands, name)
	if i < 0 {
		return false
	}
	b := bands[i]
	if v >= b.min && v <= b.max {
		return true
	}
	if i > 0 {
		prev := bands[i-1]
		if v >= (prev.min+prev.max)/2 && v <= prev.max {
			return true
		}
	}
	if i < len(bands)-1 {
		next := bands[i+1]
		if v >= next.min && v <= (next.min+next.max)/2 {
			return true
		}
	}
	return false
}

// PrecipitationType classifies an hour by rainfall in mm and snowfall in cm.
// Snow takes precedence over rain.
func PrecipitationType(precipMM, snowCM float64) string {
	switch {
	case snowCM > 0 && snowCM < 5:
		return "Snow"
	case snowCM > 0:
		return "Heavy Snow"
	case precipMM == 0:
		return "No Precipitation"
	case precipMM <= 2:
		return "Drizzle"
	case precipMM <= 10:
		return "Rain"
	case precipMM < 50:
		return "Heavy Rain"
	}
	return "Thunderstorm"
}

// Hour is one row of the descriptor fields.
type Hour struct {
	TempC, Humidity, PrecipMM, SnowCM, WindKPH, Cloud float64
	IsDay                                              bool
}

// DescribeHour names a single hour. Components whose value falls outside
// every band are left empty.
func DescribeHour(h Hour) Descriptor {
	return Descriptor{
		Temperature:   bandOf(temperatureBands, h.TempC),
		Humidity:      bandOf(humidityBands, h.Humidity),
		Precipitation: PrecipitationType(h.PrecipMM, h.SnowCM),
		Wind:          bandOf(windBands, h.WindKPH),
		Sky:           bandOf(skyBands, h.Cloud),
	}
}

// MatchesHour reports whether every component of d accepts h.
func (d Descriptor) MatchesHour(h Hour) bool {
	sky := d.Sky
	if sky == Foggy {
		sky = "Overcast"
	}
	return nearBand(temperatureBands, d.Temperature, h.TempC) &&
		nearBand(humidityBands, d.Humidity, h.Humidity) &&
		PrecipitationType(h.PrecipMM, h.SnowCM) == d.Precipitation &&
		nearBand(windBands, d.Wind, h.WindKPH) &&
		(sky == Indoor || nearBand(skyBands, sky, h.Cloud))
}

// HoursOf extracts the descriptor fields from a 24xF hour-major matrix whose
// columns are named by fields.
func HoursOf(fields []string, m [][]float32) ([]Hour, error) {
	if len(m) != Hours {
		return nil, fmt.Errorf("%d rows: %w", len(m), ErrNotRectangular)
	}
	col := make(map[string]int, len(fields))
	for i, f := range fields {
		col[f] = i
	}
	idx := make([]int, len(DescriptorFields))
	for i, f := range DescriptorFields {
		c, ok := col[f]
		if !ok {
			return nil, fmt.Errorf("%q: %w", f, ErrMissingField)
		}
		idx[i] = c
	}
	out := make([]Hour, Hours)
	for h, row := range m {
		if len(row) != len(fields) {
			return nil, fmt.Errorf("hour %d has %d values for %d fields: %w", h, len(row), len(fields), ErrNotRectangular)
		}
		v := func(i int) float64 { return float64(row[idx[i]]) }
		out[h] = Hour{TempC: v(0), Humidity: v(1), PrecipMM: v(2), SnowCM: v(3), WindKPH: v(4), Cloud: v(5), IsDay: v(6) != 0}
	}
	return out, nil
}

// Describe returns the day's dominant hourly descriptor: the first to reach
// the highest count of at least two.
func Describe(fields []string, m [][]float32) (Descriptor, error) {
	hours, err := HoursOf(fields, m)
	if err != nil {
		return Descriptor{}, err
	}
	counts := make(map[Descriptor]int, len(hours))
	var best Descriptor
	bestCount := 0
	for _, h := range hours {
		d := DescribeHour(h)
		counts[d]++
		if n := counts[d]; n > 1 && n > bestCount {
			best, bestCount = d, n
		}
	}
	if bestCount == 0 {
		return Descriptor{}, ErrNoDominantDescriptor
	}
	return best, nil
}

// DayMatch counts the hours a descriptor accepts. DayMatched is false when
// any daylight hour is rejected.
type DayMatch struct {
	Matched    int
	DayMatched bool
}

// OK is true when every daylight hour and at least one hour match.
func (m DayMatch) OK() bool { return m.DayMatched && m.Matched > 0 }

// Match scores d against the day.
func Match(d Descriptor, fields []string, m [][]float32) (DayMatch, error) {
	hours, err := HoursOf(fields, m)
	if err != nil {
		return DayMatch{}, err
	}
	return matchHours(d, hours), nil
}

func matchHours(d Descriptor, hours []Hour) DayMatch {
	res := DayMatch{DayMatched: true}
	for _, h := range hours {
		switch {
		case d.MatchesHour(h):
			res.Matched++
		case h.IsDay:
			res.DayMatched = false
		}
	}
	return res
}

// Matches reports whether d describes the day.
func Matches(d Descriptor, fields []string, m [][]float32) (bool, error) {
	res, err := Match(d, fields, m)
	return res.OK(), err
}

// CloseEnough returns the candidates that differ from d in at most one component.
func CloseEnough(d Descriptor, candidates []Descriptor) []Descriptor {
	want := d.parts()
	var out []Descriptor
	for _, c := range candidates {
		got := c.parts()
		diff := 0
		for i := range want {
			if want[i] != got[i] {
				diff++
			}
		}
		if diff <= 1 {
			out = append(out, c)
		}
	}
	return out
}

// MatchWithNeighbours tries d, then each close-enough neighbour in order, and
// returns the first descriptor that describes the day.
func MatchWithNeighbours(d Descriptor, neighbours []Descriptor, fields []string, m [][]float32) (Descriptor, bool, error) {
	hours, err := HoursOf(fields, m)
	if err != nil {
		return Descriptor{}, false, err
	}
	if matchHours(d, hours).OK() {
		return d, true, nil
	}
	for _, n := range CloseEnough(d, neighbours) {
		if matchHours(n, hours).OK() {
			return n, true, nil
		}
	}
	return Descriptor{}, false, nil
}
