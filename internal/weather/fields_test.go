package weather

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestHourlySeriesKeepsFirstHourKeyOrder(t *testing.T) {
	hours := []json.RawMessage{
		json.RawMessage(`{"time":"00:00","humidity":80,"temp_f":33.1,"temp_c":1.5,"condition":{"text":"Fog"},"cloud":90}`),
		json.RawMessage(`{"cloud":75,"temp_c":2,"humidity":81,"time":"01:00"}`),
	}
	fields, values, err := hourlySeries(hours)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"humidity", "temp_c", "cloud"}; !reflect.DeepEqual(fields, want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}
	if got := values["temp_c"]; !reflect.DeepEqual(got, []float32{1.5, 2}) {
		t.Fatalf("temp_c = %v", got)
	}
	if got := values["cloud"]; !reflect.DeepEqual(got, []float32{90, 75}) {
		t.Fatalf("cloud = %v", got)
	}
}

func TestHourlySeriesErrors(t *testing.T) {
	cases := []struct {
		name  string
		hours []string
		check func(error) bool
	}{
		{"not an object", []string{`[1,2]`}, func(err error) bool { return strings.Contains(err.Error(), "expected object") }},
		{"invalid json", []string{`{"temp_c":`}, func(err error) bool { return strings.Contains(err.Error(), "invalid json") }},
		{"missing in later hour", []string{`{"temp_c":1,"cloud":2}`, `{"temp_c":1}`}, func(err error) bool { return errors.Is(err, ErrMissingField) }},
		{"non numeric", []string{`{"temp_c":"warm"}`}, func(err error) bool { return strings.Contains(err.Error(), "not numeric") }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := make([]json.RawMessage, len(c.hours))
			for i, h := range c.hours {
				raw[i] = json.RawMessage(h)
			}
			_, _, err := hourlySeries(raw)
			if err == nil || !c.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}
