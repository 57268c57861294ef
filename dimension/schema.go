/*
Copyright (C) 2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package dimension computes the partitioned upload path for a telemetry
// document from an ordered, remotely-versioned dimension schema.
package dimension

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/mozilla/telemetry-pipeline/metrics"
)

const other = "other"

var safePathRe = regexp.MustCompile(`[^A-Za-z0-9_/.]`)

// SafePath replaces every character outside [A-Za-z0-9_/.] with an underscore.
func SafePath(s string) string {
	return safePathRe.ReplaceAllString(s, "_")
}

// Kind discriminates the three dimension rule shapes.
type Kind int

const (
	KindValue Kind = iota
	KindSet
	KindRange
)

// Dimension is one ordered rule in a DimensionSchema.
type Dimension struct {
	FieldName string
	Kind      Kind
	Value     string          // KindValue: "*" or an exact match
	Set       map[string]bool // KindSet: membership
	Min, Max  float64         // KindRange: inclusive bounds
}

// Schema is an ordered list of Dimensions; ordering defines the path layout.
type Schema struct {
	Version    int
	Dimensions []Dimension
	metrics    *metrics.Collector
}

type rawSchema struct {
	Version    int `json:"version"`
	Dimensions []struct {
		FieldName     string          `json:"field_name"`
		AllowedValues json.RawMessage `json:"allowed_values"`
	} `json:"dimensions"`
}

type rawRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Load parses a DimensionSchema JSON file.
func Load(path string, m *metrics.Collector) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dimension: open %s: %w", path, err)
	}
	return Parse(b, m)
}

// Parse builds a Schema from raw JSON bytes.
func Parse(b []byte, m *metrics.Collector) (*Schema, error) {
	var raw rawSchema
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("dimension: invalid schema json: %w", err)
	}

	s := &Schema{Version: raw.Version, metrics: m}
	for _, rd := range raw.Dimensions {
		if rd.FieldName == "" {
			return nil, fmt.Errorf("dimension: missing field_name element")
		}
		d := Dimension{FieldName: rd.FieldName}

		var asString string
		if err := json.Unmarshal(rd.AllowedValues, &asString); err == nil {
			d.Kind = KindValue
			d.Value = asString
			s.Dimensions = append(s.Dimensions, d)
			continue
		}

		var asSet []string
		if err := json.Unmarshal(rd.AllowedValues, &asSet); err == nil {
			d.Kind = KindSet
			d.Set = make(map[string]bool, len(asSet))
			for _, v := range asSet {
				d.Set[v] = true
			}
			s.Dimensions = append(s.Dimensions, d)
			continue
		}

		var asRange rawRange
		if err := json.Unmarshal(rd.AllowedValues, &asRange); err == nil {
			d.Kind = KindRange
			d.Min, d.Max = asRange.Min, asRange.Max
			s.Dimensions = append(s.Dimensions, d)
			continue
		}

		return nil, fmt.Errorf("dimension: invalid allowed_values for %q", rd.FieldName)
	}
	return s, nil
}

// PathOf computes the partition path for one record. The separator between
// tokens is "/", except the separator before the last dimension, which is
// ".". This last-separator rule is load-bearing for downstream layout.
func (s *Schema) PathOf(info map[string]interface{}, timestampMs uint64) string {
	var path string
	for i, d := range s.Dimensions {
		sep := ""
		if path != "" {
			if i == len(s.Dimensions)-1 {
				sep = "."
			} else {
				sep = "/"
			}
		}

		if d.FieldName == "submission_date" {
			date := time.UnixMilli(int64(timestampMs)).UTC().Format("20060102")
			if token, ok := s.processString(d, date); ok {
				path += sep + token
			}
			continue
		}

		v, present := info[d.FieldName]
		if !present {
			continue
		}
		switch val := v.(type) {
		case string:
			if token, ok := s.processString(d, val); ok {
				path += sep + token
			}
		case float64:
			if d.Kind == KindRange {
				if val >= d.Min && val <= d.Max {
					path += sep + formatNumber(val)
				} else {
					path += sep + other
				}
			} else {
				// string comparison not allowed on numbers
				s.metrics.AddInvalidNumericDimension()
			}
		}
	}
	return path
}

// processString returns the token to append and whether it should be
// appended at all; a Range dimension matched against a string value is
// skipped entirely (no token, no separator), it only counts a metric.
func (s *Schema) processString(d Dimension, v string) (string, bool) {
	switch d.Kind {
	case KindValue:
		if d.Value == "*" || d.Value == v {
			return SafePath(v), true
		}
		return other, true
	case KindSet:
		if d.Set[v] {
			return SafePath(v), true
		}
		return other, true
	default:
		// range comparison not allowed on a string
		s.metrics.AddInvalidStringDimension()
		return "", false
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
