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

// Package histogram parses and indexes a histogram bucket-map specification,
// the schema a Rewriter uses to turn sparse bucket values into dense arrays.
package histogram

import (
	"encoding/json"
	"fmt"
)

// Definition is one histogram's bucket layout.
type Definition struct {
	Kind        int
	Min         int
	Max         int
	BucketCount int
	buckets     map[int]int // lower_bound -> dense array index
}

// BucketIndex returns the dense position for a bucket lower bound, or -1 if
// the lower bound is not part of this definition.
func (d *Definition) BucketIndex(lowerBound int) int {
	if idx, ok := d.buckets[lowerBound]; ok {
		return idx
	}
	return -1
}

// Spec is an immutable name -> Definition map, parsed once from a JSON
// document fetched for a particular revision.
type Spec struct {
	definitions map[string]*Definition
}

// Definition looks up a histogram by name, or returns nil.
func (s *Spec) Definition(name string) *Definition {
	return s.definitions[name]
}

type rawDoc struct {
	Histograms map[string]rawDefinition `json:"histograms"`
}

type rawDefinition struct {
	Kind        string `json:"kind"`
	Min         int    `json:"min"`
	Max         int    `json:"max"`
	BucketCount int    `json:"bucket_count"`
	Buckets     []int  `json:"buckets"`
}

// Parse builds a Spec from a histogram bucket-map JSON document.
func Parse(b []byte) (*Spec, error) {
	var raw rawDoc
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("histogram: invalid json: %w", err)
	}
	if raw.Histograms == nil {
		return nil, fmt.Errorf("histogram: missing histograms object")
	}

	s := &Spec{definitions: make(map[string]*Definition, len(raw.Histograms))}
	for name, rd := range raw.Histograms {
		var kind int
		if _, err := fmt.Sscanf(rd.Kind, "%d", &kind); err != nil {
			return nil, fmt.Errorf("histogram: key %q has non-integer kind %q", name, rd.Kind)
		}
		if len(rd.Buckets) != rd.BucketCount {
			return nil, fmt.Errorf("histogram: key %q should contain %d elements; %d were specified",
				name, rd.BucketCount, len(rd.Buckets))
		}
		def := &Definition{
			Kind:        kind,
			Min:         rd.Min,
			Max:         rd.Max,
			BucketCount: rd.BucketCount,
			buckets:     make(map[int]int, len(rd.Buckets)),
		}
		for idx, lowerBound := range rd.Buckets {
			def.buckets[lowerBound] = idx
		}
		s.definitions[name] = def
	}
	return s, nil
}
