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

// Package rewriter performs the schema-driven sparse-to-dense histogram
// rewrite: doc.histograms[name] moves from a bucket-lower-bound map to a
// positionally indexed array plus a fixed five-value summary tail.
package rewriter

import (
	"strconv"
	"strings"

	"github.com/mozilla/telemetry-pipeline/histogram"
	"github.com/mozilla/telemetry-pipeline/histogramcache"
)

// SummaryKeys names the five trailing statistics appended to every
// rewritten histogram array, in order.
var SummaryKeys = [5]string{"sum", "log_sum", "log_sum_squares", "sum_squares_lo", "sum_squares_hi"}

const startupPrefix = "STARTUP_"

// Rewrite converts doc's histograms in place. ver == 2 is already converted
// and returns true unchanged; any ver outside {1, 2} fails.
func Rewrite(cache *histogramcache.Cache, doc map[string]interface{}) bool {
	verF, ok := doc["ver"].(float64)
	if !ok {
		return false
	}
	ver := int(verF)
	switch ver {
	case 2:
		return true
	case 1:
		// fall through
	default:
		return false
	}

	info, ok := doc["info"].(map[string]interface{})
	if !ok {
		doc["ver"] = float64(-1)
		return false
	}
	revision, ok := info["revision"].(string)
	if !ok {
		doc["ver"] = float64(-1)
		return false
	}
	histograms, ok := doc["histograms"].(map[string]interface{})
	if !ok {
		doc["ver"] = float64(-1)
		return false
	}

	spec := cache.Find(revision)
	if spec == nil {
		doc["ver"] = float64(-1)
		return false
	}

	renamed := make(map[string]interface{}, len(histograms))
	for name, raw := range histograms {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			doc["ver"] = float64(-1)
			return false
		}

		def := spec.Definition(name)
		outName := name
		if def == nil && strings.HasPrefix(name, startupPrefix) {
			stripped := name[len(startupPrefix):]
			if d := spec.Definition(stripped); d != nil {
				def = d
				outName = stripped
			}
		}
		if def == nil {
			doc["ver"] = float64(-1)
			return false
		}

		dense, ok := rewriteValues(def, entry)
		if !ok {
			doc["ver"] = float64(-1)
			return false
		}

		array := make([]interface{}, 0, def.BucketCount+len(SummaryKeys))
		for _, v := range dense {
			array = append(array, v)
		}
		for _, key := range SummaryKeys {
			if v, ok := entry[key].(float64); ok {
				array = append(array, v)
			} else {
				array = append(array, -1.0)
			}
		}
		renamed[outName] = array
	}

	doc["histograms"] = renamed
	doc["ver"] = float64(2)
	return true
}

// rewriteValues allocates a dense, zero-initialized bucket array and fills
// it from the entry's sparse "values" map, keyed by decimal lower bound.
func rewriteValues(def *histogram.Definition, entry map[string]interface{}) ([]int, bool) {
	values, ok := entry["values"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	dense := make([]int, def.BucketCount)
	for k, v := range values {
		count, ok := v.(float64)
		if !ok {
			return nil, false
		}
		lowerBound, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, false
		}
		idx := def.BucketIndex(int(lowerBound))
		if idx == -1 {
			return nil, false
		}
		dense[idx] = int(count)
	}
	return dense, true
}
