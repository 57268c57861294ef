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
package writer

import (
	"sort"
	"strings"
)

// reprioritizationInterval is the number of writes, summed across every
// partition, between reprioritization passes.
const reprioritizationInterval = 1000

// PartitionedWriter owns one output file (raw, then streaming-compressed, or
// finally published) per dimension path, rotating each on size and spreading
// a bounded pool of LZMA encoders across the busiest partitions.
type PartitionedWriter struct {
	workDir             string
	uploadDir           string
	maxUncompressedSize int64
	softMemoryLimit     int64
	preset              int

	partitions map[string]*partition
	writeCount int
}

// New constructs a PartitionedWriter. workDir and uploadDir are normalized to
// end with a path separator.
func New(workDir, uploadDir string, maxUncompressedSize, softMemoryLimit int64, preset int) *PartitionedWriter {
	return &PartitionedWriter{
		workDir:             ensureTrailingSlash(workDir),
		uploadDir:           ensureTrailingSlash(uploadDir),
		maxUncompressedSize: maxUncompressedSize,
		softMemoryLimit:     softMemoryLimit,
		preset:              preset,
		partitions:          make(map[string]*partition),
	}
}

func ensureTrailingSlash(dir string) string {
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

// Write appends bytes to the partition named by partitionPath, creating it
// on first use. It may trigger rotation (size threshold) and, every
// reprioritizationInterval writes across all partitions, a reprioritization
// pass. It returns false if the write itself, or a rotation it triggers,
// fails.
func (w *PartitionedWriter) Write(partitionPath string, data []byte) bool {
	p, ok := w.partitions[partitionPath]
	if !ok {
		p = newPartition(w.workDir, partitionPath)
		w.partitions[partitionPath] = p
	}

	if !p.write(data, w.preset) {
		return false
	}

	w.writeCount++
	if w.writeCount%reprioritizationInterval == 0 {
		w.reprioritize()
	}

	if p.totalUncompressedSize > w.maxUncompressedSize {
		ok := p.finalize(w.uploadDir, w.preset)
		delete(w.partitions, partitionPath)
		return ok
	}
	return true
}

// reprioritize redistributes active encoders across the busiest partitions,
// per the soft_memory_limit/preset budget table: the contexts busiest
// eligible partitions (by writes since the last pass) keep or gain an
// encoder, the rest give theirs up.
func (w *PartitionedWriter) reprioritize() {
	var eligible []*partition
	for _, p := range w.partitions {
		if p.canAddCompression() || p.state == stateStreaming {
			eligible = append(eligible, p)
		}
	}
	// Map iteration order is randomized, and with no intervening writes every
	// recordsSinceReprio is 0 on a repeated pass (reset below); without a
	// deterministic tiebreak, ties would rank differently across runs and
	// could swap a partition across the contexts boundary, breaking
	// idempotence.
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].recordsSinceReprio != eligible[j].recordsSinceReprio {
			return eligible[i].recordsSinceReprio > eligible[j].recordsSinceReprio
		}
		return eligible[i].path < eligible[j].path
	})

	contexts := w.softMemoryLimit/perPresetContextSize[w.preset] - 1
	if contexts < 0 {
		contexts = 0
	}

	for rank, p := range eligible {
		if rank >= int(contexts) {
			if p.state == stateStreaming {
				p.removeCompressor()
			}
		} else {
			if p.state == stateRaw {
				p.addCompressor(w.preset)
			}
		}
	}

	for _, p := range w.partitions {
		p.recordsSinceReprio = 0
	}
}

// Finalize finalizes every non-corrupted partition and returns true iff all
// of them succeeded.
func (w *PartitionedWriter) Finalize() bool {
	allOK := true
	for path, p := range w.partitions {
		if !p.finalize(w.uploadDir, w.preset) {
			allOK = false
		}
		delete(w.partitions, path)
	}
	return allOK
}
