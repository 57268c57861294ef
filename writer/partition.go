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
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// compressionThreshold is the raw_only_size above which a partition becomes
// eligible for an attached encoder (CanAddCompression).
const compressionThreshold = 20 * 1024 * 1024

type partitionState int

const (
	stateInitial partitionState = iota
	stateRaw
	stateStreaming
	stateCorrupted
)

const (
	rawFileName        = "data.log"
	compressedFileName = "data.log.xz"
)

// partition is the per-output-path state: the PartitionEntry described by
// the writer's invariants. One partition corresponds to one dimension path
// and owns at most a raw file, a compressed file, and an active encoder.
type partition struct {
	path string // the dimension path, also the directory name under work_dir
	dir  string

	rawFile        *os.File
	compressedFile *os.File
	enc            *encoder

	totalUncompressedSize int64
	rawOnlySize           int64
	recordsSinceReprio    int
	state                 partitionState
}

func newPartition(workDir, path string) *partition {
	return &partition{path: path, dir: filepath.Join(workDir, path)}
}

func (p *partition) canAddCompression() bool {
	return p.state == stateRaw && p.rawOnlySize > compressionThreshold
}

// write appends data to the partition in whatever state it currently holds,
// opening a raw file on the first call. It returns false (and marks the
// partition corrupted) on any I/O failure.
func (p *partition) write(data []byte, preset int) bool {
	if p.state == stateCorrupted {
		return false
	}
	if p.state == stateInitial {
		if err := os.MkdirAll(p.dir, 0750); err != nil {
			p.state = stateCorrupted
			return false
		}
		f, err := os.Create(filepath.Join(p.dir, rawFileName))
		if err != nil {
			p.state = stateCorrupted
			return false
		}
		p.rawFile = f
		p.state = stateRaw
	}

	var ok bool
	switch p.state {
	case stateRaw:
		_, err := p.rawFile.Write(data)
		ok = err == nil
		if ok {
			p.rawOnlySize += int64(len(data))
		}
	case stateStreaming:
		ok = p.enc.write(data)
	}
	if !ok {
		p.state = stateCorrupted
		return false
	}

	p.totalUncompressedSize += int64(len(data))
	p.recordsSinceReprio++
	return true
}

// addCompressor performs the RAW -> STREAMING_COMPRESSED transition: it opens
// the compressed file (if a previous streaming session on this partition
// hasn't already left one open — xz readers handle concatenated streams
// transparently, so appending a fresh stream to an existing file is valid),
// streams the existing raw file's contents through a fresh encoder, then
// closes and unlinks the raw file.
func (p *partition) addCompressor(preset int) bool {
	if p.state != stateRaw {
		return p.state == stateStreaming
	}

	cf := p.compressedFile
	if cf == nil {
		f, err := os.OpenFile(filepath.Join(p.dir, compressedFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			p.state = stateCorrupted
			return false
		}
		cf = f
	}
	enc, err := newEncoder(cf, preset)
	if err != nil {
		if p.compressedFile == nil {
			cf.Close()
		}
		p.state = stateCorrupted
		return false
	}

	if err := p.rawFile.Close(); err != nil {
		p.state = stateCorrupted
		return false
	}
	rawPath := filepath.Join(p.dir, rawFileName)
	raw, err := os.Open(rawPath)
	if err != nil {
		p.state = stateCorrupted
		return false
	}
	_, copyErr := io.Copy(writerFunc(enc.write), raw)
	raw.Close()
	if copyErr != nil {
		p.state = stateCorrupted
		return false
	}
	if err := os.Remove(rawPath); err != nil {
		p.state = stateCorrupted
		return false
	}

	p.rawFile = nil
	p.compressedFile = cf
	p.enc = enc
	p.rawOnlySize = 0
	p.state = stateStreaming
	return true
}

// removeCompressor performs the STREAMING_COMPRESSED -> RAW transition: the
// active encoder is finalized (flushing its pending xz stream into
// p.compressedFile) and destroyed, freeing its resident memory. The
// compressed file itself is left open, since it may still hold data that has
// not been published: finalize is responsible for closing and renaming it,
// whether or not the partition receives any further writes. A fresh raw file
// is opened lazily on the partition's next write.
func (p *partition) removeCompressor() bool {
	if p.state != stateStreaming {
		return p.state == stateRaw
	}
	if !p.enc.finalize() {
		p.state = stateCorrupted
		return false
	}
	p.enc = nil
	p.state = stateInitial // reopens a fresh raw file lazily on next write
	return true
}

// finalize converts any remaining raw data to compressed form, closes the
// compressed file, and atomically publishes it under uploadDir. It returns
// true iff the partition held no data, or every step above succeeded. A
// partition can reach here in stateInitial carrying a still-open
// compressedFile left behind by a prior removeCompressor that was never
// followed by another write; that pending stream must still be published.
func (p *partition) finalize(uploadDir string, preset int) bool {
	if p.state == stateCorrupted {
		return false
	}
	if p.state == stateInitial && p.compressedFile == nil {
		return true
	}
	if p.state == stateRaw {
		if !p.addCompressor(preset) {
			return false
		}
	}
	if p.state == stateStreaming {
		if !p.enc.finalize() {
			p.state = stateCorrupted
			return false
		}
		p.enc = nil
	}
	if err := p.compressedFile.Close(); err != nil {
		p.state = stateCorrupted
		return false
	}

	destDir := filepath.Join(uploadDir, p.path)
	if err := os.MkdirAll(destDir, 0750); err != nil {
		p.state = stateCorrupted
		return false
	}
	dest := filepath.Join(destDir, compressedFileName)
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(destDir, fmt.Sprintf("data-%s.log.xz", newUUID().String()))
	}
	if err := os.Rename(filepath.Join(p.dir, compressedFileName), dest); err != nil {
		p.state = stateCorrupted
		return false
	}
	p.compressedFile = nil
	return true
}

// writerFunc adapts a write(([]byte) bool) method to io.Writer so it can be
// used as the destination of io.Copy.
type writerFunc func([]byte) bool

func (f writerFunc) Write(p []byte) (int, error) {
	if !f(p) {
		return 0, fmt.Errorf("writer: stream write failed")
	}
	return len(p), nil
}
