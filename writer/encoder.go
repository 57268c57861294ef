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
	"bufio"
	"os"

	"github.com/ulikunitz/xz"
)

// outputBufferSize is the fixed-size buffer between the LZMA encoder and the
// underlying file; it is flushed whenever full.
const outputBufferSize = 8 * 1024

// presetDictCap mirrors the xz command line's per-preset dictionary size; it
// is the dominant factor in an encoder's resident memory and the basis for
// perPresetContextSize below.
var presetDictCap = [10]int{
	1 << 18, // 0: 256 KiB
	1 << 20, // 1: 1 MiB
	1 << 21, // 2: 2 MiB
	1 << 22, // 3: 4 MiB
	1 << 22, // 4: 4 MiB
	1 << 23, // 5: 8 MiB
	1 << 23, // 6: 8 MiB
	1 << 24, // 7: 16 MiB
	1 << 25, // 8: 32 MiB
	1 << 26, // 9: 64 MiB
}

// perPresetContextSize gives the resident memory (bytes) an active encoder
// at the given preset is expected to hold, used to budget the number of
// simultaneously active encoders against soft_memory_limit.
var perPresetContextSize = [10]int64{
	3145728,
	9437184,
	17825792,
	33554432,
	50331648,
	98566144,
	98566144,
	195035136,
	387973120,
	706740224,
}

// encoder wraps a streaming XZ/LZMA encoder writing into file, buffered
// through a fixed-size bufio.Writer.
type encoder struct {
	file *os.File
	buf  *bufio.Writer
	xzw  *xz.Writer
}

// newEncoder attaches a streaming encoder to file at the given compression
// preset (0..9), using a CRC64 integrity check as the original format
// expects.
func newEncoder(file *os.File, preset int) (*encoder, error) {
	buf := bufio.NewWriterSize(file, outputBufferSize)
	cfg := xz.WriterConfig{
		DictCap:  presetDictCap[preset],
		CheckSum: xz.CRC64,
	}
	xzw, err := cfg.NewWriter(buf)
	if err != nil {
		return nil, err
	}
	return &encoder{file: file, buf: buf, xzw: xzw}, nil
}

// write streams bytes through the encoder.
func (e *encoder) write(data []byte) bool {
	_, err := e.xzw.Write(data)
	return err == nil
}

// finalize flushes all deferred encoder output and the underlying buffer,
// then tears down the encoder. The file itself is left open; callers close
// it separately once finalize succeeds.
func (e *encoder) finalize() bool {
	if err := e.xzw.Close(); err != nil {
		return false
	}
	if err := e.buf.Flush(); err != nil {
		return false
	}
	return true
}
