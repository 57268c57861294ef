package frame

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/mozilla/telemetry-pipeline/metrics"
)

// Status reports what Read() found for this call.
type Status int

const (
	// OK means Record is populated and valid.
	OK Status = iota
	// EndOfStream means the buffer is exhausted (or truncated) with no more
	// complete frames available.
	EndOfStream
)

// Reader resynchronizes over a whole input file already read into memory.
// Telemetry conversion is explicitly batch-oriented (see Non-goals), so the
// reader owns one buffer for the entire file rather than a streaming window;
// this gives resync its required "rewind to the byte after the tentative
// separator" semantics for free via plain index arithmetic.
type Reader struct {
	buf     []byte
	offset  int
	metrics *metrics.Collector
}

// New wraps buf (the full contents of one input file) for framed reading.
func New(buf []byte, m *metrics.Collector) *Reader {
	return &Reader{buf: buf, metrics: m}
}

// Read returns the next valid Record, resynchronizing over any garbage or
// malformed headers it encounters along the way.
func (r *Reader) Read() (*Record, Status) {
	for r.offset < len(r.buf) {
		if r.buf[r.offset] != RecordSeparator {
			r.metrics.AddCorruptDataByte()
			r.offset++
			continue
		}

		sepPos := r.offset
		headerStart := sepPos + 1
		if headerStart+headerSize > len(r.buf) {
			// not enough bytes left for a header; nothing more to resync over
			return nil, EndOfStream
		}

		pathLen := binary.LittleEndian.Uint16(r.buf[headerStart : headerStart+2])
		dataLen := binary.LittleEndian.Uint32(r.buf[headerStart+2 : headerStart+6])
		timestampMs := binary.LittleEndian.Uint64(r.buf[headerStart+6 : headerStart+14])

		if pathLen > MaxPathLength {
			r.metrics.AddInvalidPathLength()
			r.offset = sepPos + 1
			continue
		}
		if dataLen > MaxDataLength {
			r.metrics.AddInvalidDataLength()
			r.offset = sepPos + 1
			continue
		}

		bodyStart := headerStart + headerSize
		bodyEnd := bodyStart + int(pathLen) + int(dataLen)
		if bodyEnd > len(r.buf) {
			// truncated: the declared lengths run past what we have
			return nil, EndOfStream
		}

		path := r.buf[bodyStart : bodyStart+int(pathLen)]
		data := r.buf[bodyStart+int(pathLen) : bodyEnd]
		r.offset = bodyEnd

		jsonBytes, ok := r.inflateIfNeeded(data)
		if !ok {
			continue
		}

		var doc map[string]interface{}
		if err := json.Unmarshal(jsonBytes, &doc); err != nil {
			r.metrics.AddParseFailure()
			continue
		}

		r.metrics.AddDataIn(uint64(len(data)))
		r.metrics.AddDataOut(uint64(len(jsonBytes)))

		return &Record{
			Path:        string(path),
			TimestampMs: timestampMs,
			Doc:         doc,
		}, OK
	}
	return nil, EndOfStream
}

// inflateIfNeeded detects the gzip magic and, if present, decompresses data
// with a gzip (16+MAX_WBITS equivalent) window. compress/gzip already
// implements the grow-and-retry inflate loop the wire format calls for, so
// there is no manual buffer-doubling to replicate here.
func (r *Reader) inflateIfNeeded(data []byte) ([]byte, bool) {
	if len(data) <= 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, true
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		r.metrics.AddInflateFailure()
		return nil, false
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		r.metrics.AddInflateFailure()
		return nil, false
	}
	return out, true
}
