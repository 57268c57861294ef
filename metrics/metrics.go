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

// Package metrics collects the counters every pipeline component emits.
// Every counter is drained and reset together, mirroring the GetMetrics()
// contract each C++ collaborator used to expose individually.
package metrics

import "sync/atomic"

// Snapshot is the set of counters emitted for one reporting interval.
type Snapshot struct {
	ConnectionErrors        uint64
	HTTPErrors              uint64
	InvalidHistograms       uint64
	InvalidRevisions        uint64
	CacheHits               uint64
	CacheMisses             uint64
	RecordsProcessed        uint64
	RecordsDiscarded        uint64
	DataIn                  uint64
	DataOut                 uint64
	Exceptions              uint64
	InvalidPathLength       uint64
	InvalidDataLength       uint64
	InflateFailures         uint64
	ParseFailures           uint64
	CorruptData             uint64
	InvalidStringDimension  uint64
	InvalidNumericDimension uint64
}

// Collector is the process-wide counter set, passed explicitly to every
// component instead of living behind package-level globals.
type Collector struct {
	connectionErrors        uint64
	httpErrors              uint64
	invalidHistograms       uint64
	invalidRevisions        uint64
	cacheHits               uint64
	cacheMisses             uint64
	recordsProcessed        uint64
	recordsDiscarded        uint64
	dataIn                  uint64
	dataOut                 uint64
	exceptions              uint64
	invalidPathLength       uint64
	invalidDataLength       uint64
	inflateFailures         uint64
	parseFailures           uint64
	corruptData             uint64
	invalidStringDimension  uint64
	invalidNumericDimension uint64
}

// New creates an empty Collector.
func New() *Collector {
	return &Collector{}
}

func (c *Collector) AddConnectionError()        { atomic.AddUint64(&c.connectionErrors, 1) }
func (c *Collector) AddHTTPError()              { atomic.AddUint64(&c.httpErrors, 1) }
func (c *Collector) AddInvalidHistogram()       { atomic.AddUint64(&c.invalidHistograms, 1) }
func (c *Collector) AddInvalidRevision()        { atomic.AddUint64(&c.invalidRevisions, 1) }
func (c *Collector) AddCacheHit()               { atomic.AddUint64(&c.cacheHits, 1) }
func (c *Collector) AddCacheMiss()              { atomic.AddUint64(&c.cacheMisses, 1) }
func (c *Collector) AddRecordsProcessed(n uint64) { atomic.AddUint64(&c.recordsProcessed, n) }
func (c *Collector) AddRecordsDiscarded(n uint64) { atomic.AddUint64(&c.recordsDiscarded, n) }
func (c *Collector) AddDataIn(n uint64)         { atomic.AddUint64(&c.dataIn, n) }
func (c *Collector) AddDataOut(n uint64)        { atomic.AddUint64(&c.dataOut, n) }
func (c *Collector) AddException()              { atomic.AddUint64(&c.exceptions, 1) }
func (c *Collector) AddInvalidPathLength()      { atomic.AddUint64(&c.invalidPathLength, 1) }
func (c *Collector) AddInvalidDataLength()      { atomic.AddUint64(&c.invalidDataLength, 1) }
func (c *Collector) AddInflateFailure()         { atomic.AddUint64(&c.inflateFailures, 1) }
func (c *Collector) AddParseFailure()           { atomic.AddUint64(&c.parseFailures, 1) }
func (c *Collector) AddCorruptDataByte()        { atomic.AddUint64(&c.corruptData, 1) }
func (c *Collector) AddInvalidStringDimension() { atomic.AddUint64(&c.invalidStringDimension, 1) }
func (c *Collector) AddInvalidNumericDimension() {
	atomic.AddUint64(&c.invalidNumericDimension, 1)
}

// Drain returns the current counter values and resets them to zero, matching
// the emit-then-clear_fields cadence of the original per-component metrics.
func (c *Collector) Drain() Snapshot {
	return Snapshot{
		ConnectionErrors:        atomic.SwapUint64(&c.connectionErrors, 0),
		HTTPErrors:              atomic.SwapUint64(&c.httpErrors, 0),
		InvalidHistograms:       atomic.SwapUint64(&c.invalidHistograms, 0),
		InvalidRevisions:        atomic.SwapUint64(&c.invalidRevisions, 0),
		CacheHits:               atomic.SwapUint64(&c.cacheHits, 0),
		CacheMisses:             atomic.SwapUint64(&c.cacheMisses, 0),
		RecordsProcessed:        atomic.SwapUint64(&c.recordsProcessed, 0),
		RecordsDiscarded:        atomic.SwapUint64(&c.recordsDiscarded, 0),
		DataIn:                  atomic.SwapUint64(&c.dataIn, 0),
		DataOut:                 atomic.SwapUint64(&c.dataOut, 0),
		Exceptions:              atomic.SwapUint64(&c.exceptions, 0),
		InvalidPathLength:       atomic.SwapUint64(&c.invalidPathLength, 0),
		InvalidDataLength:       atomic.SwapUint64(&c.invalidDataLength, 0),
		InflateFailures:         atomic.SwapUint64(&c.inflateFailures, 0),
		ParseFailures:           atomic.SwapUint64(&c.parseFailures, 0),
		CorruptData:             atomic.SwapUint64(&c.corruptData, 0),
		InvalidStringDimension:  atomic.SwapUint64(&c.invalidStringDimension, 0),
		InvalidNumericDimension: atomic.SwapUint64(&c.invalidNumericDimension, 0),
	}
}

// Peek returns the current counters without resetting them, for the status
// server's live dashboard.
func (c *Collector) Peek() Snapshot {
	return Snapshot{
		ConnectionErrors:        atomic.LoadUint64(&c.connectionErrors),
		HTTPErrors:              atomic.LoadUint64(&c.httpErrors),
		InvalidHistograms:       atomic.LoadUint64(&c.invalidHistograms),
		InvalidRevisions:        atomic.LoadUint64(&c.invalidRevisions),
		CacheHits:               atomic.LoadUint64(&c.cacheHits),
		CacheMisses:             atomic.LoadUint64(&c.cacheMisses),
		RecordsProcessed:        atomic.LoadUint64(&c.recordsProcessed),
		RecordsDiscarded:        atomic.LoadUint64(&c.recordsDiscarded),
		DataIn:                  atomic.LoadUint64(&c.dataIn),
		DataOut:                 atomic.LoadUint64(&c.dataOut),
		Exceptions:              atomic.LoadUint64(&c.exceptions),
		InvalidPathLength:       atomic.LoadUint64(&c.invalidPathLength),
		InvalidDataLength:       atomic.LoadUint64(&c.invalidDataLength),
		InflateFailures:         atomic.LoadUint64(&c.inflateFailures),
		ParseFailures:           atomic.LoadUint64(&c.parseFailures),
		CorruptData:             atomic.LoadUint64(&c.corruptData),
		InvalidStringDimension:  atomic.LoadUint64(&c.invalidStringDimension),
		InvalidNumericDimension: atomic.LoadUint64(&c.invalidNumericDimension),
	}
}
