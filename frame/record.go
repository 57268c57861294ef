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

// Package frame resynchronizes over a byte stream of length-prefixed,
// optionally gzip-compressed telemetry records and hands back parsed JSON
// documents one at a time.
package frame

const (
	// RecordSeparator marks the start of a frame header on the wire.
	RecordSeparator byte = 0x1e
	// UnitSeparator is reserved by the wire format but unused by this core.
	UnitSeparator byte = 0x1f

	MaxPathLength = 10240
	MaxDataLength = 204800

	headerSize = 2 + 4 + 8 // path_len + data_len + timestamp_ms
)

// Record is one parsed telemetry document, still addressable by its routing
// path and arrival timestamp.
type Record struct {
	Path        string
	TimestampMs uint64
	Doc         map[string]interface{}
}
