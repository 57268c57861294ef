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

// Package histogramcache is the two-level, content-addressed cache of
// histogram bucket-map specifications: one level keyed by the revision URL
// a document names, one level keyed by the MD5 of the fetched JSON so that
// distinct revisions sharing identical bucket layouts dedupe onto one Spec.
package histogramcache

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/launix-de/NonLockingReadMap"

	"github.com/mozilla/telemetry-pipeline/histogram"
	"github.com/mozilla/telemetry-pipeline/metrics"
)

// DefaultTimeout bounds the synchronous HTTP GET; the original source had
// none, which is a latent hang risk against a stuck histogram server.
const DefaultTimeout = 10 * time.Second

// revisionEntry is the Level A value. A present entry with spec == nil is a
// negative cache hit: the revision previously answered non-200 and must not
// be retried.
type revisionEntry struct {
	spec *histogram.Spec
}

// contentEntry is the Level B value, keyed by hex-encoded MD5 of the raw
// JSON bytes. It is read far more often than written (many revisions share
// content), which is exactly the access pattern NonLockingReadMap targets.
type contentEntry struct {
	key  string
	spec *histogram.Spec
	size uint
}

func (c contentEntry) GetKey() string    { return c.key }
func (c contentEntry) ComputeSize() uint { return c.size }

// Cache is the histogram specification cache. It is only ever mutated by
// the single worker goroutine that owns the pipeline; no internal locking
// is required beyond what NonLockingReadMap already provides for Level B.
type Cache struct {
	server     string
	tempDir    string
	httpClient *http.Client
	timeout    time.Duration

	revisions map[string]revisionEntry
	content   NonLockingReadMap.NonLockingReadMap[contentEntry, string]

	metrics *metrics.Collector
}

// New creates a Cache that fetches from server (host:port) and keeps its
// disk tier under tempDir.
func New(server, tempDir string, m *metrics.Collector) *Cache {
	if err := os.MkdirAll(tempDir, 0750); err != nil {
		// the disk tier degrades to network-only; not fatal
	}
	return &Cache{
		server:     server,
		tempDir:    tempDir,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		timeout:    DefaultTimeout,
		revisions:  make(map[string]revisionEntry),
		content:    NonLockingReadMap.New[contentEntry, string](),
		metrics:    m,
	}
}

// Find resolves a HistogramSpec for a revision key, or returns nil if it
// cannot (an unparseable revision, a cache miss that fails over the
// network, or a previously negative-cached revision).
func (c *Cache) Find(revisionKey string) *histogram.Spec {
	if !strings.HasPrefix(revisionKey, "http") {
		c.metrics.AddInvalidRevision()
		return nil
	}

	if e, ok := c.revisions[revisionKey]; ok {
		if e.spec != nil {
			c.metrics.AddCacheHit()
		}
		// a negative entry (e.spec == nil) is also a "hit" against the
		// revision cache in the sense that it short-circuits the network,
		// but it never counts as progress, so nothing else to record here.
		return e.spec
	}

	c.metrics.AddCacheMiss()
	spec, negativeCache := c.load(revisionKey)
	if negativeCache {
		c.revisions[revisionKey] = revisionEntry{spec: nil}
	} else if spec != nil {
		c.revisions[revisionKey] = revisionEntry{spec: spec}
	}
	return spec
}

// load fetches (or loads from the temp tier) the JSON for revisionKey,
// parses it, and populates the content-hash level; Find records the result
// in the revision level. negativeCache reports whether the caller should
// remember this revision as permanently absent.
func (c *Cache) load(revisionKey string) (spec *histogram.Spec, negativeCache bool) {
	jsonBytes, err := c.readTempCache(revisionKey)
	if err != nil {
		jsonBytes, negativeCache, err = c.fetch(revisionKey)
		if err != nil {
			// net/http.Client.Do collapses "couldn't connect" and "got a
			// malformed response" into the same error type, so a response
			// that fails to parse as HTTP is counted here as a connection
			// error rather than as http_errors (spec's §4.4 step 3c); they
			// are not distinguishable without dropping to a raw net.Conn.
			c.metrics.AddConnectionError()
			return nil, false
		}
		if negativeCache {
			return nil, true
		}
		c.writeTempCache(revisionKey, jsonBytes)
	}

	sum := md5.Sum(jsonBytes)
	key := hex.EncodeToString(sum[:])

	if existing := c.content.Get(key); existing != nil {
		return existing.spec, false
	}

	parsed, err := histogram.Parse(jsonBytes)
	if err != nil {
		c.metrics.AddInvalidHistogram()
		return nil, false
	}

	entry := &contentEntry{key: key, spec: parsed, size: uint(len(jsonBytes))}
	c.content.Set(entry)
	return parsed, false
}

// fetch issues GET /histogram_buckets?revision=<raw revision string> with
// Connection: close. net/http ignores the Proto fields on client requests,
// so the request goes out as HTTP/1.1, not HTTP/1.0. The revision string is
// embedded unescaped in the request line: a latent bug for arbitrary
// revisions, preserved to match current server behavior (see design notes).
func (c *Cache) fetch(revisionKey string) (body []byte, negativeCache bool, err error) {
	req, err := http.NewRequest(http.MethodGet, "http://"+c.server+"/histogram_buckets?revision="+revisionKey, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Host", c.server)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "close")
	req.Close = true
	req.Proto = "HTTP/1.0"
	req.ProtoMajor = 1
	req.ProtoMinor = 0

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.AddHTTPError()
		return nil, true, nil
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("histogramcache: reading response body: %w", err)
	}
	return body, false, nil
}

// tempCacheFile derives a filesystem-safe path under tempDir, replacing the
// path-separating slashes the revision URL inevitably contains.
func (c *Cache) tempCacheFile(revisionKey string) string {
	safe := strings.ReplaceAll(revisionKey, "/", "-")
	return filepath.Join(c.tempDir, safe+".json.lz4")
}

// readTempCache returns the cached JSON bytes for a revision, lz4-decoding
// the disk tier (histogram specs are fetched far more than they change, and
// a long-lived temp directory accumulates many of them; lz4 trades a little
// CPU for materially less disk footprint than storing them raw).
func (c *Cache) readTempCache(revisionKey string) ([]byte, error) {
	f, err := os.Open(c.tempCacheFile(revisionKey))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr := lz4.NewReader(f)
	return io.ReadAll(zr)
}

func (c *Cache) writeTempCache(revisionKey string, jsonBytes []byte) {
	f, err := os.Create(c.tempCacheFile(revisionKey))
	if err != nil {
		return
	}
	defer f.Close()
	bw := bufio.NewWriterSize(f, 16*1024)
	zw := lz4.NewWriter(bw)
	if _, err := zw.Write(jsonBytes); err != nil {
		return
	}
	if err := zw.Close(); err != nil {
		return
	}
	bw.Flush()
}

