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

// Command convert drives the telemetry conversion pipeline over a list of
// input files: convert <config.json> <file_list.txt>.
package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dc0d/onexit"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/mozilla/telemetry-pipeline/config"
	"github.com/mozilla/telemetry-pipeline/dimension"
	"github.com/mozilla/telemetry-pipeline/frame"
	"github.com/mozilla/telemetry-pipeline/histogramcache"
	"github.com/mozilla/telemetry-pipeline/metrics"
	"github.com/mozilla/telemetry-pipeline/rewriter"
	"github.com/mozilla/telemetry-pipeline/statusserver"
	"github.com/mozilla/telemetry-pipeline/writer"
)

// filePollInterval is how often a not-yet-existing input file is re-checked.
const filePollInterval = 2 * time.Second

func main() {
	if len(os.Args) != 3 {
		logrus.Fatal("usage: convert <config.json> <file_list.txt>")
	}
	os.Exit(run(os.Args[1], os.Args[2]))
}

func run(configPath, fileListPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Error("loading configuration")
		return 1
	}

	m := metrics.New()
	onexit.Register(func() {
		logrus.WithFields(metricsFields(m.Peek())).Info("final metrics snapshot")
	})

	schema, err := dimension.Load(cfg.TelemetrySchema, m)
	if err != nil {
		logrus.WithError(err).Error("loading telemetry schema")
		return 1
	}

	cache := histogramcache.New(cfg.HistogramServer, filepath.Join(cfg.StoragePath, "histogram_cache"), m)
	w := writer.New(cfg.StoragePath, cfg.UploadPath, int64(cfg.MaxUncompressed), cfg.SoftMemoryLimit, cfg.CompressionPreset)

	if cfg.StatusAddr != "" {
		status := statusserver.New(cfg.StatusAddr, m)
		status.Serve()
		onexit.Register(func() { status.Close() })
	}

	files, err := readFileList(fileListPath)
	if err != nil {
		logrus.WithError(err).Error("reading file list")
		return 1
	}

	exitCode := 0
	for _, path := range files {
		waitForFile(path)

		if err := processFile(path, schema, cache, w, m); err != nil {
			logrus.WithError(err).WithField("file", path).Error("processing input file")
			exitCode = 1
			continue
		}
		if err := os.Remove(path); err != nil {
			logrus.WithError(err).WithField("file", path).Warn("removing processed input file")
		}

		logrus.WithFields(metricsFields(m.Drain())).Info("file processed")
	}

	if !w.Finalize() {
		logrus.Error("one or more partitions failed to finalize")
		exitCode = 1
	}
	return exitCode
}

// readFileList returns every non-blank line of path, in order.
func readFileList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var files []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		files = append(files, line)
	}
	return files, sc.Err()
}

// waitForFile blocks until path exists. It watches path's directory with
// fsnotify for a create/write event, falling back to a filePollInterval
// poll if the directory can't be watched (missing, or no inotify support).
func waitForFile(path string) {
	if _, err := os.Stat(path); err == nil {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		pollForFile(path)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		pollForFile(path)
		return
	}

	ticker := time.NewTicker(filePollInterval)
	defer ticker.Stop()
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				pollForFile(path)
				return
			}
			if event.Name == path && (event.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				return
			}
		case <-watcher.Errors:
			pollForFile(path)
			return
		case <-ticker.C:
			// fall through to the os.Stat check above
		}
	}
}

// pollForFile is the plain polling fallback, checking every filePollInterval.
func pollForFile(path string) {
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(filePollInterval)
	}
}

// processFile reads one input file fully into memory, rewrites and
// partitions every record it contains, and reports the first fatal I/O
// error encountered, if any. Per-record failures are counted and skipped;
// they never abort the file.
func processFile(path string, schema *dimension.Schema, cache *histogramcache.Cache, w *writer.PartitionedWriter, m *metrics.Collector) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		m.AddException()
		return err
	}

	reader := frame.New(buf, m)
	for {
		record, status := reader.Read()
		if status == frame.EndOfStream {
			break
		}

		m.AddRecordsProcessed(1)
		if !rewriter.Rewrite(cache, record.Doc) {
			m.AddRecordsDiscarded(1)
			continue
		}

		info, _ := record.Doc["info"].(map[string]interface{})
		partitionPath := schema.PathOf(info, record.TimestampMs)

		payload, err := json.Marshal(record.Doc)
		if err != nil {
			m.AddRecordsDiscarded(1)
			continue
		}
		payload = append(payload, '\n')

		if !w.Write(partitionPath, payload) {
			m.AddRecordsDiscarded(1)
			continue
		}
	}
	return nil
}

// metricsFields flattens a metrics snapshot into logrus.Fields for
// structured logging.
func metricsFields(s metrics.Snapshot) logrus.Fields {
	return logrus.Fields{
		"connection_errors":         s.ConnectionErrors,
		"http_errors":               s.HTTPErrors,
		"invalid_histograms":        s.InvalidHistograms,
		"invalid_revisions":         s.InvalidRevisions,
		"cache_hits":                s.CacheHits,
		"cache_misses":              s.CacheMisses,
		"records_processed":         s.RecordsProcessed,
		"records_discarded":         s.RecordsDiscarded,
		"data_in":                   s.DataIn,
		"data_out":                  s.DataOut,
		"exceptions":                s.Exceptions,
		"invalid_path_length":       s.InvalidPathLength,
		"invalid_data_length":       s.InvalidDataLength,
		"inflate_failures":          s.InflateFailures,
		"parse_failures":            s.ParseFailures,
		"corrupt_data":              s.CorruptData,
		"invalid_string_dimension":  s.InvalidStringDimension,
		"invalid_numeric_dimension": s.InvalidNumericDimension,
	}
}
