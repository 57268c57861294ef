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

// Package config loads the driver's JSON configuration file: server
// addresses, schema and directory paths, and the writer's size/memory/
// compression knobs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/docker/go-units"
)

// Config is the parsed configuration file.
type Config struct {
	HekaServer        string `json:"heka_server"`
	HistogramServer   string `json:"histogram_server"`
	TelemetrySchema   string `json:"telemetry_schema"`
	StoragePath       string `json:"storage_path"`
	UploadPath        string `json:"upload_path"`
	MaxUncompressed   uint64 `json:"max_uncompressed"`
	MemoryConstraint  string `json:"memory_constraint"`
	CompressionPreset int    `json:"compression_preset"`
	StatusAddr        string `json:"status_addr"`
	SoftMemoryLimit   int64  `json:"-"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.StoragePath, 0750); err != nil {
		return nil, fmt.Errorf("config: creating storage_path: %w", err)
	}
	if err := os.MkdirAll(c.UploadPath, 0750); err != nil {
		return nil, fmt.Errorf("config: creating upload_path: %w", err)
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.HistogramServer == "" {
		return fmt.Errorf("config: histogram_server is required")
	}
	if c.TelemetrySchema == "" {
		return fmt.Errorf("config: telemetry_schema is required")
	}
	if c.StoragePath == "" || c.UploadPath == "" {
		return fmt.Errorf("config: storage_path and upload_path are required")
	}
	if c.CompressionPreset < 0 || c.CompressionPreset > 9 {
		return fmt.Errorf("config: compression_preset must be in 0..=9, got %d", c.CompressionPreset)
	}
	if c.MaxUncompressed == 0 {
		return fmt.Errorf("config: max_uncompressed must be non-zero")
	}

	limit, err := units.RAMInBytes(strings.TrimSpace(c.MemoryConstraint))
	if err != nil {
		return fmt.Errorf("config: parsing memory_constraint %q: %w", c.MemoryConstraint, err)
	}
	c.SoftMemoryLimit = limit
	return nil
}
