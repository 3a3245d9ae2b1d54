// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config collects the daemon's startup configuration: where
// the catalog persists its metadata and table files, how many queries
// may run concurrently, and where to listen.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// Config is the daemon's resolved startup configuration (spec §4.6
// "Configuration").
type Config struct {
	MetastoreFile   string
	TablesDir       string
	FileExtension   string
	MaxQueryWorkers int
	BindAddr        string
	TLSCertFile     string
	TLSKeyFile      string
}

// DefaultFileExtension is the on-disk extension for serialized table
// files (spec §3).
const DefaultFileExtension = "isdb"

// Register adds this package's flags to fs, returning a *Config whose
// fields are populated once fs.Parse has run. Flag defaults fall back
// to environment variables the way run_daemon.go falls back to
// CACHEDIR, then to a hardcoded default.
func Register(fs *flag.FlagSet) *Config {
	c := &Config{}
	fs.StringVar(&c.MetastoreFile, "metastore", envOr("METASTORE_FILE", "metastore.json"), "path to the catalog metadata file")
	fs.StringVar(&c.TablesDir, "tables-dir", envOr("TABLES_DIR", "tables"), "directory for per-table payload files")
	fs.StringVar(&c.FileExtension, "file-extension", DefaultFileExtension, "extension appended to per-table payload files")
	fs.IntVar(&c.MaxQueryWorkers, "max-query-workers", envOrInt("MAX_QUERY_WORKERS", 4), "maximum number of queries running concurrently")
	fs.StringVar(&c.BindAddr, "addr", "127.0.0.1:8000", "endpoint to listen on")
	fs.StringVar(&c.TLSCertFile, "tls-cert", "", "TLS certificate file (enables TLS when set together with -tls-key)")
	fs.StringVar(&c.TLSKeyFile, "tls-key", "", "TLS key file (enables TLS when set together with -tls-cert)")
	return c
}

// Validate reports a non-nil error if c is not usable as given.
func (c *Config) Validate() error {
	if c.MaxQueryWorkers <= 0 {
		return fmt.Errorf("max-query-workers must be positive, got %d", c.MaxQueryWorkers)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("tls-cert and tls-key must both be set or both be empty")
	}
	return nil
}

// TLSEnabled reports whether c names both a certificate and a key.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envOrInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
