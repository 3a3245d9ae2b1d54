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

package config

import (
	"flag"
	"testing"
)

func TestRegisterDefaults(t *testing.T) {
	t.Setenv("METASTORE_FILE", "")
	t.Setenv("TABLES_DIR", "")
	t.Setenv("MAX_QUERY_WORKERS", "")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := Register(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.FileExtension != DefaultFileExtension {
		t.Fatalf("expected default file extension %q, got %q", DefaultFileExtension, c.FileExtension)
	}
	if c.MaxQueryWorkers != 4 {
		t.Fatalf("expected default max query workers 4, got %d", c.MaxQueryWorkers)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid default config, got %v", err)
	}
	if c.TLSEnabled() {
		t.Fatal("expected TLS disabled by default")
	}
}

func TestEnvironmentFallback(t *testing.T) {
	t.Setenv("MAX_QUERY_WORKERS", "16")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := Register(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.MaxQueryWorkers != 16 {
		t.Fatalf("expected env-provided max query workers 16, got %d", c.MaxQueryWorkers)
	}
}

func TestValidateRejectsNonPositiveWorkers(t *testing.T) {
	c := &Config{MaxQueryWorkers: 0}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for zero max query workers")
	}
}

func TestValidateRejectsPartialTLS(t *testing.T) {
	c := &Config{MaxQueryWorkers: 1, TLSCertFile: "cert.pem"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for cert without key")
	}
}
