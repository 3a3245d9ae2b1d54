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

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdb-project/isdb/catalog"
	"github.com/isdb-project/isdb/config"
	"github.com/isdb-project/isdb/engine"
	"github.com/isdb-project/isdb/serializer"
)

var version = "development"

func main() {
	fs := flag.NewFlagSet("isdbd", flag.ExitOnError)
	cfg := config.Register(fs)
	if fs.Parse(os.Args[1:]) != nil {
		os.Exit(1)
	}
	logger := log.New(os.Stderr, "", log.Lshortfile)

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %s", err)
	}

	startTime := time.Now()
	s := serializer.New()

	store, err := loadOrCreateMetastore(cfg, s, logger)
	if err != nil {
		logger.Fatalf("loading metastore: %s", err)
	}

	e := engine.New(store, cfg.MaxQueryWorkers, logger)
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan error, 1)
	go func() { runDone <- e.Run(ctx) }()

	logger.Printf("isdbd %s started, uptime tracking from %s", version, startTime.Format(time.RFC3339))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Println("shutting down: no new queries will be accepted")
	e.Close()

	select {
	case err := <-runDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("engine stopped with error: %s", err)
		}
	case <-time.After(15 * time.Second):
		logger.Println("timed out waiting for outstanding queries, cancelling")
		cancel()
		<-runDone
	}
	cancel()

	if err := store.SaveMetastore(cfg.MetastoreFile, s); err != nil {
		logger.Printf("saving metastore: %s", err)
	}
}

// loadOrCreateMetastore loads a previously persisted catalog from
// cfg.MetastoreFile, or starts an empty one backed by cfg.TablesDir if
// no metastore file exists yet.
func loadOrCreateMetastore(cfg *config.Config, s *serializer.Serializer, logger *log.Logger) (*catalog.Metastore, error) {
	if _, err := os.Stat(cfg.MetastoreFile); errors.Is(err, os.ErrNotExist) {
		logger.Printf("no metastore file at %s, starting empty", cfg.MetastoreFile)
		if err := os.MkdirAll(cfg.TablesDir, 0o755); err != nil {
			return nil, err
		}
		return catalog.New(cfg.TablesDir, cfg.FileExtension), nil
	}
	logger.Printf("loading metastore from %s", cfg.MetastoreFile)
	return catalog.LoadMetastore(cfg.MetastoreFile, s)
}
