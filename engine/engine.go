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

// Package engine is the bounded-concurrency dispatcher: a single
// receiver reads query ids from a channel and launches an independent
// plan-then-execute task per id, gated by a semaphore whose capacity
// is New's maxConcurrent argument (spec §4.6).
package engine

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/isdb-project/isdb/catalog"
	"github.com/isdb-project/isdb/executor"
	"github.com/isdb-project/isdb/planner"
)

// Engine dispatches submitted query ids to worker goroutines.
type Engine struct {
	store  *catalog.Metastore
	logger *log.Logger
	sem    *semaphore.Weighted
	queue  chan uuid.UUID
	wg     sync.WaitGroup
}

// New builds an Engine backed by store, running at most maxConcurrent
// queries at once. logger receives one line per lifecycle event
// (submitted, planned and running, completed, failed to plan, failed);
// if nil a discarding logger is used.
func New(store *catalog.Metastore, maxConcurrent int, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(nopWriter{}, "", 0)
	}
	return &Engine{
		store:  store,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		queue:  make(chan uuid.UUID, maxConcurrent),
	}
}

// Submit enqueues id for processing. It blocks if the queue is full.
// Submit must not be called after Close.
func (e *Engine) Submit(id uuid.UUID) {
	e.logger.Printf("query %s submitted", id)
	e.queue <- id
}

// Close signals that no further queries will be submitted. Run exits
// (after draining outstanding tasks) once the queue is closed and
// empty.
func (e *Engine) Close() {
	close(e.queue)
}

// Run reads ids from the submit queue until it is closed, launching a
// plan-then-execute task per id gated by the concurrency semaphore.
// Run blocks until the queue is closed and every launched task has
// finished (spec §4.6 "drains outstanding tasks and exits"). If ctx is
// canceled while waiting for a permit, Run stops accepting new ids,
// waits for already-launched tasks, and returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	for id := range e.queue {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			e.wg.Wait()
			return err
		}
		e.wg.Add(1)
		go func(id uuid.UUID) {
			defer e.wg.Done()
			defer e.sem.Release(1)
			e.process(id)
		}(id)
	}
	e.wg.Wait()
	e.logger.Printf("engine shutting down: submit queue closed")
	return nil
}

// process runs one query to completion: plan, then execute, logging
// and returning early on either phase's failure. Planner and executor
// failures are already recorded on the Query record itself (via
// query.Fail), so process only logs; it reports nothing back to a
// caller.
func (e *Engine) process(id uuid.UUID) {
	plan, err := planner.Plan(e.store, id)
	if err != nil {
		e.logger.Printf("query %s failed to plan: %s", id, err)
		return
	}
	e.logger.Printf("query %s planned, running", id)

	if err := executor.Execute(e.store, id, plan); err != nil {
		e.logger.Printf("query %s failed: %s", id, err)
		return
	}
	e.logger.Printf("query %s completed", id)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
