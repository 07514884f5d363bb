// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cleanup runs periodic retention sweeps over chat persistence.
//
// Stream id rows outlive their Redis buffers (the buffers expire on their
// own TTL); this scheduler removes the stale database rows so resume
// lookups stop offering streams whose frames are long gone.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig holds configuration for the retention scheduler.
//
// # Fields
//
//   - Interval: How often to run sweep cycles. Default: 1 hour.
//   - StreamRetention: Age past which stream id rows are removed.
//     Default: 24 hours, matching the Redis buffer TTL.
type SchedulerConfig struct {
	Interval        time.Duration
	StreamRetention time.Duration
}

// DefaultSchedulerConfig returns production defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:        1 * time.Hour,
		StreamRetention: 24 * time.Hour,
	}
}

// StreamPruner is the slice of the chat store the scheduler needs.
type StreamPruner interface {
	DeleteStreamsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler owns the background sweep goroutine. Uses the ticker + done
// channel pattern for graceful shutdown.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Scheduler struct {
	store   StreamPruner
	config  SchedulerConfig
	log     *slog.Logger
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a retention scheduler. Ready to Start().
func NewScheduler(store StreamPruner, config SchedulerConfig, log *slog.Logger) *Scheduler {
	if store == nil {
		panic("cleanup.NewScheduler: store is required")
	}
	if log == nil {
		panic("cleanup.NewScheduler: logger is required")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	if config.StreamRetention <= 0 {
		config.StreamRetention = DefaultSchedulerConfig().StreamRetention
	}
	return &Scheduler{
		store:  store,
		config: config,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Start begins the background sweep loop. An initial sweep runs
// immediately; subsequent sweeps run at the configured interval until
// Stop() is called or the context is cancelled.
//
// # Outputs
//
//   - error: Non-nil if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("cleanup scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // Reset for potential restart
	s.mu.Unlock()

	s.log.Info("retention scheduler starting",
		slog.String("interval", s.config.Interval.String()),
		slog.String("stream_retention", s.config.StreamRetention.String()),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop signals the scheduler to stop. Safe to call multiple times. Does
// not interrupt an in-progress sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.log.Info("retention scheduler stopping")
	close(s.done)
	s.running = false
}

// RunNow performs one sweep immediately, outside the schedule.
//
// # Outputs
//
//   - int64: Stream rows removed.
//   - error: Non-nil if the delete failed.
func (s *Scheduler) RunNow(ctx context.Context) (int64, error) {
	return s.sweep(ctx)
}

func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.executeSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("retention scheduler stopped (context cancelled)")
			return
		case <-s.done:
			s.log.Info("retention scheduler stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeSweep(ctx)
		}
	}
}

// executeSweep runs one sweep with error handling so a failed cycle never
// crashes the loop.
func (s *Scheduler) executeSweep(ctx context.Context) {
	deleted, err := s.sweep(ctx)
	if err != nil {
		s.log.Error("retention sweep failed", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		s.log.Info("retention sweep completed", slog.Int64("streams_deleted", deleted))
	} else {
		s.log.Debug("retention sweep completed (nothing expired)")
	}
}

func (s *Scheduler) sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.config.StreamRetention)
	deleted, err := s.store.DeleteStreamsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired streams: %w", err)
	}
	return deleted, nil
}
