// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakePruner) DeleteStreamsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunNow_UsesRetentionCutoff(t *testing.T) {
	pruner := &fakePruner{deleted: 3}
	s := NewScheduler(pruner, SchedulerConfig{
		Interval:        time.Hour,
		StreamRetention: 24 * time.Hour,
	}, testLog())

	deleted, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	require.Len(t, pruner.cutoffs, 1)
	want := time.Now().Add(-24 * time.Hour)
	assert.WithinDuration(t, want, pruner.cutoffs[0], 5*time.Second)
}

func TestRunNow_PropagatesError(t *testing.T) {
	pruner := &fakePruner{err: errors.New("db down")}
	s := NewScheduler(pruner, DefaultSchedulerConfig(), testLog())

	_, err := s.RunNow(context.Background())
	assert.Error(t, err)
}

func TestStart_RejectsSecondStart(t *testing.T) {
	pruner := &fakePruner{}
	s := NewScheduler(pruner, SchedulerConfig{Interval: time.Hour}, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	assert.Error(t, s.Start(ctx))
}

func TestStart_RunsInitialSweep(t *testing.T) {
	pruner := &fakePruner{}
	s := NewScheduler(pruner, SchedulerConfig{Interval: time.Hour}, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for pruner.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, pruner.calls(), 1)
}

func TestStop_Idempotent(t *testing.T) {
	pruner := &fakePruner{}
	s := NewScheduler(pruner, SchedulerConfig{Interval: time.Hour}, testLog())

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
}

func TestNewScheduler_DefaultsZeroConfig(t *testing.T) {
	s := NewScheduler(&fakePruner{}, SchedulerConfig{}, testLog())
	assert.Equal(t, time.Hour, s.config.Interval)
	assert.Equal(t, 24*time.Hour, s.config.StreamRetention)
}
