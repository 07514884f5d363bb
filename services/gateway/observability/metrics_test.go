// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics(t *testing.T) *ChatMetrics {
	t.Helper()
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

func TestRecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest(EndpointChatStream, true)
	m.RecordRequest(EndpointChatStream, true)
	m.RecordRequest(EndpointChatStream, false)

	assert.Equal(t, float64(2), testutil.ToFloat64(
		m.RequestsTotal.WithLabelValues("chat_stream", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.RequestsTotal.WithLabelValues("chat_stream", "error")))
}

func TestRecordError(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordError(EndpointChatStream, ErrorCodeRateLimited)
	m.RecordError(EndpointChatResume, ErrorCodeForbidden)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.ErrorsTotal.WithLabelValues("chat_stream", "rate_limited")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.ErrorsTotal.WithLabelValues("chat_resume", "forbidden")))
}

func TestRecordTokens(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTokens(100, 250, "chat-model")

	assert.Equal(t, float64(100), testutil.ToFloat64(
		m.TokensTotal.WithLabelValues("input", "chat-model")))
	assert.Equal(t, float64(250), testutil.ToFloat64(
		m.TokensTotal.WithLabelValues("output", "chat-model")))
}

func TestStreamGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.StreamStarted(EndpointChatStream)
	m.StreamStarted(EndpointChatStream)
	m.StreamEnded(EndpointChatStream)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.ActiveStreams.WithLabelValues("chat_stream")))
}

func TestRecordResume(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordResume(ResumeOutcomeFollowed)
	m.RecordResume(ResumeOutcomeReplayedMessage)
	m.RecordResume(ResumeOutcomeFollowed)

	assert.Equal(t, float64(2), testutil.ToFloat64(
		m.ResumesTotal.WithLabelValues("followed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.ResumesTotal.WithLabelValues("replayed_message")))
}

func TestRecordRateLimited(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRateLimited("guest")

	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.RateLimitedTotal.WithLabelValues("guest")))
}
