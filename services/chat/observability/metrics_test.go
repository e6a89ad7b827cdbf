// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
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
)

// ============================================================================
// Test Helper: Create isolated metrics for testing
// ============================================================================

// newTestMetrics creates a ChatMetrics instance with a custom registry.
// This avoids conflicts with the global Prometheus registry and allows
// parallel testing.
func newTestMetrics(t *testing.T) *ChatMetrics {
	t.Helper()

	reg := prometheus.NewRegistry()

	m := &ChatMetrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total number of chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		TokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "tokens_total",
				Help:      "Total tokens processed by direction and model",
			},
			[]string{"direction", "model"},
		),
		TimeToFirstTokenSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request to first token in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),
		TurnDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Total chat turn duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"endpoint", "status"},
		),
		ActiveStreams: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently active streaming connections",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "errors_total",
				Help:      "Total chat errors by type and endpoint",
			},
			[]string{"endpoint", "error_code"},
		),
		TrimmedTurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "trimmed_turns_total",
				Help:      "Total turns where history trimming dropped messages",
			},
			[]string{"endpoint"},
		),
		TrimmedMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "trimmed_messages_total",
				Help:      "Total messages dropped by history trimming",
			},
			[]string{"endpoint"},
		),
		ClientDisconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"endpoint"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.TokensTotal,
		m.TimeToFirstTokenSeconds,
		m.TurnDurationSeconds,
		m.ActiveStreams,
		m.ErrorsTotal,
		m.TrimmedTurnsTotal,
		m.TrimmedMessagesTotal,
		m.ClientDisconnectsTotal,
	)

	return m
}

// ============================================================================
// Helper Method Tests
// ============================================================================

func TestRecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest(EndpointChatStream, true)
	m.RecordRequest(EndpointChatStream, true)
	m.RecordRequest(EndpointChatBuffered, false)

	success := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat_stream", "success"))
	if success != 2 {
		t.Errorf("success count = %v, want 2", success)
	}
	failure := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat_buffered", "error"))
	if failure != 1 {
		t.Errorf("error count = %v, want 1", failure)
	}
}

func TestRecordTokens(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTokens(100, 50, "gpt-3.5-turbo")
	m.RecordTokens(20, 10, "gpt-3.5-turbo")

	prompt := testutil.ToFloat64(m.TokensTotal.WithLabelValues("prompt", "gpt-3.5-turbo"))
	if prompt != 120 {
		t.Errorf("prompt tokens = %v, want 120", prompt)
	}
	completion := testutil.ToFloat64(m.TokensTotal.WithLabelValues("completion", "gpt-3.5-turbo"))
	if completion != 60 {
		t.Errorf("completion tokens = %v, want 60", completion)
	}
}

func TestRecordTrim(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTrim(EndpointChatStream, 5)
	m.RecordTrim(EndpointChatStream, 3)
	m.RecordTrim(EndpointChatStream, 0) // no-op

	turns := testutil.ToFloat64(m.TrimmedTurnsTotal.WithLabelValues("chat_stream"))
	if turns != 2 {
		t.Errorf("trimmed turns = %v, want 2", turns)
	}
	dropped := testutil.ToFloat64(m.TrimmedMessagesTotal.WithLabelValues("chat_stream"))
	if dropped != 8 {
		t.Errorf("trimmed messages = %v, want 8", dropped)
	}
}

func TestActiveStreamsGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.StreamStarted(EndpointChatStream)
	m.StreamStarted(EndpointChatStream)
	m.StreamEnded(EndpointChatStream)

	active := testutil.ToFloat64(m.ActiveStreams.WithLabelValues("chat_stream"))
	if active != 1 {
		t.Errorf("active streams = %v, want 1", active)
	}
}

func TestRecordError(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordError(EndpointChatStream, ErrorCodeQuota)
	m.RecordError(EndpointChatStream, ErrorCodeQuota)
	m.RecordError(EndpointChatBuffered, ErrorCodeValidation)

	quota := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("chat_stream", "quota"))
	if quota != 2 {
		t.Errorf("quota errors = %v, want 2", quota)
	}
}

// ============================================================================
// InitMetrics Tests
// ============================================================================

// Note: InitMetrics uses promauto which registers with the default Prometheus
// registry. This test must only run once per test binary execution since
// duplicate registration will panic.
var initMetricsTestOnce bool

func TestInitMetrics(t *testing.T) {
	if initMetricsTestOnce {
		t.Skip("InitMetrics can only be called once per test run (promauto restriction)")
	}
	initMetricsTestOnce = true

	result := InitMetrics()

	if result == nil {
		t.Fatal("InitMetrics() returned nil")
	}
	if DefaultMetrics != result {
		t.Error("DefaultMetrics should equal the returned value")
	}

	// Exercise every helper once against the real registry.
	result.RecordRequest(EndpointChatStream, true)
	result.RecordError(EndpointChatBuffered, ErrorCodeLLMError)
	result.RecordTokens(100, 50, "gpt-3.5-turbo")
	result.RecordTrim(EndpointChatStream, 2)
	result.StreamStarted(EndpointChatStream)
	result.StreamEnded(EndpointChatStream)
	result.RecordTimeToFirstToken(EndpointChatStream, 0.4)
	result.RecordTurnDuration(EndpointChatStream, 3.2, true)
	result.RecordClientDisconnect(EndpointChatStream)
}

// ============================================================================
// Constants Tests
// ============================================================================

func TestConstants(t *testing.T) {
	if metricsNamespace != "aleutian" {
		t.Errorf("metricsNamespace = %q, want %q", metricsNamespace, "aleutian")
	}
	if chatSubsystem != "chat" {
		t.Errorf("chatSubsystem = %q, want %q", chatSubsystem, "chat")
	}
}
