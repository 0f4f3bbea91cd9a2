// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordUpstream(t *testing.T) {
	before := testutil.ToFloat64(UpstreamRequests.WithLabelValues("esi", "ok"))
	RecordUpstream("esi", "ok", 15*time.Millisecond)
	after := testutil.ToFloat64(UpstreamRequests.WithLabelValues("esi", "ok"))
	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}

	var m dto.Metric
	hist, ok := UpstreamDuration.WithLabelValues("esi").(interface{ Write(*dto.Metric) error })
	if !ok {
		t.Fatal("histogram does not expose Write")
	}
	if err := hist.Write(&m); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if m.GetHistogram().GetSampleCount() == 0 {
		t.Error("expected at least one histogram sample")
	}
}

func TestSetDegraded(t *testing.T) {
	SetDegraded(true)
	if got := testutil.ToFloat64(FallbackMode); got != 1 {
		t.Errorf("degraded gauge = %v, want 1", got)
	}
	SetDegraded(false)
	if got := testutil.ToFloat64(FallbackMode); got != 0 {
		t.Errorf("degraded gauge = %v, want 0", got)
	}
}
