package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLifecycleSplitsByResult(t *testing.T) {
	okBefore := testutil.ToFloat64(lifecycleOps.WithLabelValues("test_op", "ok"))
	errBefore := testutil.ToFloat64(lifecycleOps.WithLabelValues("test_op", "error"))

	RecordLifecycle("test_op", nil)
	RecordLifecycle("test_op", nil)
	RecordLifecycle("test_op", errors.New("boom"))

	if got := testutil.ToFloat64(lifecycleOps.WithLabelValues("test_op", "ok")) - okBefore; got != 2 {
		t.Fatalf("ok delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(lifecycleOps.WithLabelValues("test_op", "error")) - errBefore; got != 1 {
		t.Fatalf("error delta = %v, want 1", got)
	}
}

func TestRecordLaunchRetry(t *testing.T) {
	before := testutil.ToFloat64(launchRetries.WithLabelValues("port_conflict"))
	RecordLaunchRetry("port_conflict")
	if got := testutil.ToFloat64(launchRetries.WithLabelValues("port_conflict")) - before; got != 1 {
		t.Fatalf("retry delta = %v, want 1", got)
	}
}
