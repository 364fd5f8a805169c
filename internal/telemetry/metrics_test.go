package telemetry

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObserveHelpersDoNotPanic(t *testing.T) {
	Init()
	Init() // idempotent

	ObservePageFetched(5, "ok")
	ObservePageFetched(1, "error")
	ObserveReviewsAccepted(3, 7)
	ObserveReviewsAccepted(3, 0) // no-op
	ObserveRetry()
	ObserveRateLimitDelay(12 * time.Millisecond)
	ObserveRowsInserted("rd", 4)
	ObserveRowsInserted("rd", -1) // no-op
	ObserveTargetCompleted()
}

func TestHandlerServesMetrics(t *testing.T) {
	Init()
	ObserveTargetCompleted()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "reviewcrawler_targets_completed_total")
}
