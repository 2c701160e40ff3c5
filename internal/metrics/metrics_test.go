package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveHelpersDoNotPanicBeforeInit(t *testing.T) {
	// Observe helpers self-initialize, so call order must not matter.
	ObserveTitle(OutcomeFetched)
	ObserveRetry()
	ObserveFetch(200, 10*time.Millisecond)
	ObserveFetch(0, time.Millisecond)
	ObserveRateLimitWait(time.Millisecond)
	SetSnapshotAgencies(12)
	ObserveHTTPRequest("GET", "/v1/agencies", 200, time.Millisecond)
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveTitle(OutcomeSkipped)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("metrics endpoint status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "ecfr_titles_total") {
		t.Fatal("expected ecfr_titles_total in metrics output")
	}
}

func TestStatusClass(t *testing.T) {
	t.Parallel()

	cases := map[int]string{
		-1:  "error",
		0:   "error",
		200: "2xx",
		301: "3xx",
		404: "4xx",
		429: "4xx",
		500: "5xx",
		503: "5xx",
	}
	for code, want := range cases {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}
