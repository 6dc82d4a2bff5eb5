package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T) []byte {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", rec.Code)
	}
	return rec.Body.Bytes()
}

func requests(route, method, code string) float64 {
	return testutil.ToFloat64(requestsTotal.With(prometheus.Labels{"route": route, "method": method, "code": code}))
}

func TestMetricsMiddleware_OutsideRouterUsesPath(t *testing.T) {
	before := requests("/plain", http.MethodGet, "200")
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))
	if got := requests("/plain", http.MethodGet, "200"); got != before+1 {
		t.Fatalf("requests_total=%v want %v", got, before+1)
	}
	if !bytes.Contains(scrape(t), []byte("visiond_http_requests_total")) {
		t.Fatal("visiond_http_requests_total not exported")
	}
}

func TestNewMux_LabelsByRoutePattern(t *testing.T) {
	before := requests("/tasks/{kind}/toggle", http.MethodPost, "200")
	if w := serve(t, newMockService(), http.MethodPost, "/tasks/depth/toggle", nil); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got := requests("/tasks/{kind}/toggle", http.MethodPost, "200"); got != before+1 {
		t.Fatalf("route-labeled counter=%v want %v", got, before+1)
	}
	if bytes.Contains(scrape(t), []byte(`route="/tasks/depth/toggle"`)) {
		t.Fatal("raw path leaked into labels")
	}
}

func TestNewMux_ErrorStatusLabel(t *testing.T) {
	before := requests("/tasks/{kind}/toggle", http.MethodPost, "404")
	serve(t, newMockService(), http.MethodPost, "/tasks/juggling/toggle", nil)
	if got := requests("/tasks/{kind}/toggle", http.MethodPost, "404"); got != before+1 {
		t.Fatalf("404 counter=%v want %v", got, before+1)
	}
}

func TestRateLimitedResponseCountsRejection(t *testing.T) {
	before := testutil.ToFloat64(rejectedTotal.WithLabelValues(reasonRateLimit))
	svc := newMockService()
	svc.downloadErr = errRateLimitedForTest()
	serve(t, svc, http.MethodPost, "/models/download", []byte(`{}`))
	if after := testutil.ToFloat64(rejectedTotal.WithLabelValues(reasonRateLimit)); after != before+1 {
		t.Fatalf("rate-limit rejections before=%v after=%v", before, after)
	}
}

func TestConflictCountsRejection(t *testing.T) {
	before := testutil.ToFloat64(rejectedTotal.WithLabelValues(reasonBusy))
	svc := newMockService()
	svc.downloadErr = mockHTTPError{msg: "download already in progress", code: http.StatusConflict}
	if w := serve(t, svc, http.MethodPost, "/models/download", []byte(`{}`)); w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
	if after := testutil.ToFloat64(rejectedTotal.WithLabelValues(reasonBusy)); after != before+1 {
		t.Fatalf("busy rejections before=%v after=%v", before, after)
	}
}
