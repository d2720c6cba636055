package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.ObserveWrite("sync", nil, 5*time.Millisecond)
	m.ObserveWrite("sync", errors.New("db down"), time.Millisecond)
	m.ObserveWrite("async", nil, time.Millisecond)
	m.IncFallback("write_failed")
	m.IncChainConflict()
	m.IncChainConflict()
	m.SetQueueDepth(7)
	m.IncNotification(nil)
	m.SetIntegrityFindings(3)
	m.AddPurged(12)
	m.AddPurged(-1)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"sync_success", testutil.ToFloat64(m.writes.WithLabelValues("sync", "success")), 1},
		{"sync_failure", testutil.ToFloat64(m.writes.WithLabelValues("sync", "failure")), 1},
		{"async_success", testutil.ToFloat64(m.writes.WithLabelValues("async", "success")), 1},
		{"fallback", testutil.ToFloat64(m.fallbacks.WithLabelValues("write_failed")), 1},
		{"conflicts", testutil.ToFloat64(m.chainConflicts), 2},
		{"queue_depth", testutil.ToFloat64(m.queueDepth), 7},
		{"notifications", testutil.ToFloat64(m.notifications.WithLabelValues("success")), 1},
		{"integrity", testutil.ToFloat64(m.integrityIssues), 3},
		{"purged", testutil.ToFloat64(m.purged), 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveWrite("sync", nil, time.Millisecond)
	m.IncFallback("queue_full")
	m.IncChainConflict()
	m.SetQueueDepth(1)
	m.IncNotification(errors.New("x"))
	m.SetIntegrityFindings(1)
	m.AddPurged(1)
}

func TestHandler(t *testing.T) {
	m := NewMetrics()
	reg, err := NewRegistry(m)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	m.IncChainConflict()

	router := gin.New()
	router.GET("/metrics", Handler(reg))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), MetricAuditChainConflicts+" 1") {
		t.Errorf("expected %s in exposition, got:\n%s", MetricAuditChainConflicts, w.Body.String())
	}
}
