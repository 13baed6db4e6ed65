package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	gatekit "github.com/afyadigital/gatekit"
)

type stubSource struct {
	snapshot gatekit.MetricsSnapshot
	dropped  uint64
}

func (s *stubSource) MetricsSnapshot() gatekit.MetricsSnapshot { return s.snapshot }
func (s *stubSource) AuditDropped() uint64                     { return s.dropped }

func TestRenderEmptyWhenNoData(t *testing.T) {
	exporter := NewPrometheusExporterFromSource(&stubSource{})
	if got := exporter.Render(); got != "" {
		t.Fatalf("expected empty render, got %q", got)
	}
}

func TestRenderCounters(t *testing.T) {
	exporter := NewPrometheusExporterFromSource(&stubSource{
		snapshot: gatekit.MetricsSnapshot{
			Counters: map[gatekit.MetricID]uint64{
				gatekit.MetricAdmissionAllowed: 42,
				gatekit.MetricRateLimitHit:     3,
			},
		},
	})

	out := exporter.Render()
	if !strings.Contains(out, "gatekit_admission_allowed_total 42\n") {
		t.Fatalf("missing allowed counter:\n%s", out)
	}
	if !strings.Contains(out, "gatekit_rate_limit_hit_total 3\n") {
		t.Fatalf("missing rate limit counter:\n%s", out)
	}
	// Unset counters still render, at zero.
	if !strings.Contains(out, "gatekit_otp_issued_total 0\n") {
		t.Fatalf("missing zero-valued counter:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE gatekit_admission_allowed_total counter\n") {
		t.Fatalf("missing TYPE line:\n%s", out)
	}
}

func TestRenderHistogramCumulative(t *testing.T) {
	exporter := NewPrometheusExporterFromSource(&stubSource{
		snapshot: gatekit.MetricsSnapshot{
			Counters: map[gatekit.MetricID]uint64{},
			Histograms: map[gatekit.MetricID][]uint64{
				gatekit.MetricEvaluateLatency: {5, 3, 0, 1, 0, 0, 0, 2},
			},
		},
	})

	out := exporter.Render()
	wantLines := []string{
		`gatekit_evaluate_latency_seconds_bucket{le="0.005"} 5`,
		`gatekit_evaluate_latency_seconds_bucket{le="0.01"} 8`,
		`gatekit_evaluate_latency_seconds_bucket{le="0.025"} 8`,
		`gatekit_evaluate_latency_seconds_bucket{le="0.05"} 9`,
		`gatekit_evaluate_latency_seconds_bucket{le="+Inf"} 11`,
		`gatekit_evaluate_latency_seconds_count 11`,
		`gatekit_evaluate_latency_seconds_sum 0`,
	}
	for _, line := range wantLines {
		if !strings.Contains(out, line+"\n") {
			t.Fatalf("missing %q in:\n%s", line, out)
		}
	}
}

func TestRenderAuditDropped(t *testing.T) {
	exporter := NewPrometheusExporterFromSource(&stubSource{dropped: 7})

	out := exporter.Render()
	if !strings.Contains(out, "gatekit_audit_dropped_total 7\n") {
		t.Fatalf("missing audit drop counter:\n%s", out)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	exporter := NewPrometheusExporterFromSource(&stubSource{
		snapshot: gatekit.MetricsSnapshot{
			Counters: map[gatekit.MetricID]uint64{gatekit.MetricLogout: 1},
		},
	})

	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "gatekit_logout_total 1\n") {
		t.Fatalf("missing counter in body:\n%s", rec.Body.String())
	}
}

func TestNilExporterRendersEmpty(t *testing.T) {
	var exporter *PrometheusExporter
	if got := exporter.Render(); got != "" {
		t.Fatalf("expected empty render from nil exporter, got %q", got)
	}
}
