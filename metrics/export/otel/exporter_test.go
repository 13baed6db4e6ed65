package otel

import (
	"errors"
	"testing"

	gatekit "github.com/afyadigital/gatekit"
	"go.opentelemetry.io/otel/metric/noop"
)

type stubSource struct {
	snapshot gatekit.MetricsSnapshot
	dropped  uint64
}

func (s *stubSource) MetricsSnapshot() gatekit.MetricsSnapshot { return s.snapshot }
func (s *stubSource) AuditDropped() uint64                     { return s.dropped }

func TestNewOTelExporterRejectsNilMeter(t *testing.T) {
	if _, err := NewOTelExporterFromSource(nil, &stubSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestNewOTelExporterRejectsNilSource(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	if _, err := NewOTelExporterFromSource(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

func TestNewOTelExporterRegistersAndCloses(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	exporter, err := NewOTelExporterFromSource(meter, &stubSource{})
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestNilExporterCloseIsSafe(t *testing.T) {
	var exporter *OTelExporter
	if err := exporter.Close(); err != nil {
		t.Fatalf("nil Close must be a no-op: %v", err)
	}
}
