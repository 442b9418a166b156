package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("expected non-nil registry")
	}
}

func TestRegistry_RuntimeMetrics(t *testing.T) {
	reg := NewRegistry()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	// Should have go runtime metrics at minimum
	if len(mfs) == 0 {
		t.Error("expected some metrics to be registered")
	}
}

func findFamily(t *testing.T, reg *Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("expected %s metric", name)
	return nil
}

func TestRegistry_RecordEvaluation(t *testing.T) {
	reg := NewRegistry()

	reg.RecordEvaluation(StatusAccepted, 0.2)
	reg.RecordEvaluation(StatusRejected, 0.1)
	reg.RecordEvaluation(StatusRejected, 0.1)

	mf := findFamily(t, reg, "trendguard_evaluations_total")
	counts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	if counts[StatusAccepted] != 1 || counts[StatusRejected] != 2 {
		t.Errorf("unexpected counts: %v", counts)
	}

	hist := findFamily(t, reg, "trendguard_evaluation_duration_seconds").GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 3 {
		t.Errorf("expected sample count 3, got %d", hist.GetSampleCount())
	}
	if hist.GetSampleSum() < 0.39 || hist.GetSampleSum() > 0.41 {
		t.Errorf("expected sample sum ~0.4, got %v", hist.GetSampleSum())
	}
}

func TestRegistry_InFlight(t *testing.T) {
	reg := NewRegistry()

	reg.InFlightInc()
	reg.InFlightInc()
	reg.InFlightDec()

	for _, m := range findFamily(t, reg, "trendguard_evaluations_in_flight").GetMetric() {
		if m.GetGauge().GetValue() != 1 {
			t.Errorf("expected in-flight gauge to be 1, got %v", m.GetGauge().GetValue())
		}
	}
}

func TestRegistry_BestScoreAndTrades(t *testing.T) {
	reg := NewRegistry()

	reg.SetBestScore(2.5)
	reg.RecordTrade("LONG", true)
	reg.RecordTrade("LONG", false)
	reg.RecordOptimization("ok", 12)

	if v := findFamily(t, reg, "trendguard_best_score").GetMetric()[0].GetGauge().GetValue(); v != 2.5 {
		t.Errorf("expected best score 2.5, got %v", v)
	}
	if n := len(findFamily(t, reg, "trendguard_trades_total").GetMetric()); n != 2 {
		t.Errorf("expected 2 trade series, got %d", n)
	}
	findFamily(t, reg, "trendguard_optimizations_total")
}

func TestRegistry_WriteTextfile(t *testing.T) {
	reg := NewRegistry()
	reg.RecordEvaluation(StatusAccepted, 0.05)

	path := filepath.Join(t.TempDir(), "trendguard.prom")
	if err := reg.WriteTextfile(path); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), `trendguard_evaluations_total{status="accepted"} 1`) {
		t.Errorf("textfile missing evaluation counter:\n%s", data)
	}
}

func TestRegistry_WriteTextfile_BadPath(t *testing.T) {
	reg := NewRegistry()
	if err := reg.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Error("expected error for missing directory")
	}
}

// Ensure the registry implements prometheus.Gatherer interface
func TestRegistry_ImplementsGatherer(t *testing.T) {
	reg := NewRegistry()
	var _ prometheus.Gatherer = reg
}
