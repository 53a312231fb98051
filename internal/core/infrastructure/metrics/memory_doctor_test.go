package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	metricsiface "github.com/weisyn/zkattest/pkg/interfaces/infrastructure/metrics"
)

type fakeReporter struct {
	name  string
	queue int64
}

func (f *fakeReporter) ModuleName() string { return f.name }

func (f *fakeReporter) CollectMemoryStats() metricsiface.ModuleMemoryStats {
	return metricsiface.ModuleMemoryStats{QueueLength: f.queue, Objects: 2}
}

func newTestDoctor(t *testing.T, cfg MemoryDoctorConfig, rss *uint64, reporters ...metricsiface.MemoryReporter) (*MemoryDoctor, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	d, err := NewMemoryDoctor(cfg, nil, reg, reporters...)
	require.NoError(t, err)
	d.rss = func() uint64 { return *rss }
	return d, reg
}

func TestMemoryDoctor_ExportsModuleStats(t *testing.T) {
	rss := uint64(100)
	queue := &fakeReporter{name: "proofgen.orchestrator", queue: 7}
	d, _ := newTestDoctor(t, MemoryDoctorConfig{}, &rss, queue)

	alerts := d.SampleOnce()
	require.Empty(t, alerts)

	s := d.GetCurrentStats()
	require.Equal(t, uint64(100), s.RSSBytes)
	require.Len(t, s.Modules, 1)
	require.Equal(t, "proofgen.orchestrator", s.Modules[0].Module)

	require.Equal(t, 7.0, promtestutil.ToFloat64(d.metrics.queueLength.WithLabelValues("proofgen.orchestrator")))
	require.Equal(t, 2.0, promtestutil.ToFloat64(d.metrics.objects.WithLabelValues("proofgen.orchestrator")))
	require.Equal(t, 100.0, promtestutil.ToFloat64(d.metrics.rss))
}

func TestMemoryDoctor_BudgetAndGrowthAlerts(t *testing.T) {
	rss := uint64(10)
	d, _ := newTestDoctor(t, MemoryDoctorConfig{
		BudgetBytes:             1000,
		RSSGrowthSoftLimitBytes: 100,
	}, &rss)

	require.Empty(t, d.SampleOnce())

	rss = 500
	alerts := d.SampleOnce()
	require.Len(t, alerts, 1)
	require.Equal(t, "rss_growth", alerts[0].Reason)

	rss = 2000
	reasons := map[string]bool{}
	for _, a := range d.SampleOnce() {
		reasons[a.Reason] = true
	}
	require.True(t, reasons["rss_over_budget"])
	require.True(t, reasons["rss_growth"])
	require.Equal(t, 1.0, promtestutil.ToFloat64(d.metrics.alerts.WithLabelValues("rss_over_budget")))
	require.Equal(t, 1000.0, promtestutil.ToFloat64(d.metrics.budget))
}

func TestMemoryDoctor_HistoryWindow(t *testing.T) {
	rss := uint64(1)
	d, _ := newTestDoctor(t, MemoryDoctorConfig{WindowSize: 3}, &rss)
	for i := 0; i < 5; i++ {
		d.SampleOnce()
	}
	require.Len(t, d.GetHistory(), 3)
}

func TestMemoryDoctor_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMemoryDoctor(MemoryDoctorConfig{}, nil, reg)
	require.NoError(t, err)
	_, err = NewMemoryDoctor(MemoryDoctorConfig{}, nil, reg)
	require.Error(t, err)
}

func TestMemoryDoctor_StartStopsOnCancel(t *testing.T) {
	rss := uint64(1)
	d, _ := newTestDoctor(t, MemoryDoctorConfig{SampleInterval: 5 * time.Millisecond}, &rss)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(d.GetHistory()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
