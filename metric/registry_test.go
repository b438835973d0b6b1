package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slerrors "github.com/c360/semlattice/errors"
)

func TestNewRegistryRegistersCoreMetrics(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r.CoreMetrics())

	r.Metrics.RecordBlockProcessed("ok")
	r.Metrics.RecordBlockProcessed("ok")
	r.Metrics.RecordBlockProcessed("failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Metrics.BlocksProcessed.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.BlocksProcessed.WithLabelValues("failed")))
}

func TestCoreMetricRecorders(t *testing.T) {
	m := NewMetrics()

	m.RecordLayers(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LayersDiscovered))

	m.RecordCRTFailure("non_coprime")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CRTFailures.WithLabelValues("non_coprime")))

	m.RecordSheafRejection()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SheafRejections))

	m.RecordTermsResolved(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(m.TermsResolved))

	m.RecordSourceStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceConnected))
	m.RecordSourceStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SourceConnected))

	m.RecordSourceReconnect()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceReconnects))

	// Histograms only need to accept observations here.
	m.RecordLiftDepth(4)
	m.RecordProcessingDuration("solve", 25*time.Millisecond)
}

func TestRegisterComponentCollector(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "semlattice",
		Subsystem: "test",
		Name:      "events_total",
		Help:      "test counter",
	})

	require.NoError(t, r.Register("synthesizer", "events", counter))

	// Same key again is invalid.
	err := r.Register("synthesizer", "events", counter)
	require.Error(t, err)
	assert.True(t, slerrors.IsInvalid(err))

	assert.True(t, r.Unregister("synthesizer", "events"))
	assert.False(t, r.Unregister("synthesizer", "events"))

	// After unregistering, the same collector registers cleanly.
	require.NoError(t, r.Register("synthesizer", "events", counter))
}

func TestServerLifecycle(t *testing.T) {
	r := NewRegistry()
	s := NewServer(0, "", r)

	assert.Equal(t, "http://localhost:9090/metrics", s.Address())
	require.NoError(t, s.Stop())
}
