package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("voucher_integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("voucher_integrity").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("voucher_integrity", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("voucher_integrity", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("voucher_integrity")))
}

func TestAddUnbalancedIgnoresEmpty(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddUnbalanced("receipt", 0)
	m.AddUnbalanced("receipt", 2)
	require.Equal(t, 2.0, testutil.ToFloat64(m.unbalanced.WithLabelValues("receipt")))

	var nilMetrics *Metrics
	nilMetrics.AddUnbalanced("receipt", 1)
	require.NoError(t, nilMetrics.Track("noop").End(nil))
}
