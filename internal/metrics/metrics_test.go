package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moldline/internal/domain"
)

func TestObserveRun(t *testing.T) {
	r := New()
	rep := domain.Report{
		ScheduledOrders: 3,
		DailyCapacity:   17,
		Efficiency:      75,
		Failures:        domain.Failures{CapacityExhausted: []string{"o4"}},
	}
	r.ObserveRun("molding", rep, 20*time.Millisecond, nil)
	r.ObserveRun("molding", domain.Report{}, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("molding", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("molding", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.ordersByClass.WithLabelValues("molding", "scheduled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ordersByClass.WithLabelValues("molding", domain.FailCapacityExhausted)))
	assert.Equal(t, 17.0, testutil.ToFloat64(r.dailyCapacity.WithLabelValues("molding")))
	assert.Equal(t, 75.0, testutil.ToFloat64(r.efficiency.WithLabelValues("molding")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveRun("molding", domain.Report{}, time.Second, nil)
		r.ObserveAdvance("molding")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveAdvance("finishing")
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `moldline_order_stage_advances_total{stage="finishing"} 1`)
}
