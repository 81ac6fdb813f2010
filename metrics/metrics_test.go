package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.CarouselIntents.WithLabelValues("next").Inc()
	m.ContactSubmissions.WithLabelValues("success").Add(2)
	m.ActiveSessions.Set(3)

	assert.InDelta(t, 1, testutil.ToFloat64(m.CarouselIntents.WithLabelValues("next")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ContactSubmissions.WithLabelValues("success")), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `folio_carousel_intents_total{intent="next"} 1`)
	assert.Contains(t, string(body), `folio_active_sessions 3`)
}

func TestNewUsesPrivateRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	assert.NotSame(t, a.Registry(), b.Registry())
}
