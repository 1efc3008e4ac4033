package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New(nil)
	m.Mutations.WithLabelValues("actors", "create").Inc()
	m.Mutations.WithLabelValues("actors", "create").Inc()
	m.MirrorFailures.WithLabelValues("actors", "delete").Inc()

	assert.InDelta(t, 2, testutil.ToFloat64(m.Mutations.WithLabelValues("actors", "create")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MirrorFailures.WithLabelValues("actors", "delete")), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `pragrisk_store_mutations_total{kind="actors",op="create"} 2`))
}
