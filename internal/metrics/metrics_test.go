package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

func TestInit_Idempotent(t *testing.T) {
	require.NoError(t, Init())
	require.NoError(t, Init())
}

func TestRecordOutcome(t *testing.T) {
	before := testutil.ToFloat64(DocumentsTotal.WithLabelValues("skipped", "empty_document"))
	RecordOutcome(domain.DocumentOutcome{Status: domain.OutcomeSkipped, Reason: "empty_document"})
	after := testutil.ToFloat64(DocumentsTotal.WithLabelValues("skipped", "empty_document"))
	assert.Equal(t, before+1, after)
}

func TestRecordOperations(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("unset", "true"))
	RecordOperations(2, 3, true)
	assert.Equal(t, before+3, testutil.ToFloat64(OperationsTotal.WithLabelValues("unset", "true")))
}

func TestHandler(t *testing.T) {
	require.NoError(t, Init())
	RecordRun("run", time.Now().Add(-time.Second))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "reconcile_run_duration_seconds"))
}

func TestPush(t *testing.T) {
	require.NoError(t, Init())
	assert.NoError(t, Push(context.Background(), "", "job"))

	var pushed bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed = strings.Contains(r.URL.Path, "/metrics/job/reconcile_test")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, Push(context.Background(), server.URL, "reconcile_test"))
	assert.True(t, pushed)
}
