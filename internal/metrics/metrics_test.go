package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentHandlerUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/items/{id}", "418"))
	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/items/"+id, nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("status = %d, want 418", rec.Code)
		}
	}
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/items/{id}", "418"))
	if after-before != 3 {
		t.Errorf("requests counted = %v, want 3", after-before)
	}
}

type fakePool struct{}

func (fakePool) PoolStats() (int32, int32, int32) { return 5, 2, 3 }

type fakeWatcher struct{}

func (fakeWatcher) Processed() int64 { return 7 }
func (fakeWatcher) Skipped() int64   { return 1 }
func (fakeWatcher) Pending() int     { return 2 }

func TestCollector(t *testing.T) {
	tests := []struct {
		name string
		c    *Collector
		want string
	}{
		{
			"live",
			NewCollector(fakePool{}, fakeWatcher{}),
			`
# HELP transcribe_etl_db_pool_acquired_conns Database pool connections currently in use.
# TYPE transcribe_etl_db_pool_acquired_conns gauge
transcribe_etl_db_pool_acquired_conns 2
# HELP transcribe_etl_watcher_processed_files Export files processed by the inbox watcher since start.
# TYPE transcribe_etl_watcher_processed_files counter
transcribe_etl_watcher_processed_files 7
`,
		},
		{
			"nil_sources_report_zero",
			NewCollector(nil, nil),
			`
# HELP transcribe_etl_db_pool_acquired_conns Database pool connections currently in use.
# TYPE transcribe_etl_db_pool_acquired_conns gauge
transcribe_etl_db_pool_acquired_conns 0
# HELP transcribe_etl_watcher_processed_files Export files processed by the inbox watcher since start.
# TYPE transcribe_etl_watcher_processed_files counter
transcribe_etl_watcher_processed_files 0
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewPedanticRegistry()
			reg.MustRegister(tt.c)
			err := testutil.GatherAndCompare(reg, strings.NewReader(tt.want),
				"transcribe_etl_db_pool_acquired_conns",
				"transcribe_etl_watcher_processed_files",
			)
			if err != nil {
				t.Error(err)
			}
		})
	}
}
