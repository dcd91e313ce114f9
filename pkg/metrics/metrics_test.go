package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/Sternrassler/opac-search-client/pkg/cache"
	_ "github.com/Sternrassler/opac-search-client/pkg/diagnostics"
	_ "github.com/Sternrassler/opac-search-client/pkg/ratelimit"
	_ "github.com/Sternrassler/opac-search-client/pkg/search"
)

func TestRegistry(t *testing.T) {
	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
	if Gatherer != prometheus.DefaultGatherer {
		t.Error("Gatherer should be the default Prometheus gatherer")
	}
}

func TestHandler_ExposesModuleMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)

	for _, name := range []string{
		"search_stale_completions_total",
		"search_diagnostics_reports_total",
		"catalog_cache_hits_total",
		"catalog_304_responses_total",
		"catalog_quota_remaining",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
