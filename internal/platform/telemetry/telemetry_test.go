package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	e := echo.New()
	e.GET("/metrics", p.Handler())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestProvider_Defaults(t *testing.T) {
	p := NewProvider(Config{})
	if p.cfg.ServiceName != "patient-service" {
		t.Errorf("expected default service name, got %q", p.cfg.ServiceName)
	}

	body := scrape(t, p)
	if !strings.Contains(body, `service_info{environment="development",service="patient-service",version="0.0.0"} 1`) {
		t.Errorf("expected service_info series, got:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected go runtime metrics")
	}
}

func TestProvider_ExposesRegisteredCollectors(t *testing.T) {
	p := NewProvider(Config{ServiceName: "svc"})
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_things_total", Help: "things"})
	p.Registry().MustRegister(c)
	c.Add(3)

	body := scrape(t, p)
	if !strings.Contains(body, "test_things_total 3") {
		t.Errorf("expected custom counter, got:\n%s", body)
	}
}

func TestProvider_RegisterPoolStats(t *testing.T) {
	p := NewProvider(Config{})
	p.RegisterPoolStats("postgres", func() (int64, int64, int64) { return 2, 3, 5 })

	body := scrape(t, p)
	for _, want := range []string{
		`db_pool_connections{driver="postgres",state="active"} 2`,
		`db_pool_connections{driver="postgres",state="idle"} 3`,
		`db_pool_connections{driver="postgres",state="total"} 5`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in:\n%s", want, body)
		}
	}
}
