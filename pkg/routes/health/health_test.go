package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct{ err error }

func (d *fakeDB) PingContext(_ context.Context) error { return d.err }

type fakePinger struct{ err error }

func (p *fakePinger) Ping(_ context.Context) error { return p.err }

type fakeGraph struct{ err error }

func (g *fakeGraph) VerifyConnectivity(_ context.Context) error { return g.err }

func doRequest(t *testing.T, checker *Checker, path string) (*httptest.ResponseRecorder, *HealthStatus) {
	t.Helper()
	e := echo.New()
	checker.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var status HealthStatus
	if json.Unmarshal(rec.Body.Bytes(), &status) != nil {
		return rec, nil
	}
	return rec, &status
}

func TestHealthAllStoresHealthy(t *testing.T) {
	checker := NewChecker(&fakeDB{}, &fakePinger{}, &fakePinger{}, &fakeGraph{}, "1.2.3")

	rec, status := doRequest(t, checker, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	for _, name := range []string{"database", "redis", "elasticsearch", "neo4j"} {
		require.Contains(t, status.Checks, name)
		assert.Equal(t, "healthy", status.Checks[name].Status)
		assert.NotEmpty(t, status.Checks[name].Latency)
	}
}

func TestHealthDatabaseDown(t *testing.T) {
	checker := NewChecker(&fakeDB{err: errors.New("pg down")}, &fakePinger{}, nil, nil, "test")

	rec, status := doRequest(t, checker, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "pg down", status.Checks["database"].Message)
	assert.Equal(t, "healthy", status.Checks["redis"].Status, "other checks still run")
}

func TestHealthDatabaseNotConfigured(t *testing.T) {
	checker := NewChecker(nil, nil, nil, nil, "test")

	rec, status := doRequest(t, checker, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "database not configured", status.Checks["database"].Message)
}

func TestHealthSkipsMissingOptionalStores(t *testing.T) {
	checker := NewChecker(&fakeDB{}, nil, nil, nil, "test")

	rec, status := doRequest(t, checker, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Len(t, status.Checks, 1)
	assert.Contains(t, status.Checks, "database")
}

func TestHealthSearchDown(t *testing.T) {
	checker := NewChecker(&fakeDB{}, &fakePinger{}, &fakePinger{err: errors.New("cluster red")}, &fakeGraph{}, "test")

	rec, status := doRequest(t, checker, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "cluster red", status.Checks["elasticsearch"].Message)
}

func TestLive(t *testing.T) {
	checker := NewChecker(&fakeDB{}, nil, nil, nil, "test")

	rec, _ := doRequest(t, checker, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	checker := NewChecker(&fakeDB{}, nil, nil, nil, "test")

	rec, _ := doRequest(t, checker, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	checker.SetReady(true)
	rec, _ = doRequest(t, checker, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}
