package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefgrid.io/reliefgrid/internal/config"
	"reliefgrid.io/reliefgrid/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
	m.Run()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: 0, ShutdownTimeout: time.Second},
		Database: config.DatabaseConfig{
			Host: "localhost", Port: 5432, User: "test", Database: "test",
		},
		Store:     config.StoreConfig{Driver: config.StoreDriverFile, Dir: t.TempDir()},
		Policy:    config.PolicyConfig{Preset: "v1", SafetyFactor: 1.25, HorizonAHours: 72, ProcurementModeled: true},
		Snapshot:  config.SnapshotConfig{Dir: t.TempDir()},
		Numbering: config.NumberingConfig{MaxAttempts: 5, Backoff: time.Millisecond},
		Log:       config.LogConfig{Level: "error", Format: "json"},
		Worker:    config.WorkerConfig{GeneralPoolSize: 4, CalcPoolSize: 4},
	}
}

// Bootstrap must compose a working application without a reachable database
// when the workflow store runs on the file driver.
func TestBootstrapFileDriver(t *testing.T) {
	application, err := Bootstrap(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer application.Shutdown()

	require.NotNil(t, application.Router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	application.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBootstrapMetricsEndpoint(t *testing.T) {
	application, err := Bootstrap(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer application.Shutdown()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	application.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBootstrapRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "etcd"
	_, err := Bootstrap(context.Background(), cfg)
	require.Error(t, err)
}
