package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reliefgrid.io/reliefgrid/internal/pkg/worker"
)

// Health reports process liveness plus worker pool utilization. Mounted
// outside the authenticated group so probes need no identity headers.
type Health struct {
	pools  *worker.Pools
	driver string
}

// NewHealth creates the health handler.
func NewHealth(pools *worker.Pools, storeDriver string) *Health {
	return &Health{pools: pools, driver: storeDriver}
}

// Check handles GET /healthz.
func (h *Health) Check(c *gin.Context) {
	body := gin.H{
		"status":       "ok",
		"store_driver": h.driver,
	}
	if h.pools != nil {
		body["workers"] = h.pools.Metrics()
	}
	c.JSON(http.StatusOK, body)
}
