// Package api assembles the gin router: CORS, request tracing, gateway
// identity, centralized error handling, and the versioned route tree.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reliefgrid.io/reliefgrid/internal/api/handlers"
	"reliefgrid.io/reliefgrid/internal/api/middleware"
	"reliefgrid.io/reliefgrid/internal/engine"
	"reliefgrid.io/reliefgrid/internal/identity"
	"reliefgrid.io/reliefgrid/internal/pkg/worker"
)

// RouterParams wires the router.
type RouterParams struct {
	Engine      *engine.Engine
	Aliases     *identity.AliasTable
	Pools       *worker.Pools
	StoreDriver string
	Registry    *prometheus.Registry // nil disables the /metrics endpoint
}

// NewRouter builds the HTTP handler tree.
func NewRouter(p RouterParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(cors.Default())

	health := handlers.NewHealth(p.Pools, p.StoreDriver)
	r.GET("/healthz", health.Check)
	if p.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})))
	}

	authed := r.Group("")
	authed.Use(middleware.Actor())
	authed.Use(middleware.ErrorHandler())

	srv := handlers.NewServer(p.Engine, p.Aliases)
	srv.RegisterRoutes(authed)

	return r
}
