// Package handlers implements the HTTP surface of the replenishment engine.
// Handlers bind and validate the wire shape, call the engine, and push
// errors to the centralized error middleware.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reliefgrid.io/reliefgrid/internal/api/middleware"
	"reliefgrid.io/reliefgrid/internal/engine"
	"reliefgrid.io/reliefgrid/internal/identity"
	apperrors "reliefgrid.io/reliefgrid/internal/pkg/errors"
)

// Server bundles the handler dependencies.
type Server struct {
	engine  *engine.Engine
	aliases *identity.AliasTable
}

// NewServer creates the handler set.
func NewServer(eng *engine.Engine, aliases *identity.AliasTable) *Server {
	return &Server{engine: eng, aliases: aliases}
}

// RegisterRoutes mounts the API under /api/v1.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	perm := func(p string) gin.HandlerFunc {
		return middleware.RequirePermission(s.aliases, p)
	}

	v1 := r.Group("/api/v1")
	nl := v1.Group("/needs-lists")
	{
		nl.POST("/preview", perm(identity.PermPreview), s.Preview)
		nl.POST("", perm(identity.PermDraft), s.CreateDraft)
		nl.GET("", perm(identity.PermPreview), s.List)
		nl.GET("/:id", perm(identity.PermPreview), s.Get)
		nl.GET("/:id/audit", perm(identity.PermPreview), s.Audit)

		nl.PUT("/:id/lines/:item_id", perm(identity.PermEditLines), s.EditLine)
		nl.POST("/:id/comments", perm(identity.PermComment), s.Comment)

		nl.POST("/:id/submit", perm(identity.PermSubmit), s.Submit)
		nl.POST("/:id/return", perm(identity.PermReview), s.Return)
		nl.POST("/:id/reject", perm(identity.PermReview), s.Reject)
		nl.POST("/:id/escalate", perm(identity.PermReview), s.Escalate)
		nl.POST("/:id/approve", perm(identity.PermApprove), s.Approve)
		nl.POST("/:id/reminder", perm(identity.PermReview), s.Reminder)

		nl.POST("/:id/preparation", perm(identity.PermExecute), s.StartPreparation)
		nl.POST("/:id/dispatch", perm(identity.PermExecute), s.MarkDispatched)
		nl.POST("/:id/receipt", perm(identity.PermExecute), s.MarkReceived)
		nl.POST("/:id/completion", perm(identity.PermExecute), s.MarkCompleted)
		nl.POST("/:id/cancel", perm(identity.PermCancel), s.Cancel)
		nl.POST("/:id/transfers", perm(identity.PermGenerate), s.GenerateTransfers)
	}
}

// actor returns the request actor; the Actor middleware guarantees presence.
func actor(c *gin.Context) identity.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

func badRequest(c *gin.Context, msg string) {
	fail(c, apperrors.BadRequest(apperrors.CodeValidationFailed, msg))
}

func ok(c *gin.Context, body interface{}) {
	c.JSON(http.StatusOK, body)
}
