package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"reliefgrid.io/reliefgrid/internal/approval"
	"reliefgrid.io/reliefgrid/internal/engine"
	"reliefgrid.io/reliefgrid/internal/identity"
	"reliefgrid.io/reliefgrid/internal/policy"
	"reliefgrid.io/reliefgrid/internal/workflow"
)

type scopeRequest struct {
	EventID    string   `json:"event_id" binding:"required"`
	Warehouses []string `json:"warehouses" binding:"required,min=1"`
	Phase      string   `json:"phase" binding:"required"`
}

func (r scopeRequest) scope() (engine.Scope, error) {
	phase, err := policy.ParsePhase(r.Phase)
	if err != nil {
		return engine.Scope{}, err
	}
	return engine.Scope{EventID: r.EventID, Warehouses: r.Warehouses, Phase: phase}, nil
}

// Preview runs a calculation without persisting anything.
func (s *Server) Preview(c *gin.Context) {
	var req scopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	scope, err := req.scope()
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.engine.Preview(c.Request.Context(), actor(c), scope)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

type draftRequest struct {
	scopeRequest
	Method         string `json:"method"`
	IncludeZeroGap bool   `json:"include_zero_gap"`
}

// CreateDraft commits a fresh calculation as a draft needs list.
func (s *Server) CreateDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	scope, err := req.scope()
	if err != nil {
		fail(c, err)
		return
	}
	method, err := approval.ParseMethod(req.Method)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.engine.CreateDraft(c.Request.Context(), engine.DraftRequest{
		Scope:          scope,
		Actor:          actor(c),
		Method:         method,
		IncludeZeroGap: req.IncludeZeroGap,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// List returns records matching the query filters.
func (s *Server) List(c *gin.Context) {
	f := workflow.ListFilter{
		EventID:   c.Query("event_id"),
		Warehouse: c.Query("warehouse"),
		CreatedBy: c.Query("created_by"),
	}
	if raw := c.Query("phase"); raw != "" {
		phase, err := policy.ParsePhase(raw)
		if err != nil {
			fail(c, err)
			return
		}
		f.Phase = phase
	}
	if raw := c.Query("status"); raw != "" {
		f.Statuses = []workflow.Status{workflow.Status(raw)}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		f.Limit = limit
	}
	records, err := s.engine.List(c.Request.Context(), actor(c), f)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"needs_lists": records, "count": len(records)})
}

// Get returns one record with its full audit trail.
func (s *Server) Get(c *gin.Context) {
	rec, err := s.engine.Get(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

// Audit returns just the transition history of a record.
func (s *Server) Audit(c *gin.Context) {
	rec, err := s.engine.Get(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"needs_list_id": rec.ID, "audit": rec.Audit})
}

type editLineRequest struct {
	Qty    *float64 `json:"qty" binding:"required"`
	Reason string   `json:"reason" binding:"required"`
}

// EditLine overrides a computed line quantity.
func (s *Server) EditLine(c *gin.Context) {
	var req editLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := s.engine.EditLine(c.Request.Context(), actor(c),
		c.Param("id"), c.Param("item_id"), *req.Qty, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

type commentRequest struct {
	ItemID  string `json:"item_id" binding:"required"`
	Comment string `json:"comment" binding:"required"`
}

// Comment adds a per-item review note.
func (s *Server) Comment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := s.engine.Comment(c.Request.Context(), actor(c), c.Param("id"), req.ItemID, req.Comment)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

type submitRequest struct {
	Method         string `json:"method"`
	AllowEmpty     bool   `json:"allow_empty"`
	EmptyRationale string `json:"empty_rationale"`
}

// Submit sends a draft into review.
func (s *Server) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}
	method, err := approval.ParseMethod(req.Method)
	if err != nil {
		fail(c, err)
		return
	}
	rec, err := s.engine.Submit(c.Request.Context(), engine.SubmitRequest{
		ID:             c.Param("id"),
		Actor:          actor(c),
		Method:         method,
		AllowEmpty:     req.AllowEmpty,
		EmptyRationale: req.EmptyRationale,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

type returnRequest struct {
	ReasonCode string `json:"reason_code" binding:"required"`
	Reason     string `json:"reason"`
}

// Return sends the record back to the submitter for changes.
func (s *Server) Return(c *gin.Context) {
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := s.engine.Return(c.Request.Context(), actor(c), c.Param("id"), req.ReasonCode, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject terminally declines the record.
func (s *Server) Reject(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := s.engine.Reject(c.Request.Context(), actor(c), c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

// Escalate moves the record to escalated review.
func (s *Server) Escalate(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := s.engine.Escalate(c.Request.Context(), actor(c), c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

// Approve finalizes the approval decision.
func (s *Server) Approve(c *gin.Context) {
	var req struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}
	rec, err := s.engine.Approve(c.Request.Context(), actor(c), c.Param("id"), req.Note)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

// Reminder reports how long a record has been awaiting a decision.
func (s *Server) Reminder(c *gin.Context) {
	rem, err := s.engine.ReviewReminder(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rem)
}

// StartPreparation begins picking and packing.
func (s *Server) StartPreparation(c *gin.Context) {
	s.transition(c, s.engine.StartPreparation)
}

// MarkDispatched records the shipment leaving the warehouse.
func (s *Server) MarkDispatched(c *gin.Context) {
	s.transition(c, s.engine.MarkDispatched)
}

// MarkReceived records arrival at the destination.
func (s *Server) MarkReceived(c *gin.Context) {
	s.transition(c, s.engine.MarkReceived)
}

// MarkCompleted closes out the record.
func (s *Server) MarkCompleted(c *gin.Context) {
	s.transition(c, s.engine.MarkCompleted)
}

func (s *Server) transition(c *gin.Context, op func(context.Context, identity.Actor, string) (*workflow.NeedsList, error)) {
	rec, err := op(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

// Cancel aborts an approved or in-preparation record.
func (s *Server) Cancel(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := s.engine.Cancel(c.Request.Context(), actor(c), c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

// GenerateTransfers creates transfer orders on the warehouse ledger.
func (s *Server) GenerateTransfers(c *gin.Context) {
	ids, err := s.engine.GenerateTransfers(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transfer_order_ids": ids})
}
