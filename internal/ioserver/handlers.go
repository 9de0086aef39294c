package ioserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/errcode"
)

// syncRequest is the JSON body of POST /api/v1/sync.
type syncRequest struct {
	Mode       string   `json:"mode" binding:"required"`
	Countries  []string `json:"countries,omitempty"`
	Pollutants []string `json:"pollutants,omitempty"`
	DateStart  string   `json:"date_start,omitempty"`
	DateEnd    string   `json:"date_end,omitempty"`
	URLs       []string `json:"urls,omitempty"`
	Dataset    int      `json:"dataset,omitempty"`
	Workers    int      `json:"workers,omitempty"`
}

// handleTriggerSync validates the request, starts the run in the
// background and answers 202 with the ledger operation ID.
func (s *Server) handleTriggerSync(c *gin.Context) {
	var body syncRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := aqsync.Request{
		Mode:       aqsync.Mode(body.Mode),
		Countries:  body.Countries,
		Pollutants: body.Pollutants,
		URLs:       body.URLs,
		Dataset:    body.Dataset,
		Workers:    body.Workers,
	}
	if !req.Mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown sync mode: " + body.Mode})
		return
	}

	if body.DateStart != "" || body.DateEnd != "" {
		start, err := time.Parse(time.RFC3339, body.DateStart)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_start"})
			return
		}
		end, err := time.Parse(time.RFC3339, body.DateEnd)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_end"})
			return
		}
		req.Range = aqsync.DateRange{Start: start.UTC(), End: end.UTC()}
	}

	// Planning happens synchronously so invalid scopes fail the request;
	// the run itself outlives the HTTP request.
	id, err := s.orch.Start(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errcode.Has(err, errcode.PlanningError) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"operation_id": id.String(), "status": "accepted"})
}

func (s *Server) handleGetOperation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid operation id"})
		return
	}

	op, err := s.ledger.Get(c.Request.Context(), id)
	if err != nil {
		if errcode.Has(err, errcode.NotFoundError) {
			c.JSON(http.StatusNotFound, gin.H{"error": "operation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, op)
}

func (s *Server) handleListOperations(c *gin.Context) {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	ops, err := s.ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(ops), "operations": ops})
}

func (s *Server) handleRunningOperations(c *gin.Context) {
	ops, err := s.ledger.Running(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(ops), "operations": ops})
}

func (s *Server) handleCancelOperation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid operation id"})
		return
	}

	if !s.orch.Cancel(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "operation is not running here"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"operation_id": id.String(), "status": "cancelling"})
}
