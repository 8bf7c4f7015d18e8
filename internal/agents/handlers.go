package agents

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jpgonzalezra/dp2p-engine/internal/fees"
	"github.com/jpgonzalezra/dp2p-engine/internal/validation"
)

// Handler provides HTTP endpoints for the agent registry.
type Handler struct {
	service *Service
}

// NewHandler creates a new agents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up agent registry routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/agents", h.AddAgent)
	r.POST("/agents/:address/remove", h.RemoveAgent)
	r.GET("/agents/:address", h.GetAgent)
	r.GET("/agents", h.ListAgents)
}

// AddAgent handles POST /v1/agents
func (h *Handler) AddAgent(c *gin.Context) {
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("address", req.Address),
		validation.ValidAddress("address", req.Address),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	callerAddr := c.GetHeader("X-Caller-Address")
	agent, err := h.service.Add(c.Request.Context(), callerAddr, req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrUnauthorized):
			status = http.StatusForbidden
			code = "unauthorized"
		case errors.Is(err, ErrInvalidAddress):
			status = http.StatusBadRequest
			code = "invalid_address"
		case errors.Is(err, fees.ErrInvalidFee):
			status = http.StatusBadRequest
			code = "invalid_fee"
		case errors.Is(err, ErrAgentExists):
			status = http.StatusConflict
			code = "agent_exists"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"agent": agent})
}

// RemoveAgent handles POST /v1/agents/:address/remove
func (h *Handler) RemoveAgent(c *gin.Context) {
	address := c.Param("address")
	callerAddr := c.GetHeader("X-Caller-Address")

	if err := h.service.Remove(c.Request.Context(), callerAddr, address); err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrUnauthorized):
			status = http.StatusForbidden
			code = "unauthorized"
		case errors.Is(err, ErrInvalidAddress):
			status = http.StatusBadRequest
			code = "invalid_address"
		case errors.Is(err, ErrAgentNotFound):
			status = http.StatusNotFound
			code = "not_found"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// GetAgent handles GET /v1/agents/:address
func (h *Handler) GetAgent(c *gin.Context) {
	agent, err := h.service.Get(c.Request.Context(), c.Param("address"))
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Agent not registered",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agent": agent})
}

// ListAgents handles GET /v1/agents
func (h *Handler) ListAgents(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	agents, err := h.service.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
		"count":  len(agents),
	})
}
