package escrow

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jpgonzalezra/dp2p-engine/internal/amount"
	"github.com/jpgonzalezra/dp2p-engine/internal/validation"
)

// Handler provides HTTP endpoints for escrow operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up escrow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/escrows", h.CreateEscrow)
	r.GET("/escrows/:id", h.GetEscrow)
	r.GET("/parties/:address/escrows", h.ListEscrows)
	r.POST("/escrows/:id/deposit", h.Deposit)
	r.POST("/escrows/:id/release-seller-sig", h.ReleaseSellerSig)
	r.POST("/escrows/:id/release-agent-sig", h.ReleaseAgentSig)
	r.POST("/escrows/:id/release", h.Release)
	r.POST("/escrows/:id/resolve-buyer", h.ResolveBuyer)
	r.POST("/escrows/:id/resolve-seller", h.ResolveSeller)
	r.POST("/escrows/:id/buyer-cancel", h.BuyerCancel)
	r.POST("/escrows/:id/cancel", h.Cancel)
	r.POST("/escrows/:id/cancel-seller", h.CancelBySeller)
	r.POST("/escrows/:id/takeover", h.TakeOver)
}

// CreateEscrow handles POST /v1/escrows
func (h *Handler) CreateEscrow(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	callerAddr := c.GetHeader("X-Caller-Address")
	if errs := validation.Validate(
		validation.Required("caller", callerAddr),
		validation.ValidAddress("caller", callerAddr),
		validation.ValidAddress("agent_addr", req.AgentAddr),
		validation.ValidAddress("buyer_addr", req.BuyerAddr),
		validation.ValidAddress("token_addr", req.TokenAddr),
		validation.ValidAmount("amount", req.Amount),
		validation.ValidAmount("salt", req.Salt),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	escrow, err := h.service.Create(c.Request.Context(), callerAddr, req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrInvalidAgent):
			status = http.StatusBadRequest
			code = "invalid_agent"
		case errors.Is(err, ErrEscrowExists):
			status = http.StatusConflict
			code = "escrow_exists"
		case errors.Is(err, ErrInvalidLimit):
			status = http.StatusBadRequest
			code = "invalid_limit"
		case isAmountErr(err):
			status = http.StatusBadRequest
			code = "invalid_amount"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"escrow": escrow})
}

// GetEscrow handles GET /v1/escrows/:id
func (h *Handler) GetEscrow(c *gin.Context) {
	escrow, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrEscrowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Escrow not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": escrow})
}

// ListEscrows handles GET /v1/parties/:address/escrows
func (h *Handler) ListEscrows(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	escrows, err := h.service.ListByParty(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"escrows": escrows,
		"count":   len(escrows),
	})
}

// Deposit handles POST /v1/escrows/:id/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "amount is required",
		})
		return
	}

	escrow, err := h.service.Deposit(c.Request.Context(), c.Param("id"), c.GetHeader("X-Caller-Address"), req.Amount)
	h.respond(c, escrow, err)
}

// ReleaseSellerSig handles POST /v1/escrows/:id/release-seller-sig
func (h *Handler) ReleaseSellerSig(c *gin.Context) {
	var req SignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "signature is required",
		})
		return
	}

	escrow, err := h.service.ReleaseWithSellerSignature(c.Request.Context(), c.Param("id"), c.GetHeader("X-Caller-Address"), req.Signature)
	h.respond(c, escrow, err)
}

// ReleaseAgentSig handles POST /v1/escrows/:id/release-agent-sig
func (h *Handler) ReleaseAgentSig(c *gin.Context) {
	var req SignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "signature is required",
		})
		return
	}

	escrow, err := h.service.ReleaseWithAgentSignature(c.Request.Context(), c.Param("id"), c.GetHeader("X-Caller-Address"), req.Signature)
	h.respond(c, escrow, err)
}

// Release handles POST /v1/escrows/:id/release
func (h *Handler) Release(c *gin.Context) {
	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "amount is required",
		})
		return
	}

	escrow, err := h.service.Release(c.Request.Context(), c.Param("id"), c.GetHeader("X-Caller-Address"), req.Amount)
	h.respond(c, escrow, err)
}

// ResolveBuyer handles POST /v1/escrows/:id/resolve-buyer
func (h *Handler) ResolveBuyer(c *gin.Context) {
	var req SignatureRequest
	_ = c.ShouldBindJSON(&req) // signature optional for the owner path

	escrow, err := h.service.ResolveDisputeBuyer(c.Request.Context(), c.Param("id"), c.GetHeader("X-Caller-Address"), req.Signature)
	h.respond(c, escrow, err)
}

// ResolveSeller handles POST /v1/escrows/:id/resolve-seller
func (h *Handler) ResolveSeller(c *gin.Context) {
	var req SignatureRequest
	_ = c.ShouldBindJSON(&req)

	escrow, err := h.service.ResolveDisputeSeller(c.Request.Context(), c.Param("id"), c.GetHeader("X-Caller-Address"), req.Signature)
	h.respond(c, escrow, err)
}

// BuyerCancel handles POST /v1/escrows/:id/buyer-cancel
func (h *Handler) BuyerCancel(c *gin.Context) {
	escrow, err := h.service.BuyerCancel(c.Request.Context(), c.Param("id"), c.GetHeader("X-Caller-Address"))
	h.respond(c, escrow, err)
}

// Cancel handles POST /v1/escrows/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	escrow, err := h.service.Cancel(c.Request.Context(), c.Param("id"), c.GetHeader("X-Caller-Address"))
	h.respond(c, escrow, err)
}

// CancelBySeller handles POST /v1/escrows/:id/cancel-seller
func (h *Handler) CancelBySeller(c *gin.Context) {
	escrow, err := h.service.CancelBySeller(c.Request.Context(), c.Param("id"), c.GetHeader("X-Caller-Address"))
	h.respond(c, escrow, err)
}

// TakeOver handles POST /v1/escrows/:id/takeover
func (h *Handler) TakeOver(c *gin.Context) {
	escrow, err := h.service.TakeOverAsBuyer(c.Request.Context(), c.Param("id"), c.GetHeader("X-Caller-Address"))
	h.respond(c, escrow, err)
}

// respond maps service errors to HTTP statuses.
func (h *Handler) respond(c *gin.Context, escrow *Escrow, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrUnauthorized):
			status = http.StatusForbidden
			code = "unauthorized"
		case errors.Is(err, ErrInvalidSignature):
			status = http.StatusForbidden
			code = "invalid_signature"
		case errors.Is(err, ErrInsufficientBalance):
			status = http.StatusConflict
			code = "insufficient_balance"
		case errors.Is(err, ErrBuyerUnassigned):
			status = http.StatusConflict
			code = "buyer_unassigned"
		case errors.Is(err, ErrEscrowComplete):
			status = http.StatusConflict
			code = "escrow_complete"
		case errors.Is(err, ErrLimitExpired):
			status = http.StatusConflict
			code = "limit_expired"
		case isAmountErr(err):
			status = http.StatusBadRequest
			code = "invalid_amount"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": escrow})
}

func isAmountErr(err error) bool {
	return errors.Is(err, amount.ErrInvalid) ||
		errors.Is(err, amount.ErrNegative) ||
		errors.Is(err, amount.ErrOverflow)
}
