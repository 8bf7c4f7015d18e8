package treasury

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jpgonzalezra/dp2p-engine/internal/amount"
	"github.com/jpgonzalezra/dp2p-engine/internal/fees"
	"github.com/jpgonzalezra/dp2p-engine/internal/validation"
)

// Handler provides HTTP endpoints for platform treasury operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new treasury handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up platform treasury routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/platform/fee", h.GetFee)
	r.POST("/platform/fee", h.SetFee)
	r.POST("/platform/withdraw", h.Withdraw)
	r.GET("/platform/balances/:token", h.GetBalance)
}

// SetFeeRequest contains the parameters for changing the platform fee.
type SetFeeRequest struct {
	FeeBPS int64 `json:"feeBps"`
}

// GetFee handles GET /v1/platform/fee
func (h *Handler) GetFee(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"feeBps": h.service.Rate()})
}

// SetFee handles POST /v1/platform/fee
func (h *Handler) SetFee(c *gin.Context) {
	var req SetFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	callerAddr := c.GetHeader("X-Caller-Address")
	if err := h.service.SetRate(c.Request.Context(), callerAddr, req.FeeBPS); err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrUnauthorized):
			status = http.StatusForbidden
			code = "unauthorized"
		case errors.Is(err, fees.ErrInvalidFee):
			status = http.StatusBadRequest
			code = "invalid_fee"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"feeBps": req.FeeBPS})
}

// Withdraw handles POST /v1/platform/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("to", req.To),
		validation.ValidAddress("to", req.To),
		validation.ValidAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	callerAddr := c.GetHeader("X-Caller-Address")
	withdrawals, err := h.service.Withdraw(c.Request.Context(), callerAddr, req)
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
		case errors.Is(err, ErrInsufficientBalance):
			status = http.StatusConflict
			code = "insufficient_balance"
		case errors.Is(err, amount.ErrInvalid), errors.Is(err, amount.ErrNegative), errors.Is(err, amount.ErrOverflow):
			status = http.StatusBadRequest
			code = "invalid_amount"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"withdrawals": withdrawals})
}

// GetBalance handles GET /v1/platform/balances/:token
func (h *Handler) GetBalance(c *gin.Context) {
	token := c.Param("token")

	balance, err := h.service.BalanceOf(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"balance": amount.Format(balance),
	})
}
