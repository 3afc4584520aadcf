package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/boxfi/boxd/internal/middleware"
	"github.com/boxfi/boxd/internal/model"
	"github.com/boxfi/boxd/internal/pkg/apperrors"
	"github.com/boxfi/boxd/internal/service"
)

type GovernanceHandler struct {
	svc *service.BoxService
}

func NewGovernanceHandler(svc *service.BoxService) *GovernanceHandler {
	return &GovernanceHandler{svc: svc}
}

func (h *GovernanceHandler) PendingActions(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.PendingActions())
}

func (h *GovernanceHandler) SubmitAction(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	var req model.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	resp, err := h.svc.SubmitAction(op.Address, req)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "action", req.Action)
	middleware.AddAuditContext(c, "action_key", resp.Key)
	c.JSON(http.StatusOK, resp)
}

func (h *GovernanceHandler) ExecuteAction(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	var req model.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	result, err := h.svc.ExecuteAction(op.Address, req)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "action", req.Action)
	if result == nil {
		c.JSON(http.StatusOK, gin.H{"status": "executed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *GovernanceHandler) RevokeAction(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	var req model.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	if err := h.svc.RevokeAction(op.Address, req); err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "action", req.Action)
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (h *GovernanceHandler) SetRole(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	var req model.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	account, err := parseAddr(req.Account)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.svc.SetRoleHolder(op.Address, req.Role, account); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "role set"})
}

func (h *GovernanceHandler) RevokeRole(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	var req model.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	account, err := parseAddr(req.Account)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.svc.RevokeRole(op.Address, req.Role, account); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "role revoked"})
}

type priceRequest struct {
	Price string `json:"price" binding:"required"`
}

func (h *GovernanceHandler) SetPrice(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	token, err := parseAddr(c.Param("token"))
	if err != nil {
		c.Error(err)
		return
	}
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.svc.SetPrice(op.Address, token, price); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "price set"})
}

func (h *GovernanceHandler) Shutdown(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	if err := h.svc.Shutdown(op.Address); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "shutdown"})
}

func (h *GovernanceHandler) Recover(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	if err := h.svc.Recover(op.Address); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recovered"})
}
