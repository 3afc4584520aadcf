package handler

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/boxfi/boxd/internal/middleware"
	"github.com/boxfi/boxd/internal/model"
	"github.com/boxfi/boxd/internal/pkg/apperrors"
	"github.com/boxfi/boxd/internal/service"
)

type VaultHandler struct {
	svc *service.BoxService
}

func NewVaultHandler(svc *service.BoxService) *VaultHandler {
	return &VaultHandler{svc: svc}
}

// operatorFrom resolves the engine account behind the request. Auth has
// already run; a missing operator is a wiring bug, not a user error.
func operatorFrom(c *gin.Context) (*model.Operator, bool) {
	opVal, exists := c.Get(middleware.ContextOperatorKey)
	if !exists {
		c.Error(apperrors.NewAuthFailed("unauthorized: missing operator context"))
		return nil, false
	}
	return opVal.(*model.Operator), true
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("invalid amount %q", raw))
	}
	return v, nil
}

// parseOptionalAmount treats the empty string as nil, the "everything"
// sentinel of repay and unwind.
func parseOptionalAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, nil
	}
	return parseAmount(raw)
}

func parseAddr(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperrors.NewInvalidRequest(fmt.Sprintf("invalid address %q", raw))
	}
	return common.HexToAddress(raw), nil
}

func parseFacilityID(raw string) (common.Hash, error) {
	trimmed := strings.TrimPrefix(raw, "0x")
	if len(trimmed) != 64 {
		return common.Hash{}, apperrors.NewInvalidRequest(fmt.Sprintf("invalid facility id %q", raw))
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return common.Hash{}, apperrors.NewInvalidRequest(fmt.Sprintf("invalid facility id %q", raw))
	}
	return common.HexToHash(raw), nil
}

func parseRouting(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(raw, "0x")
	if trimmed == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, apperrors.NewInvalidRequest("invalid routing hex: " + err.Error())
	}
	return b, nil
}

// receiverOr defaults the receiver to the caller's own account.
func receiverOr(raw string, fallback common.Address) (common.Address, error) {
	if raw == "" {
		return fallback, nil
	}
	return parseAddr(raw)
}

func (h *VaultHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status())
}

func (h *VaultHandler) ShareBalance(c *gin.Context) {
	account, err := parseAddr(c.Param("account"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account": account.Hex(),
		"shares":  h.svc.ShareBalance(account).String(),
	})
}

func (h *VaultHandler) Deposit(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	var req model.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	assets, err := parseAmount(req.Assets)
	if err != nil {
		c.Error(err)
		return
	}
	receiver, err := receiverOr(req.Receiver, op.Address)
	if err != nil {
		c.Error(err)
		return
	}
	shares, err := h.svc.Deposit(op.Address, receiver, assets)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "shares_minted", shares.String())
	c.JSON(http.StatusOK, model.DepositResponse{Shares: shares.String()})
}

func (h *VaultHandler) Withdraw(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	var req model.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	assets, err := parseAmount(req.Assets)
	if err != nil {
		c.Error(err)
		return
	}
	receiver, err := receiverOr(req.Receiver, op.Address)
	if err != nil {
		c.Error(err)
		return
	}
	burned, err := h.svc.Withdraw(op.Address, receiver, assets)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.WithdrawResponse{Shares: burned.String()})
}

func (h *VaultHandler) Redeem(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	var req model.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	shares, err := parseAmount(req.Shares)
	if err != nil {
		c.Error(err)
		return
	}
	receiver, err := receiverOr(req.Receiver, op.Address)
	if err != nil {
		c.Error(err)
		return
	}
	assets, err := h.svc.Redeem(op.Address, receiver, shares)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.RedeemResponse{Assets: assets.String()})
}

func (h *VaultHandler) Allocate(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	var req model.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	token, err := parseAddr(req.Token)
	if err != nil {
		c.Error(err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.Error(err)
		return
	}
	routing, err := parseRouting(req.Routing)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.svc.Allocate(op.Address, token, amount, req.Swapper, routing); err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "token", token.Hex())
	middleware.AddAuditContext(c, "base_amount", amount.String())
	c.JSON(http.StatusOK, gin.H{"status": "allocated"})
}

func (h *VaultHandler) Deallocate(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	var req model.DeallocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	token, err := parseAddr(req.Token)
	if err != nil {
		c.Error(err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.Error(err)
		return
	}
	routing, err := parseRouting(req.Routing)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.svc.Deallocate(op.Address, token, amount, req.Swapper, routing); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deallocated"})
}

func (h *VaultHandler) Reallocate(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	var req model.ReallocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	from, err := parseAddr(req.FromToken)
	if err != nil {
		c.Error(err)
		return
	}
	to, err := parseAddr(req.ToToken)
	if err != nil {
		c.Error(err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.Error(err)
		return
	}
	routing, err := parseRouting(req.Routing)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.svc.Reallocate(op.Address, from, to, amount, req.Swapper, routing); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reallocated"})
}

// --- funding ---

func (h *VaultHandler) SupplyCollateral(c *gin.Context) {
	h.facilityAmountOp(c, h.svc.SupplyCollateral, "collateral_supplied")
}

func (h *VaultHandler) WithdrawCollateral(c *gin.Context) {
	h.facilityAmountOp(c, h.svc.WithdrawCollateral, "collateral_withdrawn")
}

func (h *VaultHandler) Borrow(c *gin.Context) {
	h.facilityAmountOp(c, h.svc.Borrow, "borrowed")
}

func (h *VaultHandler) facilityAmountOp(c *gin.Context, op func(common.Address, common.Hash, *big.Int) error, status string) {
	operator, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, err := parseFacilityID(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	var req model.FacilityAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.Error(err)
		return
	}
	if err := op(operator.Address, id, amount); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (h *VaultHandler) Repay(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, err := parseFacilityID(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	var req model.RepayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	amount, err := parseOptionalAmount(req.Amount)
	if err != nil {
		c.Error(err)
		return
	}
	repaid, err := h.svc.Repay(op.Address, id, amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.RepayResponse{Repaid: repaid.String()})
}

// --- leverage ---

func (h *VaultHandler) Wind(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, err := parseFacilityID(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	var req model.WindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	loan, err := parseAmount(req.LoanAmount)
	if err != nil {
		c.Error(err)
		return
	}
	routing, err := parseRouting(req.Routing)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.svc.Wind(op.Address, id, loan, req.Lender, req.Swapper, routing); err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "loan_amount", loan.String())
	c.JSON(http.StatusOK, gin.H{"status": "wound"})
}

func (h *VaultHandler) Unwind(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, err := parseFacilityID(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	var req model.UnwindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	repay, err := parseOptionalAmount(req.RepayAmount)
	if err != nil {
		c.Error(err)
		return
	}
	collateral, err := parseOptionalAmount(req.CollateralAmount)
	if err != nil {
		c.Error(err)
		return
	}
	routing, err := parseRouting(req.Routing)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.svc.Unwind(op.Address, id, repay, collateral, req.Lender, req.Swapper, routing); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unwound"})
}

func (h *VaultHandler) Shift(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	from, err := parseFacilityID(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	var req model.ShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	to, err := parseFacilityID(req.ToFacility)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.svc.Shift(op.Address, from, to, req.Lender); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "shifted"})
}
