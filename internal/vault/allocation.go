package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/boxfi/boxd/internal/pkg/metrics"
)

// applyTolerance returns floor(amount * (1 - tolerance)), the minimum
// acceptable output of a swap quoted at amount.
func applyTolerance(amount *big.Int, tolerance decimal.Decimal) *big.Int {
	min := decimal.NewFromBigInt(amount, 0).Mul(decimal.NewFromInt(1).Sub(tolerance)).Floor()
	return min.BigInt()
}

func (v *Vault) validateSwapInputs(token common.Address, amount *big.Int, swapper SwapExecutor) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if swapper == nil {
		return ErrNilAdapter
	}
	if !v.isListed(token) {
		return ErrTokenNotListed
	}
	if _, ok := v.prices[token]; !ok {
		return ErrMissingPrice
	}
	return nil
}

// Allocate sells baseAmount of base currency for token through the swap
// executor. The executor's effect is measured by balance deltas: it must not
// spend more than authorized, and the received amount must clear the oracle
// expectation less the slippage tolerance. The shortfall, if any, is charged
// to the epoch budget.
func (v *Vault) Allocate(caller, token common.Address, baseAmount *big.Int, swapper SwapExecutor, routing []byte) error {
	if !v.roles.hasRole(caller, RoleAllocator) {
		return ErrNotAllocator
	}
	if err := v.validateSwapInputs(token, baseAmount, swapper); err != nil {
		return err
	}
	err := v.run(classAllocation, func() error {
		if v.shutdown.active {
			return ErrShutdown
		}
		price, err := v.priceOf(token)
		if err != nil {
			return err
		}
		expected := new(big.Int).Mul(baseAmount, PricePrecision)
		expected.Div(expected, price)

		baseBefore := new(big.Int).Set(v.ledger.BalanceOf(v.baseToken, v.account))
		tokenBefore := new(big.Int).Set(v.ledger.BalanceOf(token, v.account))

		if err := swapper.Sell(v.baseToken, token, baseAmount, routing); err != nil {
			return err
		}

		spent := new(big.Int).Sub(baseBefore, v.ledger.BalanceOf(v.baseToken, v.account))
		if spent.Sign() < 0 || spent.Cmp(baseAmount) > 0 {
			return ErrOverspent
		}
		received := new(big.Int).Sub(v.ledger.BalanceOf(token, v.account), tokenBefore)
		if received.Cmp(applyTolerance(expected, v.maxSlippage)) < 0 {
			metrics.SlippageRejects.WithLabelValues("allocation_shortfall").Inc()
			return ErrAllocationShort
		}
		if shortfall := new(big.Int).Sub(expected, received); shortfall.Sign() > 0 {
			loss := shortfall.Mul(shortfall, price)
			loss.Div(loss, PricePrecision)
			if err := v.chargeSlippage(loss, v.maxSlippage); err != nil {
				return err
			}
		} else if err := v.chargeSlippage(nil, v.maxSlippage); err != nil {
			return err
		}
		v.emit(EventAllocated, map[string]string{
			"token":    token.Hex(),
			"base_in":  spent.String(),
			"received": received.String(),
			"swapper":  swapper.Name(),
		})
		return nil
	})
	if err != nil {
		metrics.Operations.WithLabelValues("allocate", "error").Inc()
		return err
	}
	metrics.Operations.WithLabelValues("allocate", "ok").Inc()
	return nil
}

// Deallocate sells tokenAmount of token back into base currency. In normal
// mode it is allocator-only with the static tolerance; once a shutdown's
// warmup has elapsed, anyone may deallocate and the tolerance escalates per
// deallocationTolerance.
func (v *Vault) Deallocate(caller, token common.Address, tokenAmount *big.Int, swapper SwapExecutor, routing []byte) error {
	if !v.inWinddown(v.now()) && !v.roles.hasRole(caller, RoleAllocator) {
		return ErrNotAllocator
	}
	if err := v.validateSwapInputs(token, tokenAmount, swapper); err != nil {
		return err
	}
	err := v.run(classAllocation, func() error {
		tolerance := v.deallocationTolerance(v.now())
		price, err := v.priceOf(token)
		if err != nil {
			return err
		}
		expected := new(big.Int).Mul(tokenAmount, price)
		expected.Div(expected, PricePrecision)

		tokenBefore := new(big.Int).Set(v.ledger.BalanceOf(token, v.account))
		baseBefore := new(big.Int).Set(v.ledger.BalanceOf(v.baseToken, v.account))

		if err := swapper.Sell(token, v.baseToken, tokenAmount, routing); err != nil {
			return err
		}

		spent := new(big.Int).Sub(tokenBefore, v.ledger.BalanceOf(token, v.account))
		if spent.Sign() < 0 || spent.Cmp(tokenAmount) > 0 {
			return ErrOverspent
		}
		received := new(big.Int).Sub(v.ledger.BalanceOf(v.baseToken, v.account), baseBefore)
		if received.Cmp(applyTolerance(expected, tolerance)) < 0 {
			metrics.SlippageRejects.WithLabelValues("deallocation_shortfall").Inc()
			return ErrAllocationShort
		}
		if shortfall := new(big.Int).Sub(expected, received); shortfall.Sign() > 0 {
			if err := v.chargeSlippage(shortfall, tolerance); err != nil {
				return err
			}
		} else if err := v.chargeSlippage(nil, tolerance); err != nil {
			return err
		}
		v.emit(EventDeallocated, map[string]string{
			"token":    token.Hex(),
			"token_in": spent.String(),
			"received": received.String(),
			"swapper":  swapper.Name(),
		})
		return nil
	})
	if err != nil {
		metrics.Operations.WithLabelValues("deallocate", "error").Inc()
		return err
	}
	metrics.Operations.WithLabelValues("deallocate", "ok").Inc()
	return nil
}

// Reallocate swaps directly between two whitelisted investment tokens. The
// expected output composes both oracle prices through base-currency terms.
func (v *Vault) Reallocate(caller, fromToken, toToken common.Address, fromAmount *big.Int, swapper SwapExecutor, routing []byte) error {
	if !v.roles.hasRole(caller, RoleAllocator) {
		return ErrNotAllocator
	}
	if err := v.validateSwapInputs(fromToken, fromAmount, swapper); err != nil {
		return err
	}
	if !v.isListed(toToken) {
		return ErrTokenNotListed
	}
	err := v.run(classAllocation, func() error {
		if v.shutdown.active {
			return ErrShutdown
		}
		fromPrice, err := v.priceOf(fromToken)
		if err != nil {
			return err
		}
		toPrice, err := v.priceOf(toToken)
		if err != nil {
			return err
		}
		expected := new(big.Int).Mul(fromAmount, fromPrice)
		expected.Div(expected, toPrice)

		fromBefore := new(big.Int).Set(v.ledger.BalanceOf(fromToken, v.account))
		toBefore := new(big.Int).Set(v.ledger.BalanceOf(toToken, v.account))

		if err := swapper.Sell(fromToken, toToken, fromAmount, routing); err != nil {
			return err
		}

		spent := new(big.Int).Sub(fromBefore, v.ledger.BalanceOf(fromToken, v.account))
		if spent.Sign() < 0 || spent.Cmp(fromAmount) > 0 {
			return ErrOverspent
		}
		received := new(big.Int).Sub(v.ledger.BalanceOf(toToken, v.account), toBefore)
		if received.Cmp(applyTolerance(expected, v.maxSlippage)) < 0 {
			metrics.SlippageRejects.WithLabelValues("reallocation_shortfall").Inc()
			return ErrAllocationShort
		}
		if shortfall := new(big.Int).Sub(expected, received); shortfall.Sign() > 0 {
			loss := shortfall.Mul(shortfall, toPrice)
			loss.Div(loss, PricePrecision)
			if err := v.chargeSlippage(loss, v.maxSlippage); err != nil {
				return err
			}
		} else if err := v.chargeSlippage(nil, v.maxSlippage); err != nil {
			return err
		}
		v.emit(EventReallocated, map[string]string{
			"from":     fromToken.Hex(),
			"to":       toToken.Hex(),
			"from_in":  spent.String(),
			"received": received.String(),
			"swapper":  swapper.Name(),
		})
		return nil
	})
	if err != nil {
		metrics.Operations.WithLabelValues("reallocate", "error").Inc()
		return err
	}
	metrics.Operations.WithLabelValues("reallocate", "ok").Inc()
	return nil
}
