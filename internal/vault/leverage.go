package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/boxfi/boxd/internal/pkg/metrics"
)

// beginFlash caches the pre-flash NAV and raises the in-flight flag. While
// the flag is set, TotalValue refuses to answer and every slippage ratio uses
// the cached value, so borrowed liquidity can never inflate the denominator
// and shrink an apparent loss (invariant: CachedNAVDuringFlash). Compositions
// never nest: an inner composition's exit would clear the outer cache, so
// only position pass-throughs may re-enter while a flash is in flight.
func (v *Vault) beginFlash() error {
	if v.flash.inFlight {
		return ErrFlashInFlight
	}
	value, err := v.liveValue()
	if err != nil {
		return err
	}
	v.flash.inFlight = true
	v.flash.cachedValue = value
	return nil
}

func (v *Vault) endFlash() {
	v.flash.inFlight = false
	v.flash.cachedValue = nil
}

// flashSwap swaps amountIn of input held by the vault into output through the
// executor, enforcing the overspend and shortfall checks against oracle
// expectation and charging any shortfall to the slippage budget.
func (v *Vault) flashSwap(swapper SwapExecutor, input, output common.Address, amountIn *big.Int, routing []byte) (*big.Int, error) {
	inPrice, err := v.priceOf(input)
	if err != nil {
		return nil, err
	}
	outPrice, err := v.priceOf(output)
	if err != nil {
		return nil, err
	}
	expected := new(big.Int).Mul(amountIn, inPrice)
	expected.Div(expected, outPrice)

	inBefore := new(big.Int).Set(v.ledger.BalanceOf(input, v.account))
	outBefore := new(big.Int).Set(v.ledger.BalanceOf(output, v.account))

	if err := swapper.Sell(input, output, amountIn, routing); err != nil {
		return nil, err
	}

	spent := new(big.Int).Sub(inBefore, v.ledger.BalanceOf(input, v.account))
	if spent.Sign() < 0 || spent.Cmp(amountIn) > 0 {
		return nil, ErrOverspent
	}
	received := new(big.Int).Sub(v.ledger.BalanceOf(output, v.account), outBefore)
	if received.Cmp(applyTolerance(expected, v.maxSlippage)) < 0 {
		metrics.SlippageRejects.WithLabelValues("leverage_shortfall").Inc()
		return nil, ErrAllocationShort
	}
	if shortfall := new(big.Int).Sub(expected, received); shortfall.Sign() > 0 {
		loss := shortfall.Mul(shortfall, outPrice)
		loss.Div(loss, PricePrecision)
		if err := v.chargeSlippage(loss, v.maxSlippage); err != nil {
			return nil, err
		}
	}
	return received, nil
}

// Wind opens or increases leverage on a facility in one atomic composition:
// flash-borrow loanAmount of the debt token, swap it into collateral, deposit
// the acquired collateral, borrow loanAmount back from the facility and let
// the lender collect repayment. Net effect: collateral and debt both grow by
// the loan; the vault's own balances change only by swap slippage.
func (v *Vault) Wind(caller common.Address, id common.Hash, loanAmount *big.Int, lender FlashLender, swapper SwapExecutor, routing []byte) error {
	if !v.roles.hasRole(caller, RoleAllocator) {
		return ErrNotAllocator
	}
	if loanAmount == nil || loanAmount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if lender == nil || swapper == nil {
		return ErrNilAdapter
	}
	err := v.run(classFunding, func() error {
		if v.shutdown.active {
			return ErrShutdown
		}
		f, adapter, err := v.facilityByID(id)
		if err != nil {
			return err
		}
		if f.Collateral == (common.Address{}) || f.Debt == (common.Address{}) {
			return ErrFacilityUnbound
		}
		if err := v.beginFlash(); err != nil {
			return err
		}
		defer v.endFlash()

		return lender.FlashLoan(f.Debt, v.account, loanAmount, func() error {
			acquired, err := v.flashSwap(swapper, f.Debt, f.Collateral, loanAmount, routing)
			if err != nil {
				return err
			}
			if err := v.supplyCollateral(f, adapter, acquired); err != nil {
				return err
			}
			return v.borrow(f, adapter, loanAmount)
		})
	})
	if err != nil {
		metrics.LeverageOps.WithLabelValues("wind", "error").Inc()
		return err
	}
	metrics.LeverageOps.WithLabelValues("wind", "ok").Inc()
	v.emit(EventWound, map[string]string{"facility": id.Hex(), "loan": loanAmount.String()})
	return nil
}

// Unwind closes or reduces leverage: flash-borrow the debt token, repay the
// facility (nil repayAmount means the full balance), withdraw the freed
// collateral (nil collateralAmount means all of it), swap it back into the
// debt token and let the lender collect repayment. Permitted during shutdown.
func (v *Vault) Unwind(caller common.Address, id common.Hash, repayAmount, collateralAmount *big.Int, lender FlashLender, swapper SwapExecutor, routing []byte) error {
	if !v.roles.hasRole(caller, RoleAllocator) {
		return ErrNotAllocator
	}
	if lender == nil || swapper == nil {
		return ErrNilAdapter
	}
	if repayAmount != nil && repayAmount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if collateralAmount != nil && collateralAmount.Sign() <= 0 {
		return ErrZeroAmount
	}
	err := v.run(classFunding, func() error {
		f, adapter, err := v.facilityByID(id)
		if err != nil {
			return err
		}
		if f.Collateral == (common.Address{}) || f.Debt == (common.Address{}) {
			return ErrFacilityUnbound
		}
		loan := repayAmount
		if loan == nil {
			loan, err = adapter.DebtBalance(f.Descriptor, v.account)
			if err != nil {
				return err
			}
		}
		if loan.Sign() <= 0 {
			return ErrZeroAmount
		}
		freed := collateralAmount
		if freed == nil {
			freed, err = adapter.CollateralBalance(f.Descriptor, v.account)
			if err != nil {
				return err
			}
		}
		if freed.Sign() <= 0 {
			return ErrZeroAmount
		}
		if err := v.beginFlash(); err != nil {
			return err
		}
		defer v.endFlash()

		return lender.FlashLoan(f.Debt, v.account, loan, func() error {
			if _, err := v.repay(f, adapter, repayAmount); err != nil {
				return err
			}
			if err := v.withdrawCollateral(f, adapter, freed); err != nil {
				return err
			}
			_, err := v.flashSwap(swapper, f.Collateral, f.Debt, freed, routing)
			return err
		})
	})
	if err != nil {
		metrics.LeverageOps.WithLabelValues("unwind", "error").Inc()
		return err
	}
	metrics.LeverageOps.WithLabelValues("unwind", "ok").Inc()
	v.emit(EventUnwound, map[string]string{"facility": id.Hex()})
	return nil
}

// Shift moves a whole position from one facility to another (for a better
// rate or LLTV) without touching the market: flash-borrow the debt, repay the
// source, move the collateral across, borrow the same debt from the
// destination and let the lender collect repayment. Both facilities must
// share collateral and debt tokens; no swap happens and no slippage accrues.
func (v *Vault) Shift(caller common.Address, fromID, toID common.Hash, lender FlashLender) error {
	if !v.roles.hasRole(caller, RoleAllocator) {
		return ErrNotAllocator
	}
	if lender == nil {
		return ErrNilAdapter
	}
	err := v.run(classFunding, func() error {
		src, srcAdapter, err := v.facilityByID(fromID)
		if err != nil {
			return err
		}
		dst, dstAdapter, err := v.facilityByID(toID)
		if err != nil {
			return err
		}
		if src.Collateral == (common.Address{}) || src.Debt == (common.Address{}) ||
			dst.Collateral == (common.Address{}) || dst.Debt == (common.Address{}) {
			return ErrFacilityUnbound
		}
		if src.Collateral != dst.Collateral || src.Debt != dst.Debt {
			return ErrCollateralMismatch
		}
		debt, err := srcAdapter.DebtBalance(src.Descriptor, v.account)
		if err != nil {
			return err
		}
		collateral, err := srcAdapter.CollateralBalance(src.Descriptor, v.account)
		if err != nil {
			return err
		}
		if debt.Sign() <= 0 || collateral.Sign() <= 0 {
			return ErrZeroAmount
		}
		if err := v.beginFlash(); err != nil {
			return err
		}
		defer v.endFlash()

		return lender.FlashLoan(src.Debt, v.account, debt, func() error {
			if _, err := v.repay(src, srcAdapter, nil); err != nil {
				return err
			}
			if err := v.withdrawCollateral(src, srcAdapter, collateral); err != nil {
				return err
			}
			if err := v.supplyCollateral(dst, dstAdapter, collateral); err != nil {
				return err
			}
			return v.borrow(dst, dstAdapter, debt)
		})
	})
	if err != nil {
		metrics.LeverageOps.WithLabelValues("shift", "error").Inc()
		return err
	}
	metrics.LeverageOps.WithLabelValues("shift", "ok").Inc()
	v.emit(EventShifted, map[string]string{"from": fromID.Hex(), "to": toID.Hex()})
	return nil
}
