package vault

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boxfi/boxd/internal/pkg/metrics"
)

// slippageState accumulates realized value loss from adverse swap execution
// as a ratio of NAV within a rolling epoch. Bounding the cumulative ratio, not
// just each trade, stops an operator from bleeding value through many small,
// individually tolerable trades.
type slippageState struct {
	accumulated decimal.Decimal
	epochStart  time.Time
}

func (s slippageState) clone() slippageState { return s }

// Accumulated returns the loss ratio charged so far in the current epoch.
func (v *Vault) AccumulatedSlippage() decimal.Decimal { return v.slippage.accumulated }

// SlippageEpochStart returns the start of the current slippage epoch.
func (v *Vault) SlippageEpochStart() time.Time { return v.slippage.epochStart }

// chargeSlippage converts a base-currency loss into a NAV ratio and adds it
// to the epoch accumulator, failing the enclosing operation once the running
// total reaches limit. The denominator comes from navForRatios, so a flash
// composition in flight charges against the cached pre-flash NAV.
func (v *Vault) chargeSlippage(loss *big.Int, limit decimal.Decimal) error {
	now := v.now()
	if now.After(v.slippage.epochStart.Add(v.epochDuration)) {
		v.slippage.accumulated = decimal.Zero
		v.slippage.epochStart = now
	}
	if loss == nil || loss.Sign() <= 0 {
		return nil
	}
	nav, err := v.navForRatios()
	if err != nil {
		return err
	}
	if nav.Sign() <= 0 {
		return ErrZeroValue
	}
	ratio := decimal.NewFromBigInt(loss, 0).Div(decimal.NewFromBigInt(nav, 0))
	v.slippage.accumulated = v.slippage.accumulated.Add(ratio)
	if v.slippage.accumulated.GreaterThanOrEqual(limit) {
		metrics.SlippageRejects.WithLabelValues("budget_exceeded").Inc()
		return ErrSlippageBudget
	}
	return nil
}
