package vault

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PricePrecision is the fixed-point scale for oracle prices: a price of
// 1e18 means one unit of the quoted token is worth one unit of base currency.
var PricePrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// PriceSource quotes one token in base-currency terms, scaled by PricePrecision.
type PriceSource interface {
	Price() (*big.Int, error)
}

// SwapExecutor exchanges inputToken held by the vault account for outputToken.
// The vault never trusts amounts reported by the executor; every effect is
// re-derived from observed balance deltas.
type SwapExecutor interface {
	Name() string
	Sell(input, output common.Address, amountIn *big.Int, routing []byte) error
}

// FundingAdapter integrates one external lending protocol. A facility is
// identified inside the adapter by an opaque descriptor (market id, irm, lltv,
// whatever the protocol needs).
type FundingAdapter interface {
	Name() string
	SupplyCollateral(descriptor []byte, account, token common.Address, amount *big.Int) error
	WithdrawCollateral(descriptor []byte, account, token common.Address, amount *big.Int) error
	Borrow(descriptor []byte, account, token common.Address, amount *big.Int) error
	// Repay returns the amount actually repaid; a nil amount means "repay the
	// full outstanding debt".
	Repay(descriptor []byte, account, token common.Address, amount *big.Int) (*big.Int, error)
	CollateralBalance(descriptor []byte, account common.Address) (*big.Int, error)
	DebtBalance(descriptor []byte, account common.Address) (*big.Int, error)
	LoanToValue(descriptor []byte, account common.Address) (decimal.Decimal, error)
}

// FlashLender supplies transient liquidity for wind/unwind/shift. The lender
// transfers amount of token to borrower, runs fn, and must be made whole
// before FlashLoan returns; otherwise the whole invocation fails.
type FlashLender interface {
	FlashLoan(token, borrower common.Address, amount *big.Int, fn func() error) error
}

// Ledger is the vault's view of token balances. Transfer moves base units
// between accounts; Snapshot/RevertTo give the all-or-nothing semantics every
// vault operation relies on.
type Ledger interface {
	BalanceOf(token, account common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) error
	Snapshot() int
	RevertTo(snap int)
}

// Journal is implemented by collaborators that keep mutable state outside the
// ledger (e.g. a funding adapter's position book) and need to participate in
// operation rollback.
type Journal interface {
	Snapshot() int
	RevertTo(snap int)
}

// Event is a typed engine notification fanned out to the audit journal and
// the websocket stream.
type Event struct {
	Type       string            `json:"type"`
	At         time.Time         `json:"at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Emitter receives engine events. Implementations must not call back into the
// vault.
type Emitter interface {
	Emit(evt Event)
}
