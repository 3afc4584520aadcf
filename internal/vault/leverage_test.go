package vault_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxfi/boxd/internal/adapters"
	"github.com/boxfi/boxd/internal/vault"
)

// leverageFixture is a vault with one facility (tokenA collateral, base debt)
// holding 20,000 tokenA of collateral and no debt.
func leverageFixture(t *testing.T) (*fixture, common.Hash, *adapters.BankFlashLender) {
	t.Helper()
	f := newFixture(t)
	f.listToken(tokenA, par())
	a := f.registerFunding("0.8")
	id := f.addFacility(a.Name(), []byte("market-1"), tokenA, baseToken)

	f.deposit(50_000)
	mint(t, f.bank, tokenA, vaultAcct, 20_000)
	require.NoError(t, f.v.SupplyCollateral(allocator, id, bi(20_000)))

	lender := adapters.NewBankFlashLender("paper-flash", f.bank, flashAcct)
	return f, id, lender
}

func (f *fixture) position(id common.Hash) (coll, debt int64) {
	f.t.Helper()
	c, d, _, err := f.v.FacilityPosition(id)
	require.NoError(f.t, err)
	return c.Int64(), d.Int64()
}

func TestWind(t *testing.T) {
	f, id, lender := leverageFixture(t)

	before, err := f.v.TotalValue()
	require.NoError(t, err)
	baseBefore := f.balance(baseToken).Int64()
	flashBefore := f.bank.BalanceOf(baseToken, flashAcct).Int64()

	require.NoError(t, f.v.Wind(allocator, id, bi(10_000), lender, f.swapper(0), nil))

	// Collateral and debt both grew by the loan; the vault's own balances
	// and the lender are untouched by a fill at the oracle price.
	coll, debt := f.position(id)
	assert.Equal(t, int64(30_000), coll)
	assert.Equal(t, int64(10_000), debt)
	assert.Equal(t, baseBefore, f.balance(baseToken).Int64())
	assert.Equal(t, flashBefore, f.bank.BalanceOf(baseToken, flashAcct).Int64())

	after, err := f.v.TotalValue()
	require.NoError(t, err)
	assert.Equal(t, before.Int64(), after.Int64())
}

func TestWindHealthFailureRollsBack(t *testing.T) {
	f, id, lender := leverageFixture(t)

	// Withdraw the seed collateral so the wound position would be at 100% LTV.
	require.NoError(t, f.v.WithdrawCollateral(allocator, id, bi(20_000)))

	baseBefore := f.balance(baseToken).Int64()
	tokenBefore := f.balance(tokenA).Int64()
	flashBefore := f.bank.BalanceOf(baseToken, flashAcct).Int64()

	err := f.v.Wind(allocator, id, bi(10_000), lender, f.swapper(0), nil)
	assert.ErrorIs(t, err, adapters.ErrLLTVExceeded)

	coll, debt := f.position(id)
	assert.Equal(t, int64(0), coll)
	assert.Equal(t, int64(0), debt)
	assert.Equal(t, baseBefore, f.balance(baseToken).Int64())
	assert.Equal(t, tokenBefore, f.balance(tokenA).Int64())
	assert.Equal(t, flashBefore, f.bank.BalanceOf(baseToken, flashAcct).Int64())
}

func TestWindShortFillRejected(t *testing.T) {
	f, id, lender := leverageFixture(t)

	// A 2% haircut lands under the 1% tolerance floor.
	err := f.v.Wind(allocator, id, bi(10_000), lender, f.swapper(200), nil)
	assert.ErrorIs(t, err, vault.ErrAllocationShort)

	coll, debt := f.position(id)
	assert.Equal(t, int64(20_000), coll)
	assert.Equal(t, int64(0), debt)
}

func TestWindValidation(t *testing.T) {
	f, id, lender := leverageFixture(t)

	assert.ErrorIs(t, f.v.Wind(outsider, id, bi(1_000), lender, f.swapper(0), nil), vault.ErrNotAllocator)
	assert.ErrorIs(t, f.v.Wind(allocator, id, bi(0), lender, f.swapper(0), nil), vault.ErrZeroAmount)
	assert.ErrorIs(t, f.v.Wind(allocator, id, bi(1_000), nil, f.swapper(0), nil), vault.ErrNilAdapter)

	require.NoError(t, f.v.Shutdown(guardian))
	assert.ErrorIs(t, f.v.Wind(allocator, id, bi(1_000), lender, f.swapper(0), nil), vault.ErrShutdown)
}

func TestUnwindFull(t *testing.T) {
	f, id, lender := leverageFixture(t)
	require.NoError(t, f.v.Wind(allocator, id, bi(10_000), lender, f.swapper(0), nil))

	before, err := f.v.TotalValue()
	require.NoError(t, err)
	baseBefore := f.balance(baseToken).Int64()

	// Nil amounts mean full repayment and full collateral release. Works
	// during shutdown: unwinding reduces risk.
	require.NoError(t, f.v.Shutdown(guardian))
	require.NoError(t, f.v.Unwind(allocator, id, nil, nil, lender, f.swapper(0), nil))

	coll, debt := f.position(id)
	assert.Equal(t, int64(0), coll)
	assert.Equal(t, int64(0), debt)

	// The freed equity (30,000 collateral less the 10,000 debt) came home.
	assert.Equal(t, baseBefore+20_000, f.balance(baseToken).Int64())

	after, err := f.v.TotalValue()
	require.NoError(t, err)
	assert.Equal(t, before.Int64(), after.Int64())
}

func TestUnwindPartial(t *testing.T) {
	f, id, lender := leverageFixture(t)
	require.NoError(t, f.v.Wind(allocator, id, bi(10_000), lender, f.swapper(0), nil))

	require.NoError(t, f.v.Unwind(allocator, id, bi(5_000), bi(5_000), lender, f.swapper(0), nil))

	coll, debt := f.position(id)
	assert.Equal(t, int64(25_000), coll)
	assert.Equal(t, int64(5_000), debt)
}

func TestShift(t *testing.T) {
	f, id, lender := leverageFixture(t)
	a := "paper-funding"
	dst := f.addFacility(a, []byte("market-2"), tokenA, baseToken)

	require.NoError(t, f.v.Wind(allocator, id, bi(10_000), lender, f.swapper(0), nil))

	require.NoError(t, f.v.Shift(allocator, id, dst, lender))

	srcColl, srcDebt := f.position(id)
	assert.Equal(t, int64(0), srcColl)
	assert.Equal(t, int64(0), srcDebt)

	dstColl, dstDebt := f.position(dst)
	assert.Equal(t, int64(30_000), dstColl)
	assert.Equal(t, int64(10_000), dstDebt)

	// An empty source position cannot be shifted.
	assert.ErrorIs(t, f.v.Shift(allocator, id, dst, lender), vault.ErrZeroAmount)
}

func TestShiftTokenMismatch(t *testing.T) {
	f, id, lender := leverageFixture(t)
	dst := f.addFacility("paper-funding", []byte("market-base"), baseToken, baseToken)

	require.NoError(t, f.v.Wind(allocator, id, bi(10_000), lender, f.swapper(0), nil))
	assert.ErrorIs(t, f.v.Shift(allocator, id, dst, lender), vault.ErrCollateralMismatch)
}

func TestValuationRefusedDuringFlash(t *testing.T) {
	f, id, lender := leverageFixture(t)

	var inFlight error
	probe := &probeSwapper{SwapExecutor: f.swapper(0), probe: func() {
		_, inFlight = f.v.TotalValue()
	}}
	require.NoError(t, f.v.Wind(allocator, id, bi(10_000), lender, probe, nil))

	assert.ErrorIs(t, inFlight, vault.ErrValuationInFlight)

	// Once the composition completes, valuation answers again.
	_, err := f.v.TotalValue()
	assert.NoError(t, err)
}

func TestNestedFlashCompositionRejected(t *testing.T) {
	f, id, lender := leverageFixture(t)

	// A swap executor that tries to open a second composition mid-flight.
	// Admitting it would let the inner exit clear the outer cached NAV.
	var nestedErr, valErr error
	probe := &probeSwapper{SwapExecutor: f.swapper(0), probe: func() {
		nestedErr = f.v.Wind(allocator, id, bi(1_000), lender, f.swapper(0), nil)
		_, valErr = f.v.TotalValue()
	}}
	require.NoError(t, f.v.Wind(allocator, id, bi(10_000), lender, probe, nil))

	assert.ErrorIs(t, nestedErr, vault.ErrFlashInFlight)
	assert.ErrorIs(t, valErr, vault.ErrValuationInFlight)

	// The outer composition landed untouched by the rejected attempt.
	coll, debt := f.position(id)
	assert.Equal(t, int64(30_000), coll)
	assert.Equal(t, int64(10_000), debt)
}

func TestFlashLenderFailureRollsBack(t *testing.T) {
	f, id, _ := leverageFixture(t)

	baseBefore := f.balance(baseToken).Int64()
	lenderErr := errors.New("lender rejected")

	err := f.v.Wind(allocator, id, bi(10_000), failingLender{err: lenderErr}, f.swapper(0), nil)
	assert.ErrorIs(t, err, lenderErr)

	coll, debt := f.position(id)
	assert.Equal(t, int64(20_000), coll)
	assert.Equal(t, int64(0), debt)
	assert.Equal(t, baseBefore, f.balance(baseToken).Int64())
}

// probeSwapper runs a callback before delegating the fill.
type probeSwapper struct {
	vault.SwapExecutor
	probe func()
}

func (p *probeSwapper) Sell(input, output common.Address, amountIn *big.Int, routing []byte) error {
	p.probe()
	return p.SwapExecutor.Sell(input, output, amountIn, routing)
}

type failingLender struct{ err error }

func (l failingLender) FlashLoan(token, borrower common.Address, amount *big.Int, fn func() error) error {
	return l.err
}
