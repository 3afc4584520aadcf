package vault_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxfi/boxd/internal/adapters"
	"github.com/boxfi/boxd/internal/bank"
	"github.com/boxfi/boxd/internal/vault"
)

var (
	baseToken = common.HexToAddress("0x00000000000000000000000000000000000000B0")
	tokenA    = common.HexToAddress("0x00000000000000000000000000000000000000E1")
	tokenB    = common.HexToAddress("0x00000000000000000000000000000000000000E2")

	vaultAcct = common.HexToAddress("0x0000000000000000000000000000000000000010")
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000011")
	curator   = common.HexToAddress("0x0000000000000000000000000000000000000012")
	guardian  = common.HexToAddress("0x0000000000000000000000000000000000000013")
	allocator = common.HexToAddress("0x0000000000000000000000000000000000000014")
	depositor = common.HexToAddress("0x0000000000000000000000000000000000000015")
	feeder    = common.HexToAddress("0x0000000000000000000000000000000000000016")
	outsider  = common.HexToAddress("0x0000000000000000000000000000000000000017")

	swapAcct  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	flashAcct = common.HexToAddress("0x00000000000000000000000000000000000000A2")
	poolAcct  = common.HexToAddress("0x00000000000000000000000000000000000000A3")
)

const testTimelock = time.Hour

func bi(n int64) *big.Int { return big.NewInt(n) }

func par() *big.Int { return new(big.Int).Set(vault.PricePrecision) }

// clock is a controllable engine clock.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	t      *testing.T
	bank   *bank.Bank
	quotes *adapters.QuoteTable
	clock  *clock
	v      *vault.Vault
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	b := bank.New()
	quotes := adapters.NewQuoteTable()
	quotes.Add(baseToken, par())

	v, err := vault.New(vault.Params{
		Name:                     "Box Test Vault",
		Symbol:                   "BOXT",
		BaseToken:                baseToken,
		Account:                  vaultAcct,
		Owner:                    owner,
		Curator:                  curator,
		Guardian:                 guardian,
		MaxSlippage:              decimal.RequireFromString("0.01"),
		EpochDuration:            24 * time.Hour,
		ShutdownWarmup:           24 * time.Hour,
		ShutdownSlippageDuration: 7 * 24 * time.Hour,
		DefaultTimelock:          testTimelock,
		TimelockCap:              30 * 24 * time.Hour,
	}, b, nil)
	require.NoError(t, err)

	c := &clock{now: time.Now()}
	v.SetClock(c.Now)

	require.NoError(t, v.GrantRole(owner, vault.RoleAllocator, allocator))

	mint(t, b, baseToken, depositor, 10_000_000)
	mint(t, b, baseToken, feeder, 1_000_000)
	for _, token := range []common.Address{baseToken, tokenA, tokenB} {
		mint(t, b, token, swapAcct, 100_000_000)
	}
	mint(t, b, baseToken, flashAcct, 1_000_000)
	mint(t, b, baseToken, poolAcct, 1_000_000)

	return &fixture{t: t, bank: b, quotes: quotes, clock: c, v: v}
}

func mint(t *testing.T, b *bank.Bank, token, account common.Address, amount int64) {
	t.Helper()
	require.NoError(t, b.Mint(token, account, bi(amount)))
}

// schedule submits a payload as curator and waits out the default timelock.
func (f *fixture) schedule(payload []byte) {
	f.t.Helper()
	_, err := f.v.SubmitAction(curator, payload)
	require.NoError(f.t, err)
	f.clock.Advance(testTimelock + time.Second)
}

func (f *fixture) listToken(token common.Address, price *big.Int) {
	f.t.Helper()
	src := f.quotes.Add(token, price)
	f.schedule(vault.EncodeAddToken(token))
	require.NoError(f.t, f.v.AddToken(curator, token, src))
}

func (f *fixture) swapper(haircutBps int64) *adapters.BankSwapExecutor {
	e := adapters.NewBankSwapExecutor("paper-swap", f.bank, swapAcct, vaultAcct, f.quotes.Quote)
	e.HaircutBps = haircutBps
	return e
}

func (f *fixture) deposit(amount int64) *big.Int {
	f.t.Helper()
	minted, err := f.v.Deposit(depositor, depositor, bi(amount))
	require.NoError(f.t, err)
	return minted
}

func (f *fixture) balance(token common.Address) *big.Int {
	return f.bank.BalanceOf(token, vaultAcct)
}

func (f *fixture) registerFunding(lltv string) *adapters.PaperFundingAdapter {
	f.t.Helper()
	a := adapters.NewPaperFundingAdapter("paper-funding", f.bank, poolAcct, f.quotes.Quote, decimal.RequireFromString(lltv))
	f.schedule(vault.EncodeAddFundingAdapter(a.Name()))
	require.NoError(f.t, f.v.AddFundingAdapter(curator, a))
	return a
}

func (f *fixture) addFacility(adapterName string, descriptor []byte, collateral, debt common.Address) common.Hash {
	f.t.Helper()
	f.schedule(vault.EncodeAddFacility(adapterName, descriptor))
	id, err := f.v.AddFacility(curator, adapterName, descriptor)
	require.NoError(f.t, err)
	if collateral != (common.Address{}) {
		f.schedule(vault.EncodeBindCollateralToken(id, collateral))
		require.NoError(f.t, f.v.BindCollateralToken(curator, id, collateral))
	}
	if debt != (common.Address{}) {
		f.schedule(vault.EncodeBindDebtToken(id, debt))
		require.NoError(f.t, f.v.BindDebtToken(curator, id, debt))
	}
	return id
}

// scriptedSwapper fills with an exact, test-chosen output so slippage edges
// can be hit precisely. A non-nil spend overrides the amount pulled from the
// client; hook runs before any transfer.
type scriptedSwapper struct {
	bank      *bank.Bank
	client    common.Address
	inventory common.Address
	fillOut   *big.Int
	spend     *big.Int
	hook      func() error
}

func (s *scriptedSwapper) Name() string { return "scripted" }

func (s *scriptedSwapper) Sell(input, output common.Address, amountIn *big.Int, routing []byte) error {
	if s.hook != nil {
		if err := s.hook(); err != nil {
			return err
		}
	}
	spend := amountIn
	if s.spend != nil {
		spend = s.spend
	}
	if err := s.bank.Transfer(input, s.client, s.inventory, spend); err != nil {
		return err
	}
	return s.bank.Transfer(output, s.inventory, s.client, s.fillOut)
}

func (f *fixture) scripted(fillOut int64) *scriptedSwapper {
	return &scriptedSwapper{bank: f.bank, client: vaultAcct, inventory: swapAcct, fillOut: bi(fillOut)}
}

func TestNewValidation(t *testing.T) {
	b := bank.New()

	_, err := vault.New(vault.Params{
		BaseToken: baseToken, Account: vaultAcct,
		Owner: owner, Curator: common.Address{}, Guardian: guardian,
	}, b, nil)
	assert.ErrorIs(t, err, vault.ErrZeroAddress)

	_, err = vault.New(vault.Params{
		BaseToken: baseToken, Account: vaultAcct,
		Owner: owner, Curator: curator, Guardian: guardian,
		MaxSlippage: decimal.RequireFromString("1.5"),
	}, b, nil)
	assert.Error(t, err)

	_, err = vault.New(vault.Params{
		BaseToken: baseToken, Account: vaultAcct,
		Owner: owner, Curator: curator, Guardian: guardian,
	}, nil, nil)
	assert.ErrorIs(t, err, vault.ErrNilAdapter)
}

func TestIdentityChanges(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.v.SetOwner(outsider, outsider), vault.ErrNotOwner)
	assert.ErrorIs(t, f.v.SetCurator(owner, common.Address{}), vault.ErrZeroAddress)

	next := common.HexToAddress("0x0000000000000000000000000000000000000099")
	require.NoError(t, f.v.SetGuardian(owner, next))
	assert.Equal(t, next, f.v.Guardian())

	// Only allocator and feeder are grantable sets.
	assert.Error(t, f.v.GrantRole(owner, vault.RoleCurator, outsider))
	require.NoError(t, f.v.GrantRole(owner, vault.RoleFeeder, feeder))
	assert.True(t, f.v.HasRole(feeder, vault.RoleFeeder))

	require.NoError(t, f.v.RevokeRole(owner, vault.RoleAllocator, allocator))
	assert.False(t, f.v.HasRole(allocator, vault.RoleAllocator))
}

func TestAddTokenTimelocked(t *testing.T) {
	f := newFixture(t)
	src := f.quotes.Add(tokenA, par())

	// Never scheduled.
	assert.ErrorIs(t, f.v.AddToken(curator, tokenA, src), vault.ErrNotScheduled)

	// Scheduled but not matured.
	_, err := f.v.SubmitAction(curator, vault.EncodeAddToken(tokenA))
	require.NoError(t, err)
	assert.ErrorIs(t, f.v.AddToken(curator, tokenA, src), vault.ErrNotMatured)

	f.clock.Advance(testTimelock + time.Second)
	require.NoError(t, f.v.AddToken(curator, tokenA, src))
	assert.Equal(t, []common.Address{tokenA}, f.v.Tokens())

	// Execution consumed the action; a replay needs a fresh submit.
	assert.ErrorIs(t, f.v.AddToken(curator, tokenA, src), vault.ErrNotScheduled)

	// Re-listing an already listed token fails after the timelock, and the
	// consumed action is restored by the rollback.
	f.schedule(vault.EncodeAddToken(tokenA))
	assert.ErrorIs(t, f.v.AddToken(curator, tokenA, src), vault.ErrTokenListed)
	_, err = f.v.SubmitAction(curator, vault.EncodeAddToken(tokenA))
	assert.ErrorIs(t, err, vault.ErrAlreadyScheduled)
}

func TestRemoveToken(t *testing.T) {
	f := newFixture(t)
	f.listToken(tokenA, par())
	f.listToken(tokenB, par())

	// Held balance blocks delisting.
	mint(t, f.bank, tokenA, vaultAcct, 5)
	f.schedule(vault.EncodeRemoveToken(tokenA))
	assert.ErrorIs(t, f.v.RemoveToken(curator, tokenA), vault.ErrTokenInUse)

	f.schedule(vault.EncodeRemoveToken(tokenB))
	require.NoError(t, f.v.RemoveToken(curator, tokenB))
	assert.Equal(t, []common.Address{tokenA}, f.v.Tokens())

	// Not listed anymore.
	f.schedule(vault.EncodeRemoveToken(tokenB))
	assert.ErrorIs(t, f.v.RemoveToken(curator, tokenB), vault.ErrTokenNotListed)
}
