package vault_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxfi/boxd/internal/adapters"
	"github.com/boxfi/boxd/internal/vault"
)

func TestFundingAdapterRegistration(t *testing.T) {
	f := newFixture(t)
	a := f.registerFunding("0.8")

	// Duplicate registration after a fresh timelock round.
	f.schedule(vault.EncodeAddFundingAdapter(a.Name()))
	assert.ErrorIs(t, f.v.AddFundingAdapter(curator, a), vault.ErrAdapterRegistered)

	f.schedule(vault.EncodeRemoveFundingAdapter("ghost"))
	assert.ErrorIs(t, f.v.RemoveFundingAdapter(curator, "ghost"), vault.ErrUnknownAdapter)

	f.schedule(vault.EncodeRemoveFundingAdapter(a.Name()))
	require.NoError(t, f.v.RemoveFundingAdapter(curator, a.Name()))
}

func TestFacilityLifecycle(t *testing.T) {
	f := newFixture(t)
	f.listToken(tokenA, par())
	a := f.registerFunding("0.8")
	descriptor := []byte("market-1")

	id := f.addFacility(a.Name(), descriptor, tokenA, baseToken)
	assert.Equal(t, vault.FacilityID(a.Name(), descriptor), id)

	// Same adapter and descriptor resolve to the same identity.
	f.schedule(vault.EncodeAddFacility(a.Name(), descriptor))
	_, err := f.v.AddFacility(curator, a.Name(), descriptor)
	assert.ErrorIs(t, err, vault.ErrFacilityExists)

	// The adapter cannot be removed while a facility references it.
	f.schedule(vault.EncodeRemoveFundingAdapter(a.Name()))
	assert.ErrorIs(t, f.v.RemoveFundingAdapter(curator, a.Name()), vault.ErrAdapterInUse)

	// Nor can the facility be removed while tokens are bound.
	f.schedule(vault.EncodeRemoveFacility(id))
	assert.ErrorIs(t, f.v.RemoveFacility(curator, id), vault.ErrFacilityInUse)

	f.schedule(vault.EncodeUnbindCollateralToken(id))
	require.NoError(t, f.v.UnbindCollateralToken(curator, id))
	f.schedule(vault.EncodeUnbindDebtToken(id))
	require.NoError(t, f.v.UnbindDebtToken(curator, id))

	f.schedule(vault.EncodeRemoveFacility(id))
	require.NoError(t, f.v.RemoveFacility(curator, id))
	assert.Empty(t, f.v.Facilities())
}

func TestBindValidation(t *testing.T) {
	f := newFixture(t)
	f.listToken(tokenA, par())
	a := f.registerFunding("0.8")
	id := f.addFacility(a.Name(), []byte("market-1"), tokenA, baseToken)

	// Already bound.
	f.schedule(vault.EncodeBindCollateralToken(id, tokenA))
	assert.ErrorIs(t, f.v.BindCollateralToken(curator, id, tokenA), vault.ErrCollateralBound)

	// Unlisted token refused on a fresh facility.
	id2 := f.addFacility(a.Name(), []byte("market-2"), common.Address{}, common.Address{})
	f.schedule(vault.EncodeBindCollateralToken(id2, tokenB))
	assert.ErrorIs(t, f.v.BindCollateralToken(curator, id2, tokenB), vault.ErrTokenNotListed)

	// Position operations on an unbound facility.
	assert.ErrorIs(t, f.v.SupplyCollateral(allocator, id2, bi(100)), vault.ErrFacilityUnbound)
	assert.ErrorIs(t, f.v.Borrow(allocator, id2, bi(100)), vault.ErrFacilityUnbound)
}

func TestSupplyBorrowRepayWithdraw(t *testing.T) {
	f := newFixture(t)
	f.listToken(tokenA, par())
	a := f.registerFunding("0.8")
	id := f.addFacility(a.Name(), []byte("market-1"), tokenA, baseToken)

	mint(t, f.bank, tokenA, vaultAcct, 50_000)

	require.NoError(t, f.v.SupplyCollateral(allocator, id, bi(20_000)))
	assert.Equal(t, int64(30_000), f.balance(tokenA).Int64())

	require.NoError(t, f.v.Borrow(allocator, id, bi(10_000)))
	assert.Equal(t, int64(10_000), f.balance(baseToken).Int64())

	coll, debt, ltv, err := f.v.FacilityPosition(id)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), coll.Int64())
	assert.Equal(t, int64(10_000), debt.Int64())
	assert.Equal(t, "0.5", ltv.String())

	// A borrow that would push LTV past the facility limit fails atomically.
	err = f.v.Borrow(allocator, id, bi(7_000))
	assert.ErrorIs(t, err, adapters.ErrLLTVExceeded)
	assert.Equal(t, int64(10_000), f.balance(baseToken).Int64())

	repaid, err := f.v.Repay(allocator, id, bi(4_000))
	require.NoError(t, err)
	assert.Equal(t, int64(4_000), repaid.Int64())

	// A nil amount repays the full outstanding debt.
	repaid, err = f.v.Repay(allocator, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6_000), repaid.Int64())

	_, debt, _, err = f.v.FacilityPosition(id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), debt.Int64())

	require.NoError(t, f.v.WithdrawCollateral(allocator, id, bi(20_000)))
	assert.Equal(t, int64(50_000), f.balance(tokenA).Int64())
}

func TestWithdrawCollateralHealthCheck(t *testing.T) {
	f := newFixture(t)
	f.listToken(tokenA, par())
	a := f.registerFunding("0.8")
	id := f.addFacility(a.Name(), []byte("market-1"), tokenA, baseToken)

	mint(t, f.bank, tokenA, vaultAcct, 10_000)
	require.NoError(t, f.v.SupplyCollateral(allocator, id, bi(10_000)))
	require.NoError(t, f.v.Borrow(allocator, id, bi(8_000)))

	err := f.v.WithdrawCollateral(allocator, id, bi(1))
	assert.ErrorIs(t, err, adapters.ErrLLTVExceeded)

	coll, _, _, err := f.v.FacilityPosition(id)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), coll.Int64())
}

func TestTotalValueIncludesFacilityPositions(t *testing.T) {
	f := newFixture(t)
	f.listToken(tokenA, par())
	a := f.registerFunding("0.8")
	id := f.addFacility(a.Name(), []byte("market-1"), tokenA, baseToken)

	f.deposit(50_000)
	mint(t, f.bank, tokenA, vaultAcct, 20_000)

	before, err := f.v.TotalValue()
	require.NoError(t, err)
	assert.Equal(t, int64(70_000), before.Int64())

	// Escrowing collateral and drawing debt are NAV-neutral: the position
	// nets out against the balance changes.
	require.NoError(t, f.v.SupplyCollateral(allocator, id, bi(20_000)))
	require.NoError(t, f.v.Borrow(allocator, id, bi(10_000)))

	after, err := f.v.TotalValue()
	require.NoError(t, err)
	assert.Equal(t, int64(70_000), after.Int64())
}

func TestFundingValidation(t *testing.T) {
	f := newFixture(t)
	f.listToken(tokenA, par())
	a := f.registerFunding("0.8")
	id := f.addFacility(a.Name(), []byte("market-1"), tokenA, baseToken)

	unknown := common.HexToHash("0x01")
	assert.ErrorIs(t, f.v.SupplyCollateral(allocator, unknown, bi(100)), vault.ErrFacilityNotFound)

	assert.ErrorIs(t, f.v.SupplyCollateral(outsider, id, bi(100)), vault.ErrNotAllocator)
	assert.ErrorIs(t, f.v.Borrow(allocator, id, bi(0)), vault.ErrZeroAmount)
	_, err := f.v.Repay(allocator, id, bi(0))
	assert.ErrorIs(t, err, vault.ErrZeroAmount)
}
