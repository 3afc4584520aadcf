package bank

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usd   = common.HexToAddress("0x00000000000000000000000000000000000000B0")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestMintAndTransfer(t *testing.T) {
	b := New()

	require.NoError(t, b.Mint(usd, alice, big.NewInt(100)))
	assert.Equal(t, int64(100), b.BalanceOf(usd, alice).Int64())
	assert.Equal(t, int64(100), b.TotalSupply(usd).Int64())

	require.NoError(t, b.Transfer(usd, alice, bob, big.NewInt(40)))
	assert.Equal(t, int64(60), b.BalanceOf(usd, alice).Int64())
	assert.Equal(t, int64(40), b.BalanceOf(usd, bob).Int64())
	assert.Equal(t, int64(100), b.TotalSupply(usd).Int64())
}

func TestTransferValidation(t *testing.T) {
	b := New()
	require.NoError(t, b.Mint(usd, alice, big.NewInt(10)))

	assert.ErrorIs(t, b.Transfer(usd, alice, bob, big.NewInt(11)), ErrInsufficientBalance)
	assert.ErrorIs(t, b.Transfer(usd, alice, bob, big.NewInt(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, b.Transfer(usd, alice, bob, nil), ErrInvalidAmount)
	assert.ErrorIs(t, b.Mint(usd, alice, big.NewInt(0)), ErrInvalidAmount)

	// Zero transfers are a no-op, not an error.
	assert.NoError(t, b.Transfer(usd, alice, bob, big.NewInt(0)))
	assert.Equal(t, int64(10), b.BalanceOf(usd, alice).Int64())
}

func TestSnapshotRevert(t *testing.T) {
	b := New()
	require.NoError(t, b.Mint(usd, alice, big.NewInt(100)))

	snap := b.Snapshot()
	require.NoError(t, b.Transfer(usd, alice, bob, big.NewInt(30)))
	require.NoError(t, b.Transfer(usd, bob, alice, big.NewInt(10)))
	require.NoError(t, b.Mint(usd, bob, big.NewInt(5)))

	b.RevertTo(snap)
	assert.Equal(t, int64(100), b.BalanceOf(usd, alice).Int64())
	assert.Equal(t, int64(0), b.BalanceOf(usd, bob).Int64())
	assert.Equal(t, int64(100), b.TotalSupply(usd).Int64())

	// Reverting twice is harmless.
	b.RevertTo(snap)
	assert.Equal(t, int64(100), b.BalanceOf(usd, alice).Int64())
}

func TestNestedSnapshots(t *testing.T) {
	b := New()
	require.NoError(t, b.Mint(usd, alice, big.NewInt(100)))

	outer := b.Snapshot()
	require.NoError(t, b.Transfer(usd, alice, bob, big.NewInt(10)))

	inner := b.Snapshot()
	require.NoError(t, b.Transfer(usd, alice, bob, big.NewInt(20)))

	b.RevertTo(inner)
	assert.Equal(t, int64(90), b.BalanceOf(usd, alice).Int64())

	b.RevertTo(outer)
	assert.Equal(t, int64(100), b.BalanceOf(usd, alice).Int64())
}
