package vault_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxfi/boxd/internal/vault"
)

const sigAddToken = "AddToken(address)"

func TestSubmitActionValidation(t *testing.T) {
	f := newFixture(t)
	payload := vault.EncodeAddToken(tokenA)

	_, err := f.v.SubmitAction(outsider, payload)
	assert.ErrorIs(t, err, vault.ErrNotCurator)

	_, err = f.v.SubmitAction(curator, []byte{0x01})
	assert.ErrorIs(t, err, vault.ErrPayloadTooShort)

	_, err = f.v.SubmitAction(curator, []byte{0xde, 0xad, 0xbe, 0xef})
	assert.ErrorIs(t, err, vault.ErrUnknownSelector)

	at, err := f.v.SubmitAction(curator, payload)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(testTimelock), at)

	_, err = f.v.SubmitAction(curator, payload)
	assert.ErrorIs(t, err, vault.ErrAlreadyScheduled)

	pending := f.v.PendingActions()
	require.Len(t, pending, 1)
	assert.Equal(t, sigAddToken, pending[0].Signature)
}

func TestRevokeAction(t *testing.T) {
	f := newFixture(t)
	payload := vault.EncodeAddToken(tokenA)
	src := f.quotes.Add(tokenA, par())

	assert.ErrorIs(t, f.v.RevokeAction(curator, payload), vault.ErrNotScheduled)

	_, err := f.v.SubmitAction(curator, payload)
	require.NoError(t, err)

	assert.ErrorIs(t, f.v.RevokeAction(outsider, payload), vault.ErrNotCurator)

	// Guardian may also clear a scheduled action.
	require.NoError(t, f.v.RevokeAction(guardian, payload))
	assert.Empty(t, f.v.PendingActions())

	f.clock.Advance(testTimelock + time.Second)
	assert.ErrorIs(t, f.v.AddToken(curator, tokenA, src), vault.ErrNotScheduled)
}

func TestIncreaseTimelock(t *testing.T) {
	f := newFixture(t)

	current, ok := f.v.TimelockDelay(sigAddToken)
	require.True(t, ok)
	assert.Equal(t, testTimelock, current)

	f.schedule(vault.EncodeIncreaseTimelock(sigAddToken, 2*time.Hour))
	require.NoError(t, f.v.IncreaseTimelock(curator, sigAddToken, 2*time.Hour))

	raised, _ := f.v.TimelockDelay(sigAddToken)
	assert.Equal(t, 2*time.Hour, raised)

	// The raised delay binds subsequent submissions.
	src := f.quotes.Add(tokenA, par())
	_, err := f.v.SubmitAction(curator, vault.EncodeAddToken(tokenA))
	require.NoError(t, err)
	f.clock.Advance(90 * time.Minute)
	assert.ErrorIs(t, f.v.AddToken(curator, tokenA, src), vault.ErrNotMatured)
	f.clock.Advance(40 * time.Minute)
	require.NoError(t, f.v.AddToken(curator, tokenA, src))
}

func TestTimelockMonotonicUpToCap(t *testing.T) {
	f := newFixture(t)

	f.schedule(vault.EncodeIncreaseTimelock(sigAddToken, 30*time.Minute))
	assert.ErrorIs(t, f.v.IncreaseTimelock(curator, sigAddToken, 30*time.Minute), vault.ErrTimelockDecrease)

	f.schedule(vault.EncodeIncreaseTimelock(sigAddToken, 31*24*time.Hour))
	assert.ErrorIs(t, f.v.IncreaseTimelock(curator, sigAddToken, 31*24*time.Hour), vault.ErrTimelockCap)

	f.schedule(vault.EncodeIncreaseTimelock("Bogus()", 2*time.Hour))
	assert.ErrorIs(t, f.v.IncreaseTimelock(curator, "Bogus()", 2*time.Hour), vault.ErrUnknownSelector)

	unchanged, _ := f.v.TimelockDelay(sigAddToken)
	assert.Equal(t, testTimelock, unchanged)
}

func TestSetMaxSlippageAndEpochDuration(t *testing.T) {
	f := newFixture(t)

	half := decimal.RequireFromString("0.005")
	f.schedule(vault.EncodeSetMaxSlippage(half))
	require.NoError(t, f.v.SetMaxSlippage(curator, half))
	assert.True(t, f.v.MaxSlippage().Equal(half))

	// Out-of-range values are rejected after the timelock and roll back.
	bad := decimal.RequireFromString("1.2")
	f.schedule(vault.EncodeSetMaxSlippage(bad))
	assert.ErrorIs(t, f.v.SetMaxSlippage(curator, bad), vault.ErrZeroAmount)
	assert.True(t, f.v.MaxSlippage().Equal(half))

	f.schedule(vault.EncodeSetEpochDuration(12 * time.Hour))
	require.NoError(t, f.v.SetEpochDuration(curator, 12*time.Hour))
	assert.Equal(t, 12*time.Hour, f.v.EpochDuration())

	assert.ErrorIs(t, f.v.SetEpochDuration(outsider, time.Hour), vault.ErrNotCurator)
}
