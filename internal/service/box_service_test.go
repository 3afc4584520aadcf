package service

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
	"github.com/boxfi/boxd/internal/model"
	"github.com/boxfi/boxd/internal/vault"
)

var (
	testBase     = common.HexToAddress("0x00000000000000000000000000000000000000B0")
	testToken    = common.HexToAddress("0x00000000000000000000000000000000000000E1")
	testVaultAcc = common.HexToAddress("0x0000000000000000000000000000000000000010")
	testOwner    = common.HexToAddress("0x0000000000000000000000000000000000000011")
	testCurator  = common.HexToAddress("0x0000000000000000000000000000000000000012")
	testGuardian = common.HexToAddress("0x0000000000000000000000000000000000000013")
	testDeposit  = common.HexToAddress("0x0000000000000000000000000000000000000015")
	testPool     = common.HexToAddress("0x00000000000000000000000000000000000000A3")
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*BoxService, *bank.Bank, *testClock) {
	t.Helper()
	b := bank.New()
	quotes := adapters.NewQuoteTable()
	quotes.Add(testBase, new(big.Int).Set(vault.PricePrecision))
	quotes.Add(testToken, new(big.Int).Set(vault.PricePrecision))

	v, err := vault.New(vault.Params{
		Name:            "Box",
		Symbol:          "BOX",
		BaseToken:       testBase,
		Account:         testVaultAcc,
		Owner:           testOwner,
		Curator:         testCurator,
		Guardian:        testGuardian,
		MaxSlippage:     decimal.RequireFromString("0.01"),
		EpochDuration:   24 * time.Hour,
		DefaultTimelock: time.Hour,
		TimelockCap:     30 * 24 * time.Hour,
	}, b, nil)
	require.NoError(t, err)

	c := &testClock{now: time.Now()}
	v.SetClock(c.Now)

	require.NoError(t, b.Mint(testBase, testDeposit, big.NewInt(1_000_000)))
	return NewBoxService(v, b, quotes), b, c
}

func TestActionSubmitExecuteRoundTrip(t *testing.T) {
	svc, _, clock := newTestService(t)
	req := model.ActionRequest{
		Action: ActionAddToken,
		Params: map[string]string{"token": testToken.Hex()},
	}

	resp, err := svc.SubmitAction(testCurator, req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Key)
	assert.Len(t, svc.PendingActions(), 1)

	// The same encoding is replayed at execution, so identity matches.
	_, err = svc.ExecuteAction(testCurator, req)
	assert.ErrorIs(t, err, vault.ErrNotMatured)

	clock.Advance(time.Hour + time.Second)
	_, err = svc.ExecuteAction(testCurator, req)
	require.NoError(t, err)
	assert.Empty(t, svc.PendingActions())

	status := svc.Status()
	require.Len(t, status.Tokens, 1)
	assert.Equal(t, testToken.Hex(), status.Tokens[0].Token)
}

func TestActionRevoke(t *testing.T) {
	svc, _, clock := newTestService(t)
	req := model.ActionRequest{
		Action: ActionSetEpochDuration,
		Params: map[string]string{"duration": "12h"},
	}

	_, err := svc.SubmitAction(testCurator, req)
	require.NoError(t, err)
	require.NoError(t, svc.RevokeAction(testCurator, req))

	clock.Advance(2 * time.Hour)
	_, err = svc.ExecuteAction(testCurator, req)
	assert.ErrorIs(t, err, vault.ErrNotScheduled)
}

func TestActionDecodeErrors(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SubmitAction(testCurator, model.ActionRequest{Action: "frobnicate"})
	assert.Error(t, err)

	_, err = svc.SubmitAction(testCurator, model.ActionRequest{
		Action: ActionSetMaxSlippage,
		Params: map[string]string{"value": "not-a-number"},
	})
	assert.Error(t, err)

	_, err = svc.SubmitAction(testCurator, model.ActionRequest{
		Action: ActionAddToken,
		Params: map[string]string{"token": "0xzz"},
	})
	assert.Error(t, err)
}

func TestAddFacilityActionReturnsID(t *testing.T) {
	svc, _, clock := newTestService(t)

	paper := adapters.NewPaperFundingAdapter("paper-funding", bank.New(), testPool, func(common.Address) (*big.Int, error) {
		return new(big.Int).Set(vault.PricePrecision), nil
	}, decimal.RequireFromString("0.8"))
	svc.RegisterFundingAdapter(paper)

	adapterReq := model.ActionRequest{
		Action: ActionAddFundingAdapter,
		Params: map[string]string{"name": "paper-funding"},
	}
	_, err := svc.SubmitAction(testCurator, adapterReq)
	require.NoError(t, err)
	clock.Advance(time.Hour + time.Second)
	_, err = svc.ExecuteAction(testCurator, adapterReq)
	require.NoError(t, err)

	facilityReq := model.ActionRequest{
		Action: ActionAddFacility,
		Params: map[string]string{"adapter": "paper-funding", "descriptor": "0xdeadbeef"},
	}
	_, err = svc.SubmitAction(testCurator, facilityReq)
	require.NoError(t, err)
	clock.Advance(time.Hour + time.Second)

	result, err := svc.ExecuteAction(testCurator, facilityReq)
	require.NoError(t, err)
	created, ok := result.(model.FacilityCreateResponse)
	require.True(t, ok)
	assert.Equal(t, vault.FacilityID("paper-funding", []byte{0xde, 0xad, 0xbe, 0xef}).Hex(), created.ID)
}

func TestDepositAndStatus(t *testing.T) {
	svc, _, _ := newTestService(t)

	minted, err := svc.Deposit(testDeposit, testDeposit, big.NewInt(10_000))
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), minted.Int64())
	assert.Equal(t, int64(10_000), svc.ShareBalance(testDeposit).Int64())

	status := svc.Status()
	assert.Equal(t, "10000", status.TotalValue)
	assert.Equal(t, "10000", status.TotalShares)
	assert.False(t, status.Shutdown)
}

func TestSetPriceCuratorOnly(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.SetPrice(testDeposit, testToken, big.NewInt(1))
	assert.ErrorIs(t, err, vault.ErrNotCurator)

	require.NoError(t, svc.SetPrice(testCurator, testToken, new(big.Int).Set(vault.PricePrecision)))
	assert.Error(t, svc.SetPrice(testCurator, testToken, big.NewInt(0)))
}
