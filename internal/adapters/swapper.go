package adapters

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/boxfi/boxd/internal/bank"
	"github.com/boxfi/boxd/internal/vault"
)

// BankSwapExecutor fills swaps against its own inventory account at the
// quoted oracle price, minus a configurable execution haircut in basis
// points. A haircut of 0 is a perfect fill; tests use nonzero haircuts to
// exercise the vault's slippage accounting.
type BankSwapExecutor struct {
	name       string
	bank       *bank.Bank
	inventory  common.Address // the executor's liquidity account
	client     common.Address // the vault account it serves
	quote      QuoteFunc
	HaircutBps int64
}

func NewBankSwapExecutor(name string, b *bank.Bank, inventory, client common.Address, quote QuoteFunc) *BankSwapExecutor {
	return &BankSwapExecutor{
		name:      name,
		bank:      b,
		inventory: inventory,
		client:    client,
		quote:     quote,
	}
}

func (e *BankSwapExecutor) Name() string { return e.name }

// Sell pulls amountIn of input from the client and pays out output at the
// quoted cross price less the haircut.
func (e *BankSwapExecutor) Sell(input, output common.Address, amountIn *big.Int, routing []byte) error {
	inPrice, err := e.quote(input)
	if err != nil {
		return fmt.Errorf("swap %s: %w", e.name, err)
	}
	outPrice, err := e.quote(output)
	if err != nil {
		return fmt.Errorf("swap %s: %w", e.name, err)
	}
	if err := e.bank.Transfer(input, e.client, e.inventory, amountIn); err != nil {
		return fmt.Errorf("swap %s: %w", e.name, err)
	}
	out := new(big.Int).Mul(amountIn, inPrice)
	out.Div(out, outPrice)
	if e.HaircutBps > 0 {
		haircut := new(big.Int).Mul(out, big.NewInt(e.HaircutBps))
		haircut.Div(haircut, big.NewInt(10_000))
		out.Sub(out, haircut)
	}
	if err := e.bank.Transfer(output, e.inventory, e.client, out); err != nil {
		return fmt.Errorf("swap %s: %w", e.name, err)
	}
	return nil
}

// compile-time interface check
var _ vault.SwapExecutor = (*BankSwapExecutor)(nil)
