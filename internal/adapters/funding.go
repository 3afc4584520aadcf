package adapters

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/boxfi/boxd/internal/bank"
	"github.com/boxfi/boxd/internal/vault"
)

var (
	ErrLLTVExceeded  = errors.New("adapters: loan-to-value above facility limit")
	ErrNoCollateral  = errors.New("adapters: insufficient collateral")
	ErrPoolLiquidity = errors.New("adapters: pool has insufficient liquidity")
)

// PaperFundingAdapter is a self-contained lending market: collateral is
// escrowed in the pool account, debt is lent from the same account, and a
// single LLTV bounds every position. Its position book participates in
// operation rollback through the same snapshot/revert protocol as the bank.
type PaperFundingAdapter struct {
	name      string
	bank      *bank.Bank
	pool      common.Address // escrow and lending liquidity account
	quote     QuoteFunc
	lltv      decimal.Decimal
	positions map[string]*position
	journal   []positionUndo
}

type position struct {
	collateralToken common.Address
	debtToken       common.Address
	collateral      *big.Int
	debt            *big.Int
}

type positionUndo struct {
	key  string
	prev *position // nil when the position did not exist
}

func NewPaperFundingAdapter(name string, b *bank.Bank, pool common.Address, quote QuoteFunc, lltv decimal.Decimal) *PaperFundingAdapter {
	return &PaperFundingAdapter{
		name:      name,
		bank:      b,
		pool:      pool,
		quote:     quote,
		lltv:      lltv,
		positions: make(map[string]*position),
	}
}

func (a *PaperFundingAdapter) Name() string { return a.name }

func positionKey(descriptor []byte, account common.Address) string {
	return string(descriptor) + "|" + account.Hex()
}

func (p *position) clone() *position {
	return &position{
		collateralToken: p.collateralToken,
		debtToken:       p.debtToken,
		collateral:      new(big.Int).Set(p.collateral),
		debt:            new(big.Int).Set(p.debt),
	}
}

// mutable returns the journaled, writable position for key.
func (a *PaperFundingAdapter) mutable(key string) *position {
	p, ok := a.positions[key]
	if !ok {
		a.journal = append(a.journal, positionUndo{key: key})
		p = &position{collateral: new(big.Int), debt: new(big.Int)}
		a.positions[key] = p
		return p
	}
	a.journal = append(a.journal, positionUndo{key: key, prev: p.clone()})
	return p
}

func (a *PaperFundingAdapter) Snapshot() int { return len(a.journal) }

func (a *PaperFundingAdapter) RevertTo(snap int) {
	if snap < 0 || snap > len(a.journal) {
		return
	}
	for i := len(a.journal) - 1; i >= snap; i-- {
		e := a.journal[i]
		if e.prev == nil {
			delete(a.positions, e.key)
		} else {
			a.positions[e.key] = e.prev
		}
	}
	a.journal = a.journal[:snap]
}

func (a *PaperFundingAdapter) SupplyCollateral(descriptor []byte, account, token common.Address, amount *big.Int) error {
	if err := a.bank.Transfer(token, account, a.pool, amount); err != nil {
		return fmt.Errorf("funding %s: %w", a.name, err)
	}
	p := a.mutable(positionKey(descriptor, account))
	p.collateralToken = token
	p.collateral = new(big.Int).Add(p.collateral, amount)
	return nil
}

func (a *PaperFundingAdapter) WithdrawCollateral(descriptor []byte, account, token common.Address, amount *big.Int) error {
	key := positionKey(descriptor, account)
	current, ok := a.positions[key]
	if !ok || current.collateral.Cmp(amount) < 0 {
		return ErrNoCollateral
	}
	p := a.mutable(key)
	p.collateral = new(big.Int).Sub(p.collateral, amount)
	if err := a.checkHealth(p); err != nil {
		return err
	}
	if err := a.bank.Transfer(token, a.pool, account, amount); err != nil {
		return fmt.Errorf("funding %s: %w", a.name, err)
	}
	return nil
}

func (a *PaperFundingAdapter) Borrow(descriptor []byte, account, token common.Address, amount *big.Int) error {
	p := a.mutable(positionKey(descriptor, account))
	p.debtToken = token
	p.debt = new(big.Int).Add(p.debt, amount)
	if err := a.checkHealth(p); err != nil {
		return err
	}
	if err := a.bank.Transfer(token, a.pool, account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrPoolLiquidity, err)
	}
	return nil
}

func (a *PaperFundingAdapter) Repay(descriptor []byte, account, token common.Address, amount *big.Int) (*big.Int, error) {
	key := positionKey(descriptor, account)
	current, ok := a.positions[key]
	if !ok || current.debt.Sign() == 0 {
		return new(big.Int), nil
	}
	pay := new(big.Int).Set(current.debt)
	if amount != nil && amount.Cmp(pay) < 0 {
		pay.Set(amount)
	}
	if err := a.bank.Transfer(token, account, a.pool, pay); err != nil {
		return nil, fmt.Errorf("funding %s: %w", a.name, err)
	}
	p := a.mutable(key)
	p.debt = new(big.Int).Sub(p.debt, pay)
	return pay, nil
}

func (a *PaperFundingAdapter) CollateralBalance(descriptor []byte, account common.Address) (*big.Int, error) {
	if p, ok := a.positions[positionKey(descriptor, account)]; ok {
		return new(big.Int).Set(p.collateral), nil
	}
	return new(big.Int), nil
}

func (a *PaperFundingAdapter) DebtBalance(descriptor []byte, account common.Address) (*big.Int, error) {
	if p, ok := a.positions[positionKey(descriptor, account)]; ok {
		return new(big.Int).Set(p.debt), nil
	}
	return new(big.Int), nil
}

func (a *PaperFundingAdapter) LoanToValue(descriptor []byte, account common.Address) (decimal.Decimal, error) {
	p, ok := a.positions[positionKey(descriptor, account)]
	if !ok || p.debt.Sign() == 0 {
		return decimal.Zero, nil
	}
	collValue, debtValue, err := a.positionValues(p)
	if err != nil {
		return decimal.Zero, err
	}
	if collValue.Sign() == 0 {
		return decimal.Zero, ErrNoCollateral
	}
	return decimal.NewFromBigInt(debtValue, 0).Div(decimal.NewFromBigInt(collValue, 0)), nil
}

func (a *PaperFundingAdapter) positionValues(p *position) (collValue, debtValue *big.Int, err error) {
	collValue = new(big.Int)
	if p.collateral.Sign() > 0 {
		price, err := a.quote(p.collateralToken)
		if err != nil {
			return nil, nil, err
		}
		collValue.Mul(p.collateral, price)
		collValue.Div(collValue, vault.PricePrecision)
	}
	debtValue = new(big.Int)
	if p.debt.Sign() > 0 {
		price, err := a.quote(p.debtToken)
		if err != nil {
			return nil, nil, err
		}
		debtValue.Mul(p.debt, price)
		debtValue.Div(debtValue, vault.PricePrecision)
	}
	return collValue, debtValue, nil
}

func (a *PaperFundingAdapter) checkHealth(p *position) error {
	if p.debt.Sign() == 0 {
		return nil
	}
	collValue, debtValue, err := a.positionValues(p)
	if err != nil {
		return err
	}
	if collValue.Sign() == 0 {
		return ErrLLTVExceeded
	}
	ltv := decimal.NewFromBigInt(debtValue, 0).Div(decimal.NewFromBigInt(collValue, 0))
	if ltv.GreaterThan(a.lltv) {
		return ErrLLTVExceeded
	}
	return nil
}

var (
	_ vault.FundingAdapter = (*PaperFundingAdapter)(nil)
	_ vault.Journal        = (*PaperFundingAdapter)(nil)
)
