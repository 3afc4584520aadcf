// Package bank is an in-process token ledger. It backs the vault engine in
// tests and simulation mode, and its journal gives vault operations their
// all-or-nothing semantics: take a snapshot, apply transfers, revert the
// whole range on failure.
package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
)

// Bank keeps per-token account balances with an undo journal. Not safe for
// concurrent use; the service layer serializes operations.
type Bank struct {
	balances map[common.Address]map[common.Address]*big.Int
	journal  []undo
}

type undo struct {
	token   common.Address
	account common.Address
	prev    *big.Int
}

func New() *Bank {
	return &Bank{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

// BalanceOf returns the balance of account in token base units. The returned
// value must not be mutated by the caller.
func (b *Bank) BalanceOf(token, account common.Address) *big.Int {
	if accounts, ok := b.balances[token]; ok {
		if bal, ok := accounts[account]; ok {
			return bal
		}
	}
	return new(big.Int)
}

func (b *Bank) set(token, account common.Address, amount *big.Int) {
	accounts, ok := b.balances[token]
	if !ok {
		accounts = make(map[common.Address]*big.Int)
		b.balances[token] = accounts
	}
	prev, ok := accounts[account]
	if !ok {
		prev = new(big.Int)
	}
	b.journal = append(b.journal, undo{token: token, account: account, prev: prev})
	accounts[account] = amount
}

// Mint credits freshly issued units to an account. Used for deployment
// seeding and tests.
func (b *Bank) Mint(token, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.set(token, account, new(big.Int).Add(b.BalanceOf(token, account), amount))
	return nil
}

// Transfer moves amount of token between accounts.
func (b *Bank) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal := b.BalanceOf(token, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, needs %s",
			ErrInsufficientBalance, from.Hex(), fromBal, token.Hex(), amount)
	}
	b.set(token, from, new(big.Int).Sub(fromBal, amount))
	b.set(token, to, new(big.Int).Add(b.BalanceOf(token, to), amount))
	return nil
}

// Snapshot marks the current journal position.
func (b *Bank) Snapshot() int {
	return len(b.journal)
}

// RevertTo unwinds every balance change recorded after the snapshot.
func (b *Bank) RevertTo(snap int) {
	if snap < 0 || snap > len(b.journal) {
		return
	}
	for i := len(b.journal) - 1; i >= snap; i-- {
		e := b.journal[i]
		b.balances[e.token][e.account] = e.prev
	}
	b.journal = b.journal[:snap]
}

// TotalSupply sums every account's balance of token.
func (b *Bank) TotalSupply(token common.Address) *big.Int {
	total := new(big.Int)
	for _, bal := range b.balances[token] {
		total.Add(total, bal)
	}
	return total
}
