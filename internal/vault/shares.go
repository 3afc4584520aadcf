package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// shareLedger is the fungible-share bookkeeping: balances, allowances and
// total supply. The sum of balances always equals the total supply.
type shareLedger struct {
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	totalSupply *big.Int
}

func newShareLedger() shareLedger {
	return shareLedger{
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		totalSupply: new(big.Int),
	}
}

func (s *shareLedger) balanceOf(account common.Address) *big.Int {
	if b, ok := s.balances[account]; ok {
		return b
	}
	return new(big.Int)
}

func (s *shareLedger) mint(to common.Address, amount *big.Int) {
	s.balances[to] = new(big.Int).Add(s.balanceOf(to), amount)
	s.totalSupply = new(big.Int).Add(s.totalSupply, amount)
}

func (s *shareLedger) burn(from common.Address, amount *big.Int) error {
	bal := s.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientValue
	}
	s.balances[from] = new(big.Int).Sub(bal, amount)
	s.totalSupply = new(big.Int).Sub(s.totalSupply, amount)
	return nil
}

func (s *shareLedger) transfer(from, to common.Address, amount *big.Int) error {
	bal := s.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientValue
	}
	s.balances[from] = new(big.Int).Sub(bal, amount)
	s.balances[to] = new(big.Int).Add(s.balanceOf(to), amount)
	return nil
}

func (s *shareLedger) allowance(owner, spender common.Address) *big.Int {
	if m, ok := s.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a
		}
	}
	return new(big.Int)
}

func (s *shareLedger) approve(owner, spender common.Address, amount *big.Int) {
	if _, ok := s.allowances[owner]; !ok {
		s.allowances[owner] = make(map[common.Address]*big.Int)
	}
	s.allowances[owner][spender] = new(big.Int).Set(amount)
}

func (s *shareLedger) clone() shareLedger {
	out := newShareLedger()
	out.totalSupply = new(big.Int).Set(s.totalSupply)
	for addr, bal := range s.balances {
		out.balances[addr] = new(big.Int).Set(bal)
	}
	for owner, m := range s.allowances {
		cp := make(map[common.Address]*big.Int, len(m))
		for spender, a := range m {
			cp[spender] = new(big.Int).Set(a)
		}
		out.allowances[owner] = cp
	}
	return out
}

func (v *Vault) TotalSupply() *big.Int {
	return new(big.Int).Set(v.shares.totalSupply)
}

func (v *Vault) ShareBalanceOf(account common.Address) *big.Int {
	return new(big.Int).Set(v.shares.balanceOf(account))
}

func (v *Vault) ShareAllowance(owner, spender common.Address) *big.Int {
	return new(big.Int).Set(v.shares.allowance(owner, spender))
}

func (v *Vault) ApproveShares(caller, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrZeroAmount
	}
	v.shares.approve(caller, spender, amount)
	return nil
}

func (v *Vault) TransferShares(caller, to common.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return v.shares.transfer(caller, to, amount)
}

func (v *Vault) TransferSharesFrom(caller, from, to common.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	allowed := v.shares.allowance(from, caller)
	if allowed.Cmp(amount) < 0 {
		return ErrInsufficientValue
	}
	if err := v.shares.transfer(from, to, amount); err != nil {
		return err
	}
	v.shares.approve(from, caller, new(big.Int).Sub(allowed, amount))
	return nil
}

// canFeed gates deposits: open when no feeder has ever been granted,
// feeder-only once the owner starts designating feeders.
func (v *Vault) canFeed(account common.Address) bool {
	if len(v.roles.grants[RoleFeeder]) == 0 {
		return true
	}
	return v.roles.hasRole(account, RoleFeeder)
}

// Deposit moves assets of base currency from caller into the vault and mints
// shares at the current NAV, rounding down. Blocked while shut down.
func (v *Vault) Deposit(caller, receiver common.Address, assets *big.Int) (*big.Int, error) {
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if !v.canFeed(caller) {
		return nil, ErrNotFeeder
	}
	var minted *big.Int
	err := v.run(classAllocation, func() error {
		if v.shutdown.active {
			return ErrShutdown
		}
		shares, err := v.ConvertToShares(assets)
		if err != nil {
			return err
		}
		if err := v.ledger.Transfer(v.baseToken, caller, v.account, assets); err != nil {
			return err
		}
		v.shares.mint(receiver, shares)
		minted = shares
		v.emit(EventDeposit, map[string]string{
			"caller": caller.Hex(), "receiver": receiver.Hex(),
			"assets": assets.String(), "shares": shares.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// Withdraw pays out exactly assets of base currency and burns the matching
// shares, rounding the burn up. Fails when the vault lacks liquid base
// currency to honor the payout.
func (v *Vault) Withdraw(caller, receiver common.Address, assets *big.Int) (*big.Int, error) {
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	var burned *big.Int
	err := v.run(classAllocation, func() error {
		shares, err := v.PreviewWithdraw(assets)
		if err != nil {
			return err
		}
		if err := v.shares.burn(caller, shares); err != nil {
			return err
		}
		if err := v.ledger.Transfer(v.baseToken, v.account, receiver, assets); err != nil {
			return fmt.Errorf("%w: %w", ErrInsufficientValue, err)
		}
		burned = shares
		v.emit(EventWithdraw, map[string]string{
			"caller": caller.Hex(), "receiver": receiver.Hex(),
			"assets": assets.String(), "shares": shares.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return burned, nil
}

// Redeem burns exactly shares and pays out the matching assets, rounding the
// payout down.
func (v *Vault) Redeem(caller, receiver common.Address, shares *big.Int) (*big.Int, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	var paid *big.Int
	err := v.run(classAllocation, func() error {
		assets, err := v.ConvertToAssets(shares)
		if err != nil {
			return err
		}
		if err := v.shares.burn(caller, shares); err != nil {
			return err
		}
		if err := v.ledger.Transfer(v.baseToken, v.account, receiver, assets); err != nil {
			return fmt.Errorf("%w: %w", ErrInsufficientValue, err)
		}
		paid = assets
		v.emit(EventWithdraw, map[string]string{
			"caller": caller.Hex(), "receiver": receiver.Hex(),
			"assets": assets.String(), "shares": shares.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}
