package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// priceOf returns the base-currency price of token scaled by PricePrecision.
// The base currency itself is always worth exactly one.
func (v *Vault) priceOf(token common.Address) (*big.Int, error) {
	if token == v.baseToken {
		return new(big.Int).Set(PricePrecision), nil
	}
	src, ok := v.prices[token]
	if !ok || src == nil {
		return nil, ErrMissingPrice
	}
	price, err := src.Price()
	if err != nil {
		return nil, fmt.Errorf("vault: price source failed for %s: %w", token.Hex(), err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("vault: price source returned non-positive price for %s", token.Hex())
	}
	return price, nil
}

func (v *Vault) valueOf(token common.Address, amount *big.Int) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}
	price, err := v.priceOf(token)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(amount, price)
	return out.Div(out, PricePrecision), nil
}

// TotalValue computes the vault's net asset value in base-currency units:
// directly held base currency, every whitelisted token at its oracle price,
// plus net facility positions (collateral minus debt). It refuses to answer
// while a flash composition is in flight; the live balance would include
// borrowed liquidity and overstate net worth (see CachedNAVDuringFlash).
func (v *Vault) TotalValue() (*big.Int, error) {
	if v.flash.inFlight {
		return nil, ErrValuationInFlight
	}
	return v.liveValue()
}

func (v *Vault) liveValue() (*big.Int, error) {
	total := new(big.Int).Set(v.ledger.BalanceOf(v.baseToken, v.account))
	for _, token := range v.tokens {
		bal := v.ledger.BalanceOf(token, v.account)
		if bal.Sign() == 0 {
			continue
		}
		val, err := v.valueOf(token, bal)
		if err != nil {
			return nil, err
		}
		total.Add(total, val)
	}
	for _, f := range v.facilities {
		adapter, ok := v.adapters[f.AdapterName]
		if !ok {
			return nil, ErrUnknownAdapter
		}
		if f.Collateral != (common.Address{}) {
			coll, err := adapter.CollateralBalance(f.Descriptor, v.account)
			if err != nil {
				return nil, fmt.Errorf("vault: collateral balance query failed: %w", err)
			}
			val, err := v.valueOf(f.Collateral, coll)
			if err != nil {
				return nil, err
			}
			total.Add(total, val)
		}
		if f.Debt != (common.Address{}) {
			debt, err := adapter.DebtBalance(f.Descriptor, v.account)
			if err != nil {
				return nil, fmt.Errorf("vault: debt balance query failed: %w", err)
			}
			val, err := v.valueOf(f.Debt, debt)
			if err != nil {
				return nil, err
			}
			total.Sub(total, val)
		}
	}
	return total, nil
}

// navForRatios is the denominator used by slippage accounting. While a flash
// composition is in flight it returns the value cached at entry, never the
// live balance inflated by borrowed liquidity.
func (v *Vault) navForRatios() (*big.Int, error) {
	if v.flash.inFlight {
		if v.flash.cachedValue == nil {
			return nil, ErrValuationInFlight
		}
		return v.flash.cachedValue, nil
	}
	return v.liveValue()
}

// ConvertToShares previews the shares minted for an asset deposit. Identity
// when no shares are outstanding, otherwise floor(assets * supply / value).
func (v *Vault) ConvertToShares(assets *big.Int) (*big.Int, error) {
	supply := v.shares.totalSupply
	if supply.Sign() == 0 {
		return new(big.Int).Set(assets), nil
	}
	value, err := v.TotalValue()
	if err != nil {
		return nil, err
	}
	if value.Sign() == 0 {
		return nil, ErrZeroValue
	}
	out := new(big.Int).Mul(assets, supply)
	return out.Div(out, value), nil
}

// ConvertToAssets previews the assets redeemable for shares, rounding down.
func (v *Vault) ConvertToAssets(shares *big.Int) (*big.Int, error) {
	supply := v.shares.totalSupply
	if supply.Sign() == 0 {
		return new(big.Int).Set(shares), nil
	}
	value, err := v.TotalValue()
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(shares, value)
	return out.Div(out, supply), nil
}

// PreviewMint returns the assets required to mint exactly shares, rounding up
// so rounding always favors the vault.
func (v *Vault) PreviewMint(shares *big.Int) (*big.Int, error) {
	supply := v.shares.totalSupply
	if supply.Sign() == 0 {
		return new(big.Int).Set(shares), nil
	}
	value, err := v.TotalValue()
	if err != nil {
		return nil, err
	}
	return ceilDiv(new(big.Int).Mul(shares, value), supply), nil
}

// PreviewWithdraw returns the shares burned to withdraw exactly assets,
// rounding up.
func (v *Vault) PreviewWithdraw(assets *big.Int) (*big.Int, error) {
	supply := v.shares.totalSupply
	if supply.Sign() == 0 {
		return new(big.Int).Set(assets), nil
	}
	value, err := v.TotalValue()
	if err != nil {
		return nil, err
	}
	if value.Sign() == 0 {
		return nil, ErrZeroValue
	}
	return ceilDiv(new(big.Int).Mul(assets, supply), value), nil
}

func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
