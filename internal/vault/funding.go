package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/boxfi/boxd/internal/pkg/logger"
)

// Facility is one funding relationship: a registered adapter, the opaque
// market descriptor it routes with, and the bound collateral and debt tokens.
type Facility struct {
	ID          common.Hash    `json:"id"`
	AdapterName string         `json:"adapter"`
	Descriptor  []byte         `json:"descriptor"`
	Collateral  common.Address `json:"collateral"`
	Debt        common.Address `json:"debt"`
}

func (v *Vault) facilityByID(id common.Hash) (*Facility, FundingAdapter, error) {
	for _, f := range v.facilities {
		if f.ID == id {
			adapter, ok := v.adapters[f.AdapterName]
			if !ok {
				return nil, nil, ErrUnknownAdapter
			}
			return f, adapter, nil
		}
	}
	return nil, nil, ErrFacilityNotFound
}

// Facilities returns a copy of the facility list.
func (v *Vault) Facilities() []Facility {
	out := make([]Facility, len(v.facilities))
	for i, f := range v.facilities {
		out[i] = *f
		out[i].Descriptor = append([]byte(nil), f.Descriptor...)
	}
	return out
}

// FacilityPosition reports the current collateral, debt and loan-to-value of
// a facility as seen through its adapter.
func (v *Vault) FacilityPosition(id common.Hash) (collateral, debt *big.Int, ltv decimal.Decimal, err error) {
	f, adapter, err := v.facilityByID(id)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	collateral, err = adapter.CollateralBalance(f.Descriptor, v.account)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	debt, err = adapter.DebtBalance(f.Descriptor, v.account)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	ltv, err = adapter.LoanToValue(f.Descriptor, v.account)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	return collateral, debt, ltv, nil
}

// AddFundingAdapter registers a lending-protocol integration under its name.
// Curator, timelocked on the adapter name.
func (v *Vault) AddFundingAdapter(caller common.Address, adapter FundingAdapter) error {
	if !v.roles.hasRole(caller, RoleCurator) {
		return ErrNotCurator
	}
	if adapter == nil {
		return ErrNilAdapter
	}
	return v.run(classFunding, func() error {
		if err := v.timelockConsume(EncodeAddFundingAdapter(adapter.Name())); err != nil {
			return err
		}
		if _, exists := v.adapters[adapter.Name()]; exists {
			return ErrAdapterRegistered
		}
		v.adapters[adapter.Name()] = adapter
		logger.Info("funding adapter registered", "adapter", adapter.Name())
		v.emit(EventAdapterAdded, map[string]string{"adapter": adapter.Name()})
		return nil
	})
}

// RemoveFundingAdapter deregisters an adapter no facility references anymore.
func (v *Vault) RemoveFundingAdapter(caller common.Address, name string) error {
	if !v.roles.hasRole(caller, RoleCurator) {
		return ErrNotCurator
	}
	return v.run(classFunding, func() error {
		if err := v.timelockConsume(EncodeRemoveFundingAdapter(name)); err != nil {
			return err
		}
		if _, exists := v.adapters[name]; !exists {
			return ErrUnknownAdapter
		}
		for _, f := range v.facilities {
			if f.AdapterName == name {
				return ErrAdapterInUse
			}
		}
		delete(v.adapters, name)
		v.emit(EventAdapterRemoved, map[string]string{"adapter": name})
		return nil
	})
}

// AddFacility creates a facility under a registered adapter. The facility
// starts without token bindings; collateral and debt are bound separately.
func (v *Vault) AddFacility(caller common.Address, adapterName string, descriptor []byte) (common.Hash, error) {
	if !v.roles.hasRole(caller, RoleCurator) {
		return common.Hash{}, ErrNotCurator
	}
	id := FacilityID(adapterName, descriptor)
	err := v.run(classFunding, func() error {
		if err := v.timelockConsume(EncodeAddFacility(adapterName, descriptor)); err != nil {
			return err
		}
		if _, exists := v.adapters[adapterName]; !exists {
			return ErrUnknownAdapter
		}
		for _, f := range v.facilities {
			if f.ID == id {
				return ErrFacilityExists
			}
		}
		v.facilities = append(v.facilities, &Facility{
			ID:          id,
			AdapterName: adapterName,
			Descriptor:  append([]byte(nil), descriptor...),
		})
		v.emit(EventFacilityAdded, map[string]string{"facility": id.Hex(), "adapter": adapterName})
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return id, nil
}

// RemoveFacility drops a facility once its collateral balance, debt balance
// and token bindings are all zero.
func (v *Vault) RemoveFacility(caller common.Address, id common.Hash) error {
	if !v.roles.hasRole(caller, RoleCurator) {
		return ErrNotCurator
	}
	return v.run(classFunding, func() error {
		if err := v.timelockConsume(EncodeRemoveFacility(id)); err != nil {
			return err
		}
		f, adapter, err := v.facilityByID(id)
		if err != nil {
			return err
		}
		if f.Collateral != (common.Address{}) || f.Debt != (common.Address{}) {
			return ErrFacilityInUse
		}
		coll, err := adapter.CollateralBalance(f.Descriptor, v.account)
		if err != nil {
			return err
		}
		debt, err := adapter.DebtBalance(f.Descriptor, v.account)
		if err != nil {
			return err
		}
		if coll.Sign() != 0 || debt.Sign() != 0 {
			return ErrFacilityInUse
		}
		for i, cand := range v.facilities {
			if cand.ID == id {
				v.facilities = append(v.facilities[:i], v.facilities[i+1:]...)
				break
			}
		}
		v.emit(EventFacilityRemoved, map[string]string{"facility": id.Hex()})
		return nil
	})
}

// BindCollateralToken assigns the collateral token of a facility. The token
// must be whitelisted (or the base currency) and the slot must be empty.
func (v *Vault) BindCollateralToken(caller common.Address, id common.Hash, token common.Address) error {
	if !v.roles.hasRole(caller, RoleCurator) {
		return ErrNotCurator
	}
	return v.run(classFunding, func() error {
		if err := v.timelockConsume(EncodeBindCollateralToken(id, token)); err != nil {
			return err
		}
		f, _, err := v.facilityByID(id)
		if err != nil {
			return err
		}
		if token != v.baseToken && !v.isListed(token) {
			return ErrTokenNotListed
		}
		if f.Collateral != (common.Address{}) {
			return ErrCollateralBound
		}
		f.Collateral = token
		v.emit(EventCollateralBound, map[string]string{"facility": id.Hex(), "token": token.Hex()})
		return nil
	})
}

// UnbindCollateralToken clears the collateral binding once the facility holds
// no collateral.
func (v *Vault) UnbindCollateralToken(caller common.Address, id common.Hash) error {
	if !v.roles.hasRole(caller, RoleCurator) {
		return ErrNotCurator
	}
	return v.run(classFunding, func() error {
		if err := v.timelockConsume(EncodeUnbindCollateralToken(id)); err != nil {
			return err
		}
		f, adapter, err := v.facilityByID(id)
		if err != nil {
			return err
		}
		coll, err := adapter.CollateralBalance(f.Descriptor, v.account)
		if err != nil {
			return err
		}
		if coll.Sign() != 0 {
			return ErrCollateralBound
		}
		f.Collateral = common.Address{}
		v.emit(EventCollateralUnbound, map[string]string{"facility": id.Hex()})
		return nil
	})
}

// BindDebtToken assigns the debt token of a facility.
func (v *Vault) BindDebtToken(caller common.Address, id common.Hash, token common.Address) error {
	if !v.roles.hasRole(caller, RoleCurator) {
		return ErrNotCurator
	}
	return v.run(classFunding, func() error {
		if err := v.timelockConsume(EncodeBindDebtToken(id, token)); err != nil {
			return err
		}
		f, _, err := v.facilityByID(id)
		if err != nil {
			return err
		}
		if token != v.baseToken && !v.isListed(token) {
			return ErrTokenNotListed
		}
		if f.Debt != (common.Address{}) {
			return ErrDebtBound
		}
		f.Debt = token
		v.emit(EventDebtBound, map[string]string{"facility": id.Hex(), "token": token.Hex()})
		return nil
	})
}

// UnbindDebtToken clears the debt binding once the facility owes nothing.
func (v *Vault) UnbindDebtToken(caller common.Address, id common.Hash) error {
	if !v.roles.hasRole(caller, RoleCurator) {
		return ErrNotCurator
	}
	return v.run(classFunding, func() error {
		if err := v.timelockConsume(EncodeUnbindDebtToken(id)); err != nil {
			return err
		}
		f, adapter, err := v.facilityByID(id)
		if err != nil {
			return err
		}
		debt, err := adapter.DebtBalance(f.Descriptor, v.account)
		if err != nil {
			return err
		}
		if debt.Sign() != 0 {
			return ErrDebtBound
		}
		f.Debt = common.Address{}
		v.emit(EventDebtUnbound, map[string]string{"facility": id.Hex()})
		return nil
	})
}

// Position operations. Thin pass-throughs to the bound adapter with the
// facility's descriptor; allocator only.

func (v *Vault) SupplyCollateral(caller common.Address, id common.Hash, amount *big.Int) error {
	if !v.roles.hasRole(caller, RoleAllocator) {
		return ErrNotAllocator
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return v.run(classFunding, func() error {
		f, adapter, err := v.facilityByID(id)
		if err != nil {
			return err
		}
		return v.supplyCollateral(f, adapter, amount)
	})
}

func (v *Vault) WithdrawCollateral(caller common.Address, id common.Hash, amount *big.Int) error {
	if !v.roles.hasRole(caller, RoleAllocator) {
		return ErrNotAllocator
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return v.run(classFunding, func() error {
		f, adapter, err := v.facilityByID(id)
		if err != nil {
			return err
		}
		return v.withdrawCollateral(f, adapter, amount)
	})
}

func (v *Vault) Borrow(caller common.Address, id common.Hash, amount *big.Int) error {
	if !v.roles.hasRole(caller, RoleAllocator) {
		return ErrNotAllocator
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return v.run(classFunding, func() error {
		f, adapter, err := v.facilityByID(id)
		if err != nil {
			return err
		}
		return v.borrow(f, adapter, amount)
	})
}

// Repay reduces facility debt. A nil amount repays the full outstanding
// balance as reported by the adapter.
func (v *Vault) Repay(caller common.Address, id common.Hash, amount *big.Int) (*big.Int, error) {
	if !v.roles.hasRole(caller, RoleAllocator) {
		return nil, ErrNotAllocator
	}
	if amount != nil && amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	var repaid *big.Int
	err := v.run(classFunding, func() error {
		f, adapter, err := v.facilityByID(id)
		if err != nil {
			return err
		}
		repaid, err = v.repay(f, adapter, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return repaid, nil
}

// Internal position steps, shared by the public pass-throughs and the flash
// compositions. Every effect is re-checked against observed balance deltas.

func (v *Vault) supplyCollateral(f *Facility, adapter FundingAdapter, amount *big.Int) error {
	if f.Collateral == (common.Address{}) {
		return ErrFacilityUnbound
	}
	before := new(big.Int).Set(v.ledger.BalanceOf(f.Collateral, v.account))
	if err := adapter.SupplyCollateral(f.Descriptor, v.account, f.Collateral, amount); err != nil {
		return err
	}
	spent := new(big.Int).Sub(before, v.ledger.BalanceOf(f.Collateral, v.account))
	if spent.Sign() < 0 || spent.Cmp(amount) > 0 {
		return ErrOverspent
	}
	v.emit(EventCollateralSupplied, map[string]string{"facility": f.ID.Hex(), "amount": amount.String()})
	return nil
}

func (v *Vault) withdrawCollateral(f *Facility, adapter FundingAdapter, amount *big.Int) error {
	if f.Collateral == (common.Address{}) {
		return ErrFacilityUnbound
	}
	before := new(big.Int).Set(v.ledger.BalanceOf(f.Collateral, v.account))
	if err := adapter.WithdrawCollateral(f.Descriptor, v.account, f.Collateral, amount); err != nil {
		return err
	}
	received := new(big.Int).Sub(v.ledger.BalanceOf(f.Collateral, v.account), before)
	if received.Cmp(amount) < 0 {
		return ErrInsufficientValue
	}
	v.emit(EventCollateralWithdrawn, map[string]string{"facility": f.ID.Hex(), "amount": amount.String()})
	return nil
}

func (v *Vault) borrow(f *Facility, adapter FundingAdapter, amount *big.Int) error {
	if f.Debt == (common.Address{}) {
		return ErrFacilityUnbound
	}
	before := new(big.Int).Set(v.ledger.BalanceOf(f.Debt, v.account))
	if err := adapter.Borrow(f.Descriptor, v.account, f.Debt, amount); err != nil {
		return err
	}
	received := new(big.Int).Sub(v.ledger.BalanceOf(f.Debt, v.account), before)
	if received.Cmp(amount) < 0 {
		return ErrInsufficientValue
	}
	v.emit(EventBorrowed, map[string]string{"facility": f.ID.Hex(), "amount": amount.String()})
	return nil
}

func (v *Vault) repay(f *Facility, adapter FundingAdapter, amount *big.Int) (*big.Int, error) {
	if f.Debt == (common.Address{}) {
		return nil, ErrFacilityUnbound
	}
	repaid, err := adapter.Repay(f.Descriptor, v.account, f.Debt, amount)
	if err != nil {
		return nil, err
	}
	v.emit(EventRepaid, map[string]string{"facility": f.ID.Hex(), "amount": repaid.String()})
	return repaid, nil
}
