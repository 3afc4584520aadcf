package vault

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/boxfi/boxd/internal/pkg/logger"
)

// maxTokens bounds the investment-token whitelist; every valuation walks the
// whole list, so it must stay small.
const maxTokens = 20

// Params is the construction surface of a vault deployment.
type Params struct {
	Name      string
	Symbol    string
	BaseToken common.Address
	Account   common.Address // the vault's own account in the ledger

	Owner    common.Address
	Curator  common.Address
	Guardian common.Address

	MaxSlippage              decimal.Decimal // e.g. 0.01 for 1%
	EpochDuration            time.Duration   // slippage accumulation window
	ShutdownWarmup           time.Duration   // delay before deallocation opens up
	ShutdownSlippageDuration time.Duration   // tolerance escalation window

	DefaultTimelock time.Duration // initial delay for every timelocked selector
	TimelockCap     time.Duration // hard ceiling IncreaseTimelock cannot pass
}

// Vault is the accounting, allocation, funding and governance engine. It is
// not internally synchronized: callers (the service layer) must serialize
// operations, matching the single-logical-operation execution model.
type Vault struct {
	name      string
	symbol    string
	baseToken common.Address
	account   common.Address

	ledger  Ledger
	emitter Emitter
	now     func() time.Time

	roles *roleSet
	guard opGuard

	tokens []common.Address
	prices map[common.Address]PriceSource

	shares shareLedger

	maxSlippage   decimal.Decimal
	epochDuration time.Duration
	slippage      slippageState

	shutdown shutdownState

	timelock timelockState

	adapters   map[string]FundingAdapter
	facilities []*Facility

	flash flashState
}

type flashState struct {
	inFlight    bool
	cachedValue *big.Int
}

// New wires a vault to its ledger and emitter. The emitter may be nil.
func New(p Params, ledger Ledger, emitter Emitter) (*Vault, error) {
	if ledger == nil {
		return nil, ErrNilAdapter
	}
	if p.Owner == (common.Address{}) || p.Curator == (common.Address{}) || p.Guardian == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if p.BaseToken == (common.Address{}) || p.Account == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if p.MaxSlippage.IsNegative() || p.MaxSlippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("vault: max slippage %s out of range", p.MaxSlippage)
	}
	v := &Vault{
		name:          p.Name,
		symbol:        p.Symbol,
		baseToken:     p.BaseToken,
		account:       p.Account,
		ledger:        ledger,
		emitter:       emitter,
		now:           time.Now,
		roles:         newRoleSet(p.Owner, p.Curator, p.Guardian),
		prices:        make(map[common.Address]PriceSource),
		maxSlippage:   p.MaxSlippage,
		epochDuration: p.EpochDuration,
		shares:        newShareLedger(),
		shutdown: shutdownState{
			warmup:           p.ShutdownWarmup,
			slippageDuration: p.ShutdownSlippageDuration,
		},
		timelock: newTimelockState(p.DefaultTimelock, p.TimelockCap),
		adapters: make(map[string]FundingAdapter),
	}
	v.slippage.epochStart = v.now()
	return v, nil
}

// SetClock overrides the engine clock. Intended for tests and simulation.
func (v *Vault) SetClock(now func() time.Time) { v.now = now }

func (v *Vault) Name() string              { return v.name }
func (v *Vault) Symbol() string            { return v.symbol }
func (v *Vault) BaseToken() common.Address { return v.baseToken }
func (v *Vault) Account() common.Address   { return v.account }
func (v *Vault) Owner() common.Address     { return v.roles.owner }
func (v *Vault) Curator() common.Address   { return v.roles.curator }
func (v *Vault) Guardian() common.Address  { return v.roles.guardian }

func (v *Vault) MaxSlippage() decimal.Decimal  { return v.maxSlippage }
func (v *Vault) EpochDuration() time.Duration  { return v.epochDuration }
func (v *Vault) HasRole(account common.Address, role Role) bool {
	return v.roles.hasRole(account, role)
}

// Tokens returns the ordered investment-token whitelist.
func (v *Vault) Tokens() []common.Address {
	return append([]common.Address(nil), v.tokens...)
}

func (v *Vault) isListed(token common.Address) bool {
	for _, t := range v.tokens {
		if t == token {
			return true
		}
	}
	return false
}

// run executes fn under the reentrancy guard for class and rolls back every
// side effect (ledger, journaled adapters, vault state) if fn fails. This is
// the whole-invocation atomicity boundary.
func (v *Vault) run(class opClass, fn func() error) error {
	if err := v.guard.enter(class, v.flash.inFlight); err != nil {
		return err
	}
	defer v.guard.exit()

	ledgerSnap := v.ledger.Snapshot()
	journals := make([]Journal, 0, len(v.adapters))
	snaps := make([]int, 0, len(v.adapters))
	for _, a := range v.adapters {
		if j, ok := a.(Journal); ok {
			journals = append(journals, j)
			snaps = append(snaps, j.Snapshot())
		}
	}
	state := v.snapshotState()

	if err := fn(); err != nil {
		for i := len(journals) - 1; i >= 0; i-- {
			journals[i].RevertTo(snaps[i])
		}
		v.ledger.RevertTo(ledgerSnap)
		v.restoreState(state)
		return err
	}
	return nil
}

type vaultSnapshot struct {
	roles         *roleSet
	tokens        []common.Address
	prices        map[common.Address]PriceSource
	shares        shareLedger
	maxSlippage   decimal.Decimal
	epochDuration time.Duration
	slippage      slippageState
	shutdown      shutdownState
	timelock      timelockState
	adapters      map[string]FundingAdapter
	facilities    []*Facility
	flash         flashState
}

func (v *Vault) snapshotState() vaultSnapshot {
	prices := make(map[common.Address]PriceSource, len(v.prices))
	for k, src := range v.prices {
		prices[k] = src
	}
	adapters := make(map[string]FundingAdapter, len(v.adapters))
	for k, a := range v.adapters {
		adapters[k] = a
	}
	facilities := make([]*Facility, len(v.facilities))
	for i, f := range v.facilities {
		cp := *f
		cp.Descriptor = append([]byte(nil), f.Descriptor...)
		facilities[i] = &cp
	}
	flash := v.flash
	if v.flash.cachedValue != nil {
		flash.cachedValue = new(big.Int).Set(v.flash.cachedValue)
	}
	return vaultSnapshot{
		roles:         v.roles.clone(),
		tokens:        append([]common.Address(nil), v.tokens...),
		prices:        prices,
		shares:        v.shares.clone(),
		maxSlippage:   v.maxSlippage,
		epochDuration: v.epochDuration,
		slippage:      v.slippage.clone(),
		shutdown:      v.shutdown,
		timelock:      v.timelock.clone(),
		adapters:      adapters,
		facilities:    facilities,
		flash:         flash,
	}
}

func (v *Vault) restoreState(s vaultSnapshot) {
	v.roles = s.roles
	v.tokens = s.tokens
	v.prices = s.prices
	v.shares = s.shares
	v.maxSlippage = s.maxSlippage
	v.epochDuration = s.epochDuration
	v.slippage = s.slippage
	v.shutdown = s.shutdown
	v.timelock = s.timelock
	v.adapters = s.adapters
	v.facilities = s.facilities
	v.flash = s.flash
}

func (v *Vault) emit(evtType string, attrs map[string]string) {
	if v.emitter == nil {
		return
	}
	v.emitter.Emit(Event{Type: evtType, At: v.now(), Attributes: attrs})
}

// Identity changes are immediate, single-authority operations. The asymmetry
// versus timelocked configuration changes is deliberate: a compromised
// parameter cannot be fixed quickly if the fix itself waits out a timelock.

func (v *Vault) SetOwner(caller, next common.Address) error {
	if !v.roles.hasRole(caller, RoleOwner) {
		return ErrNotOwner
	}
	if next == (common.Address{}) {
		return ErrZeroAddress
	}
	v.roles.owner = next
	v.emit(EventOwnerChanged, map[string]string{"owner": next.Hex()})
	return nil
}

func (v *Vault) SetCurator(caller, next common.Address) error {
	if !v.roles.hasRole(caller, RoleOwner) {
		return ErrNotOwner
	}
	if next == (common.Address{}) {
		return ErrZeroAddress
	}
	v.roles.curator = next
	v.emit(EventCuratorChanged, map[string]string{"curator": next.Hex()})
	return nil
}

func (v *Vault) SetGuardian(caller, next common.Address) error {
	if !v.roles.hasRole(caller, RoleOwner) {
		return ErrNotOwner
	}
	if next == (common.Address{}) {
		return ErrZeroAddress
	}
	v.roles.guardian = next
	v.emit(EventGuardianChanged, map[string]string{"guardian": next.Hex()})
	return nil
}

func (v *Vault) GrantRole(caller common.Address, role Role, account common.Address) error {
	if !v.roles.hasRole(caller, RoleOwner) {
		return ErrNotOwner
	}
	if role != RoleAllocator && role != RoleFeeder {
		return fmt.Errorf("vault: role %q is not grantable", role)
	}
	v.roles.grant(role, account)
	v.emit(EventRoleGranted, map[string]string{"role": string(role), "account": account.Hex()})
	return nil
}

func (v *Vault) RevokeRole(caller common.Address, role Role, account common.Address) error {
	if !v.roles.hasRole(caller, RoleOwner) {
		return ErrNotOwner
	}
	v.roles.revoke(role, account)
	v.emit(EventRoleRevoked, map[string]string{"role": string(role), "account": account.Hex()})
	return nil
}

// AddToken whitelists an investment token with its price source. Curator
// only, timelocked on the token address; the price source is supplied at
// execution time.
func (v *Vault) AddToken(caller, token common.Address, src PriceSource) error {
	if !v.roles.hasRole(caller, RoleCurator) {
		return ErrNotCurator
	}
	if token == (common.Address{}) {
		return ErrZeroAddress
	}
	if src == nil {
		return ErrNilAdapter
	}
	return v.run(classAllocation, func() error {
		if err := v.timelockConsume(EncodeAddToken(token)); err != nil {
			return err
		}
		if token == v.baseToken || v.isListed(token) {
			return ErrTokenListed
		}
		if len(v.tokens) >= maxTokens {
			return ErrTokenLimit
		}
		v.tokens = append(v.tokens, token)
		v.prices[token] = src
		logger.Info("token whitelisted", "token", token.Hex())
		v.emit(EventTokenAdded, map[string]string{"token": token.Hex()})
		return nil
	})
}

// RemoveToken delists a token. Refused while the vault still holds any of it
// or while a facility references it as collateral or debt.
func (v *Vault) RemoveToken(caller, token common.Address) error {
	if !v.roles.hasRole(caller, RoleCurator) {
		return ErrNotCurator
	}
	return v.run(classAllocation, func() error {
		if err := v.timelockConsume(EncodeRemoveToken(token)); err != nil {
			return err
		}
		if !v.isListed(token) {
			return ErrTokenNotListed
		}
		if v.ledger.BalanceOf(token, v.account).Sign() != 0 {
			return ErrTokenInUse
		}
		for _, f := range v.facilities {
			if f.Collateral == token || f.Debt == token {
				return ErrTokenInUse
			}
		}
		for i, t := range v.tokens {
			if t == token {
				v.tokens = append(v.tokens[:i], v.tokens[i+1:]...)
				break
			}
		}
		delete(v.prices, token)
		v.emit(EventTokenRemoved, map[string]string{"token": token.Hex()})
		return nil
	})
}
