package service

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/boxfi/boxd/internal/adapters"
	"github.com/boxfi/boxd/internal/model"
	"github.com/boxfi/boxd/internal/pkg/apperrors"
	"github.com/boxfi/boxd/internal/pkg/logger"
	"github.com/boxfi/boxd/internal/vault"
)

// BoxService serializes every engine invocation behind one mutex. The engine
// itself is not synchronized; one logical operation runs at a time, which is
// exactly the execution model its rollback semantics assume.
type BoxService struct {
	mu    sync.Mutex
	vault *vault.Vault

	ledger vault.Ledger
	quotes *adapters.QuoteTable

	swappers map[string]vault.SwapExecutor
	lenders  map[string]vault.FlashLender
	funding  map[string]vault.FundingAdapter
}

func NewBoxService(v *vault.Vault, ledger vault.Ledger, quotes *adapters.QuoteTable) *BoxService {
	return &BoxService{
		vault:    v,
		ledger:   ledger,
		quotes:   quotes,
		swappers: make(map[string]vault.SwapExecutor),
		lenders:  make(map[string]vault.FlashLender),
		funding:  make(map[string]vault.FundingAdapter),
	}
}

// RegisterSwapper makes a swap executor addressable by name in API requests.
func (s *BoxService) RegisterSwapper(e vault.SwapExecutor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swappers[e.Name()] = e
}

func (s *BoxService) RegisterLender(l vault.FlashLender, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lenders[name] = l
}

// RegisterFundingAdapter stages an adapter so a timelocked AddFundingAdapter
// action can later wire it into the engine.
func (s *BoxService) RegisterFundingAdapter(a vault.FundingAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funding[a.Name()] = a
}

func (s *BoxService) swapper(name string) (vault.SwapExecutor, error) {
	e, ok := s.swappers[name]
	if !ok {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("unknown swap executor %q", name))
	}
	return e, nil
}

func (s *BoxService) lender(name string) (vault.FlashLender, error) {
	l, ok := s.lenders[name]
	if !ok {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("unknown flash lender %q", name))
	}
	return l, nil
}

// --- share operations ---

func (s *BoxService) Deposit(caller, receiver common.Address, assets *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.Deposit(caller, receiver, assets)
}

func (s *BoxService) Withdraw(caller, receiver common.Address, assets *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.Withdraw(caller, receiver, assets)
}

func (s *BoxService) Redeem(caller, receiver common.Address, shares *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.Redeem(caller, receiver, shares)
}

// --- allocation ---

func (s *BoxService) Allocate(caller, token common.Address, amount *big.Int, swapperName string, routing []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.swapper(swapperName)
	if err != nil {
		return err
	}
	return s.vault.Allocate(caller, token, amount, e, routing)
}

func (s *BoxService) Deallocate(caller, token common.Address, amount *big.Int, swapperName string, routing []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.swapper(swapperName)
	if err != nil {
		return err
	}
	return s.vault.Deallocate(caller, token, amount, e, routing)
}

func (s *BoxService) Reallocate(caller, from, to common.Address, amount *big.Int, swapperName string, routing []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.swapper(swapperName)
	if err != nil {
		return err
	}
	return s.vault.Reallocate(caller, from, to, amount, e, routing)
}

// --- funding ---

func (s *BoxService) SupplyCollateral(caller common.Address, id common.Hash, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.SupplyCollateral(caller, id, amount)
}

func (s *BoxService) WithdrawCollateral(caller common.Address, id common.Hash, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.WithdrawCollateral(caller, id, amount)
}

func (s *BoxService) Borrow(caller common.Address, id common.Hash, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.Borrow(caller, id, amount)
}

func (s *BoxService) Repay(caller common.Address, id common.Hash, amount *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.Repay(caller, id, amount)
}

// --- leverage ---

func (s *BoxService) Wind(caller common.Address, id common.Hash, loan *big.Int, lenderName, swapperName string, routing []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lender(lenderName)
	if err != nil {
		return err
	}
	e, err := s.swapper(swapperName)
	if err != nil {
		return err
	}
	return s.vault.Wind(caller, id, loan, l, e, routing)
}

func (s *BoxService) Unwind(caller common.Address, id common.Hash, repay, collateral *big.Int, lenderName, swapperName string, routing []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lender(lenderName)
	if err != nil {
		return err
	}
	e, err := s.swapper(swapperName)
	if err != nil {
		return err
	}
	return s.vault.Unwind(caller, id, repay, collateral, l, e, routing)
}

func (s *BoxService) Shift(caller common.Address, from, to common.Hash, lenderName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lender(lenderName)
	if err != nil {
		return err
	}
	return s.vault.Shift(caller, from, to, l)
}

// --- lifecycle ---

func (s *BoxService) Shutdown(caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Warn("shutdown requested", "caller", caller.Hex())
	return s.vault.Shutdown(caller)
}

func (s *BoxService) Recover(caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.Recover(caller)
}

// --- roles ---

func (s *BoxService) SetRoleHolder(caller common.Address, role string, account common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch role {
	case string(vault.RoleOwner):
		return s.vault.SetOwner(caller, account)
	case string(vault.RoleCurator):
		return s.vault.SetCurator(caller, account)
	case string(vault.RoleGuardian):
		return s.vault.SetGuardian(caller, account)
	case string(vault.RoleAllocator), string(vault.RoleFeeder):
		return s.vault.GrantRole(caller, vault.Role(role), account)
	default:
		return apperrors.NewInvalidRequest(fmt.Sprintf("unknown role %q", role))
	}
}

func (s *BoxService) RevokeRole(caller common.Address, role string, account common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.RevokeRole(caller, vault.Role(role), account)
}

// --- governance ---

// Timelocked action names accepted by the API.
const (
	ActionSetMaxSlippage       = "set_max_slippage"
	ActionSetEpochDuration     = "set_epoch_duration"
	ActionAddToken             = "add_token"
	ActionRemoveToken          = "remove_token"
	ActionAddFundingAdapter    = "add_funding_adapter"
	ActionRemoveFundingAdapter = "remove_funding_adapter"
	ActionAddFacility          = "add_facility"
	ActionRemoveFacility       = "remove_facility"
	ActionBindCollateral       = "bind_collateral"
	ActionUnbindCollateral     = "unbind_collateral"
	ActionBindDebt             = "bind_debt"
	ActionUnbindDebt           = "unbind_debt"
	ActionIncreaseTimelock     = "increase_timelock"
)

type decodedAction struct {
	payload []byte
	execute func(caller common.Address) (any, error)
}

// decodeAction turns an API action request into the canonical payload plus an
// executor closure. Submit, revoke and execute all flow through the same
// encoding, so the bytes scheduled are always the bytes replayed.
func (s *BoxService) decodeAction(req model.ActionRequest) (*decodedAction, error) {
	p := req.Params
	switch req.Action {
	case ActionSetMaxSlippage:
		d, err := decimal.NewFromString(p["value"])
		if err != nil {
			return nil, apperrors.NewInvalidRequest("invalid value: " + err.Error())
		}
		return &decodedAction{
			payload: vault.EncodeSetMaxSlippage(d),
			execute: func(caller common.Address) (any, error) {
				return nil, s.vault.SetMaxSlippage(caller, d)
			},
		}, nil
	case ActionSetEpochDuration:
		d, err := time.ParseDuration(p["duration"])
		if err != nil {
			return nil, apperrors.NewInvalidRequest("invalid duration: " + err.Error())
		}
		return &decodedAction{
			payload: vault.EncodeSetEpochDuration(d),
			execute: func(caller common.Address) (any, error) {
				return nil, s.vault.SetEpochDuration(caller, d)
			},
		}, nil
	case ActionAddToken:
		token, err := parseAddress(p["token"])
		if err != nil {
			return nil, err
		}
		return &decodedAction{
			payload: vault.EncodeAddToken(token),
			execute: func(caller common.Address) (any, error) {
				src, ok := s.quotes.Source(token)
				if !ok {
					return nil, apperrors.NewInvalidRequest("no price source configured for token")
				}
				return nil, s.vault.AddToken(caller, token, src)
			},
		}, nil
	case ActionRemoveToken:
		token, err := parseAddress(p["token"])
		if err != nil {
			return nil, err
		}
		return &decodedAction{
			payload: vault.EncodeRemoveToken(token),
			execute: func(caller common.Address) (any, error) {
				return nil, s.vault.RemoveToken(caller, token)
			},
		}, nil
	case ActionAddFundingAdapter:
		name := p["name"]
		return &decodedAction{
			payload: vault.EncodeAddFundingAdapter(name),
			execute: func(caller common.Address) (any, error) {
				a, ok := s.funding[name]
				if !ok {
					return nil, apperrors.NewInvalidRequest(fmt.Sprintf("funding adapter %q not registered", name))
				}
				return nil, s.vault.AddFundingAdapter(caller, a)
			},
		}, nil
	case ActionRemoveFundingAdapter:
		name := p["name"]
		return &decodedAction{
			payload: vault.EncodeRemoveFundingAdapter(name),
			execute: func(caller common.Address) (any, error) {
				return nil, s.vault.RemoveFundingAdapter(caller, name)
			},
		}, nil
	case ActionAddFacility:
		descriptor, err := parseHexBytes(p["descriptor"])
		if err != nil {
			return nil, err
		}
		name := p["adapter"]
		return &decodedAction{
			payload: vault.EncodeAddFacility(name, descriptor),
			execute: func(caller common.Address) (any, error) {
				id, err := s.vault.AddFacility(caller, name, descriptor)
				if err != nil {
					return nil, err
				}
				return model.FacilityCreateResponse{ID: id.Hex()}, nil
			},
		}, nil
	case ActionRemoveFacility:
		id, err := parseHash(p["facility"])
		if err != nil {
			return nil, err
		}
		return &decodedAction{
			payload: vault.EncodeRemoveFacility(id),
			execute: func(caller common.Address) (any, error) {
				return nil, s.vault.RemoveFacility(caller, id)
			},
		}, nil
	case ActionBindCollateral:
		id, err := parseHash(p["facility"])
		if err != nil {
			return nil, err
		}
		token, err := parseAddress(p["token"])
		if err != nil {
			return nil, err
		}
		return &decodedAction{
			payload: vault.EncodeBindCollateralToken(id, token),
			execute: func(caller common.Address) (any, error) {
				return nil, s.vault.BindCollateralToken(caller, id, token)
			},
		}, nil
	case ActionUnbindCollateral:
		id, err := parseHash(p["facility"])
		if err != nil {
			return nil, err
		}
		return &decodedAction{
			payload: vault.EncodeUnbindCollateralToken(id),
			execute: func(caller common.Address) (any, error) {
				return nil, s.vault.UnbindCollateralToken(caller, id)
			},
		}, nil
	case ActionBindDebt:
		id, err := parseHash(p["facility"])
		if err != nil {
			return nil, err
		}
		token, err := parseAddress(p["token"])
		if err != nil {
			return nil, err
		}
		return &decodedAction{
			payload: vault.EncodeBindDebtToken(id, token),
			execute: func(caller common.Address) (any, error) {
				return nil, s.vault.BindDebtToken(caller, id, token)
			},
		}, nil
	case ActionUnbindDebt:
		id, err := parseHash(p["facility"])
		if err != nil {
			return nil, err
		}
		return &decodedAction{
			payload: vault.EncodeUnbindDebtToken(id),
			execute: func(caller common.Address) (any, error) {
				return nil, s.vault.UnbindDebtToken(caller, id)
			},
		}, nil
	case ActionIncreaseTimelock:
		sig := p["signature"]
		d, err := time.ParseDuration(p["duration"])
		if err != nil {
			return nil, apperrors.NewInvalidRequest("invalid duration: " + err.Error())
		}
		return &decodedAction{
			payload: vault.EncodeIncreaseTimelock(sig, d),
			execute: func(caller common.Address) (any, error) {
				return nil, s.vault.IncreaseTimelock(caller, sig, d)
			},
		}, nil
	default:
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("unknown action %q", req.Action))
	}
}

// SubmitAction schedules a timelocked call.
func (s *BoxService) SubmitAction(caller common.Address, req model.ActionRequest) (*model.ActionSubmitResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, err := s.decodeAction(req)
	if err != nil {
		return nil, err
	}
	at, err := s.vault.SubmitAction(caller, act.payload)
	if err != nil {
		return nil, err
	}
	return &model.ActionSubmitResponse{
		Key:         vault.ActionKey(act.payload).Hex(),
		ScheduledAt: at.UTC().Format(time.RFC3339),
	}, nil
}

// ExecuteAction replays a matured scheduled call.
func (s *BoxService) ExecuteAction(caller common.Address, req model.ActionRequest) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, err := s.decodeAction(req)
	if err != nil {
		return nil, err
	}
	return act.execute(caller)
}

// RevokeAction cancels a scheduled call before it executes.
func (s *BoxService) RevokeAction(caller common.Address, req model.ActionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, err := s.decodeAction(req)
	if err != nil {
		return err
	}
	return s.vault.RevokeAction(caller, act.payload)
}

func (s *BoxService) PendingActions() []vault.PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.PendingActions()
}

// --- views ---

func (s *BoxService) Status() *model.VaultStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.vault
	status := &model.VaultStatus{
		Name:         v.Name(),
		Symbol:       v.Symbol(),
		BaseToken:    v.BaseToken().Hex(),
		TotalShares:  v.TotalSupply().String(),
		MaxSlippage:  v.MaxSlippage().String(),
		SlippageUsed: v.AccumulatedSlippage().String(),
		EpochStart:   v.SlippageEpochStart().UTC().Format(time.RFC3339),
		Shutdown:     v.IsShutdown(),
		Roles: map[string]string{
			string(vault.RoleOwner):    v.Owner().Hex(),
			string(vault.RoleCurator):  v.Curator().Hex(),
			string(vault.RoleGuardian): v.Guardian().Hex(),
		},
	}
	if v.IsShutdown() {
		status.ShutdownAt = v.ShutdownAt().UTC().Format(time.RFC3339)
	}
	if total, err := v.TotalValue(); err == nil {
		status.TotalValue = total.String()
	} else {
		status.ValueInFlight = true
	}

	status.Tokens = make([]model.TokenHolding, 0, len(v.Tokens()))
	for _, token := range v.Tokens() {
		status.Tokens = append(status.Tokens, model.TokenHolding{
			Token:   token.Hex(),
			Balance: s.ledger.BalanceOf(token, v.Account()).String(),
		})
	}

	facilities := v.Facilities()
	status.Facilities = make([]model.FacilityView, 0, len(facilities))
	for _, f := range facilities {
		view := model.FacilityView{
			ID:      f.ID.Hex(),
			Adapter: f.AdapterName,
		}
		if f.Collateral != (common.Address{}) {
			view.CollateralToken = f.Collateral.Hex()
		}
		if f.Debt != (common.Address{}) {
			view.DebtToken = f.Debt.Hex()
		}
		if coll, debt, ltv, err := v.FacilityPosition(f.ID); err == nil {
			view.Collateral = coll.String()
			view.Debt = debt.String()
			view.LoanToValue = ltv.String()
		}
		status.Facilities = append(status.Facilities, view)
	}
	status.PendingActions = len(v.PendingActions())
	return status
}

func (s *BoxService) ShareBalance(account common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.ShareBalanceOf(account)
}

func (s *BoxService) ConvertToShares(assets *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.ConvertToShares(assets)
}

func (s *BoxService) ConvertToAssets(shares *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault.ConvertToAssets(shares)
}

// SetPrice updates or creates the quoted price of a token. Curator only.
// Production deployments replace the static table with oracle-backed sources;
// here this is the admin hook that keeps quotes current.
func (s *BoxService) SetPrice(caller, token common.Address, price *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.vault.HasRole(caller, vault.RoleCurator) {
		return vault.ErrNotCurator
	}
	if price == nil || price.Sign() <= 0 {
		return apperrors.NewInvalidRequest("price must be positive")
	}
	if src, ok := s.quotes.Source(token); ok {
		src.Set(price)
		return nil
	}
	s.quotes.Add(token, price)
	return nil
}

// --- parsing helpers shared with handlers ---

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperrors.NewInvalidRequest(fmt.Sprintf("invalid address %q", raw))
	}
	return common.HexToAddress(raw), nil
}

func parseHash(raw string) (common.Hash, error) {
	trimmed := strings.TrimPrefix(raw, "0x")
	if len(trimmed) != 64 {
		return common.Hash{}, apperrors.NewInvalidRequest(fmt.Sprintf("invalid facility id %q", raw))
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return common.Hash{}, apperrors.NewInvalidRequest(fmt.Sprintf("invalid facility id %q", raw))
	}
	return common.HexToHash(raw), nil
}

func parseHexBytes(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(raw, "0x")
	if trimmed == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, apperrors.NewInvalidRequest("invalid hex bytes: " + err.Error())
	}
	return b, nil
}
