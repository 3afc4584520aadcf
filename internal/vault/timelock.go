package vault

import (
	"bytes"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/boxfi/boxd/internal/pkg/metrics"
)

type pendingAction struct {
	payload     []byte
	scheduledAt time.Time
}

// timelockState gates every privileged configuration change behind a
// submit -> wait -> execute/revoke protocol. Delays are keyed per selector;
// pending actions are keyed by the hash of the exact call payload, with the
// payload retained for exact-match verification at execution time.
type timelockState struct {
	delays  map[selector]time.Duration
	names   map[selector]string
	cap     time.Duration
	pending map[common.Hash]pendingAction
}

var timelockedSignatures = []string{
	sigSetMaxSlippage,
	sigSetEpochDuration,
	sigAddToken,
	sigRemoveToken,
	sigAddFundingAdapter,
	sigRemoveFundingAdapter,
	sigAddFacility,
	sigRemoveFacility,
	sigBindCollateral,
	sigUnbindCollateral,
	sigBindDebt,
	sigUnbindDebt,
	sigIncreaseTimelock,
}

func newTimelockState(defaultDelay, cap time.Duration) timelockState {
	t := timelockState{
		delays:  make(map[selector]time.Duration, len(timelockedSignatures)),
		names:   make(map[selector]string, len(timelockedSignatures)),
		cap:     cap,
		pending: make(map[common.Hash]pendingAction),
	}
	for _, sig := range timelockedSignatures {
		sel := selectorOf(sig)
		t.delays[sel] = defaultDelay
		t.names[sel] = sig
	}
	return t
}

func (t timelockState) clone() timelockState {
	out := timelockState{
		delays:  make(map[selector]time.Duration, len(t.delays)),
		names:   make(map[selector]string, len(t.names)),
		cap:     t.cap,
		pending: make(map[common.Hash]pendingAction, len(t.pending)),
	}
	for sel, d := range t.delays {
		out.delays[sel] = d
	}
	for sel, n := range t.names {
		out.names[sel] = n
	}
	for key, p := range t.pending {
		out.pending[key] = pendingAction{
			payload:     append([]byte(nil), p.payload...),
			scheduledAt: p.scheduledAt,
		}
	}
	return out
}

// PendingAction describes one scheduled privileged call.
type PendingAction struct {
	Key         common.Hash `json:"key"`
	Signature   string      `json:"signature"`
	ScheduledAt time.Time   `json:"scheduled_at"`
}

// PendingActions lists every scheduled, not yet executed or revoked action.
func (v *Vault) PendingActions() []PendingAction {
	out := make([]PendingAction, 0, len(v.timelock.pending))
	for key, p := range v.timelock.pending {
		sel, err := payloadSelector(p.payload)
		if err != nil {
			continue
		}
		out = append(out, PendingAction{
			Key:         key,
			Signature:   v.timelock.names[sel],
			ScheduledAt: p.scheduledAt,
		})
	}
	return out
}

// TimelockDelay returns the current delay for a timelocked function signature.
func (v *Vault) TimelockDelay(signature string) (time.Duration, bool) {
	d, ok := v.timelock.delays[selectorOf(signature)]
	return d, ok
}

// SubmitAction schedules a privileged call. The payload must be the exact
// encoding later replayed at execution; a repeated submit for an identical
// pending payload is rejected rather than renewed.
func (v *Vault) SubmitAction(caller common.Address, payload []byte) (time.Time, error) {
	if !v.roles.hasRole(caller, RoleCurator) {
		return time.Time{}, ErrNotCurator
	}
	sel, err := payloadSelector(payload)
	if err != nil {
		return time.Time{}, err
	}
	delay, ok := v.timelock.delays[sel]
	if !ok {
		return time.Time{}, ErrUnknownSelector
	}
	key := payloadKey(payload)
	if _, exists := v.timelock.pending[key]; exists {
		return time.Time{}, ErrAlreadyScheduled
	}
	scheduledAt := v.now().Add(delay)
	v.timelock.pending[key] = pendingAction{
		payload:     append([]byte(nil), payload...),
		scheduledAt: scheduledAt,
	}
	metrics.TimelockActions.WithLabelValues("submitted").Inc()
	v.emit(EventActionSubmitted, map[string]string{
		"key":          key.Hex(),
		"signature":    v.timelock.names[sel],
		"scheduled_at": scheduledAt.Format(time.RFC3339),
	})
	return scheduledAt, nil
}

// RevokeAction clears a scheduled action without executing it. Curator or
// guardian.
func (v *Vault) RevokeAction(caller common.Address, payload []byte) error {
	if !v.roles.hasRole(caller, RoleCurator) && !v.roles.hasRole(caller, RoleGuardian) {
		return ErrNotCurator
	}
	key := payloadKey(payload)
	if _, ok := v.timelock.pending[key]; !ok {
		return ErrNotScheduled
	}
	delete(v.timelock.pending, key)
	metrics.TimelockActions.WithLabelValues("revoked").Inc()
	v.emit(EventActionRevoked, map[string]string{"key": key.Hex()})
	return nil
}

// timelockConsume is called by each timelocked function with its canonical
// payload. Execution succeeds only for a matured, exactly-matching pending
// action, and consumes it so a replay needs a fresh submit plus full delay.
// State mutation here is rolled back with the rest of the operation if the
// function fails after consuming.
func (v *Vault) timelockConsume(payload []byte) error {
	key := payloadKey(payload)
	p, ok := v.timelock.pending[key]
	if !ok {
		return ErrNotScheduled
	}
	if !bytes.Equal(p.payload, payload) {
		// A keccak collision would be required to get here.
		return ErrNotScheduled
	}
	if v.now().Before(p.scheduledAt) {
		return ErrNotMatured
	}
	delete(v.timelock.pending, key)
	metrics.TimelockActions.WithLabelValues("executed").Inc()
	v.emit(EventActionExecuted, map[string]string{"key": key.Hex()})
	return nil
}

// IncreaseTimelock raises the delay of one timelocked function. The change is
// itself timelocked and strictly monotonic up to the global cap, so governance
// cannot quietly shorten its own cooling-off period.
func (v *Vault) IncreaseTimelock(caller common.Address, signature string, newDelay time.Duration) error {
	if !v.roles.hasRole(caller, RoleCurator) {
		return ErrNotCurator
	}
	return v.run(classAllocation, func() error {
		if err := v.timelockConsume(EncodeIncreaseTimelock(signature, newDelay)); err != nil {
			return err
		}
		sel := selectorOf(signature)
		current, ok := v.timelock.delays[sel]
		if !ok {
			return ErrUnknownSelector
		}
		if newDelay <= current {
			return ErrTimelockDecrease
		}
		if v.timelock.cap > 0 && newDelay > v.timelock.cap {
			return ErrTimelockCap
		}
		v.timelock.delays[sel] = newDelay
		v.emit(EventTimelockRaised, map[string]string{
			"signature": signature,
			"delay":     newDelay.String(),
		})
		return nil
	})
}

// SetMaxSlippage updates the cumulative slippage ceiling. Curator, timelocked.
func (v *Vault) SetMaxSlippage(caller common.Address, d decimal.Decimal) error {
	return v.setParam(caller, EncodeSetMaxSlippage(d), "max_slippage", func() error {
		if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return ErrZeroAmount
		}
		v.maxSlippage = d
		return nil
	})
}

// SetEpochDuration updates the slippage accumulation window. Curator,
// timelocked.
func (v *Vault) SetEpochDuration(caller common.Address, d time.Duration) error {
	return v.setParam(caller, EncodeSetEpochDuration(d), "epoch_duration", func() error {
		if d <= 0 {
			return ErrZeroAmount
		}
		v.epochDuration = d
		return nil
	})
}

func (v *Vault) setParam(caller common.Address, payload []byte, name string, apply func() error) error {
	if !v.roles.hasRole(caller, RoleCurator) {
		return ErrNotCurator
	}
	return v.run(classAllocation, func() error {
		if err := v.timelockConsume(payload); err != nil {
			return err
		}
		if err := apply(); err != nil {
			return err
		}
		v.emit(EventParamChanged, map[string]string{"param": name})
		return nil
	})
}
