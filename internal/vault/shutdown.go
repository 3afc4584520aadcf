package vault

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/boxfi/boxd/internal/pkg/logger"
)

// shutdownCeiling is the hard upper bound the deallocation tolerance ramps
// toward during wind-down.
var shutdownCeiling = decimal.RequireFromString("0.10")

type shutdownState struct {
	active           bool
	at               time.Time
	warmup           time.Duration
	slippageDuration time.Duration
}

// IsShutdown reports whether the guardian has shut the vault down.
func (v *Vault) IsShutdown() bool { return v.shutdown.active }

// ShutdownAt returns the shutdown timestamp; zero when not shut down.
func (v *Vault) ShutdownAt() time.Time { return v.shutdown.at }

// Shutdown puts the vault into emergency mode: deposits, allocations and new
// leverage are disabled, and after the warmup delay deallocation opens to any
// caller with a time-escalating tolerance. Guardian only; rejects a double
// shutdown so the escalation clock cannot be restarted.
func (v *Vault) Shutdown(caller common.Address) error {
	if !v.roles.hasRole(caller, RoleGuardian) {
		return ErrNotGuardian
	}
	if v.shutdown.active {
		return ErrAlreadyShutdown
	}
	v.shutdown.active = true
	v.shutdown.at = v.now()
	logger.Warn("vault shut down", "at", v.shutdown.at)
	v.emit(EventShutdown, map[string]string{"at": v.shutdown.at.Format(time.RFC3339)})
	return nil
}

// Recover returns a shut-down vault to normal operation. Deallocations that
// already happened during wind-down are not undone.
func (v *Vault) Recover(caller common.Address) error {
	if !v.roles.hasRole(caller, RoleGuardian) {
		return ErrNotGuardian
	}
	if !v.shutdown.active {
		return ErrNotShutdown
	}
	v.shutdown.active = false
	v.shutdown.at = time.Time{}
	logger.Info("vault recovered from shutdown")
	v.emit(EventRecovered, nil)
	return nil
}

// inWinddown reports whether the post-shutdown warmup has elapsed, which is
// when deallocation becomes permissionless.
func (v *Vault) inWinddown(now time.Time) bool {
	return v.shutdown.active && !now.Before(v.shutdown.at.Add(v.shutdown.warmup))
}

// deallocationTolerance returns the slippage tolerance for deallocation at
// now. Normal mode and warmup use the static maximum; during wind-down the
// tolerance rises linearly from that maximum to the ceiling over the
// configured escalation window, then stays at the ceiling.
func (v *Vault) deallocationTolerance(now time.Time) decimal.Decimal {
	if !v.inWinddown(now) {
		return v.maxSlippage
	}
	rampStart := v.shutdown.at.Add(v.shutdown.warmup)
	if v.shutdown.slippageDuration <= 0 {
		return shutdownCeiling
	}
	elapsed := now.Sub(rampStart)
	if elapsed >= v.shutdown.slippageDuration {
		return shutdownCeiling
	}
	span := shutdownCeiling.Sub(v.maxSlippage)
	frac := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(v.shutdown.slippageDuration)))
	return v.maxSlippage.Add(span.Mul(frac))
}
