package vault

import "errors"

var (
	// Authorization.
	ErrNotOwner     = errors.New("vault: caller is not owner")
	ErrNotCurator   = errors.New("vault: caller is not curator")
	ErrNotGuardian  = errors.New("vault: caller is not guardian")
	ErrNotAllocator = errors.New("vault: caller is not allocator")
	ErrNotFeeder    = errors.New("vault: caller is not feeder")

	// Input validation.
	ErrZeroAmount        = errors.New("vault: amount must be positive")
	ErrNilAdapter        = errors.New("vault: adapter must not be nil")
	ErrTokenNotListed    = errors.New("vault: token not whitelisted")
	ErrTokenListed       = errors.New("vault: token already whitelisted")
	ErrTokenLimit        = errors.New("vault: token whitelist is full")
	ErrMissingPrice      = errors.New("vault: no price source for token")
	ErrZeroAddress       = errors.New("vault: zero address")
	ErrUnknownAdapter    = errors.New("vault: funding adapter not registered")
	ErrAdapterRegistered = errors.New("vault: funding adapter already registered")

	// Accounting invariants.
	ErrOverspent         = errors.New("vault: swap adapter overspent authorization")
	ErrAllocationShort   = errors.New("vault: swap output below minimum acceptable")
	ErrSlippageBudget    = errors.New("vault: cumulative slippage budget exceeded")
	ErrInsufficientValue = errors.New("vault: insufficient balance")
	ErrValuationInFlight = errors.New("vault: live valuation unavailable during flash operation")
	ErrZeroValue         = errors.New("vault: total value is zero while shares are outstanding")
	ErrFlashNotRepaid    = errors.New("vault: flash loan not fully repaid")

	// Governance / timelock.
	ErrNotScheduled      = errors.New("vault: action not scheduled")
	ErrNotMatured        = errors.New("vault: timelock not yet elapsed")
	ErrAlreadyScheduled  = errors.New("vault: action already scheduled")
	ErrUnknownSelector   = errors.New("vault: unknown function selector")
	ErrTimelockDecrease  = errors.New("vault: timelock may only increase")
	ErrTimelockCap       = errors.New("vault: timelock exceeds global cap")
	ErrPayloadTooShort   = errors.New("vault: payload shorter than a selector")

	// Lifecycle.
	ErrShutdown           = errors.New("vault: operation unavailable while shut down")
	ErrNotShutdown        = errors.New("vault: vault is not shut down")
	ErrAlreadyShutdown    = errors.New("vault: vault already shut down")
	ErrTokenInUse         = errors.New("vault: token still held or referenced by a facility")
	ErrFacilityInUse      = errors.New("vault: facility still has balance or bound tokens")
	ErrFacilityNotFound   = errors.New("vault: facility not found")
	ErrFacilityExists     = errors.New("vault: facility already exists")
	ErrFacilityUnbound    = errors.New("vault: facility has no bound collateral or debt token")
	ErrAdapterInUse       = errors.New("vault: funding adapter still referenced by a facility")
	ErrReentrancy         = errors.New("vault: reentrant call rejected")
	ErrFlashInFlight      = errors.New("vault: flash composition already in flight")
	ErrCollateralBound    = errors.New("vault: collateral token still bound with balance")
	ErrDebtBound          = errors.New("vault: debt token still bound with balance")
	ErrCollateralMismatch = errors.New("vault: facilities have different collateral tokens")
)
