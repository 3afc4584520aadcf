package vault

// Engine event types, fanned out to the audit journal and event stream.
const (
	EventOwnerChanged    = "box.owner_changed"
	EventCuratorChanged  = "box.curator_changed"
	EventGuardianChanged = "box.guardian_changed"
	EventRoleGranted     = "box.role_granted"
	EventRoleRevoked     = "box.role_revoked"

	EventTokenAdded   = "box.token_added"
	EventTokenRemoved = "box.token_removed"

	EventDeposit  = "box.deposit"
	EventWithdraw = "box.withdraw"

	EventAllocated   = "box.allocated"
	EventDeallocated = "box.deallocated"
	EventReallocated = "box.reallocated"

	EventAdapterAdded       = "box.funding_adapter_added"
	EventAdapterRemoved     = "box.funding_adapter_removed"
	EventFacilityAdded      = "box.facility_added"
	EventFacilityRemoved    = "box.facility_removed"
	EventCollateralBound    = "box.collateral_bound"
	EventCollateralUnbound  = "box.collateral_unbound"
	EventDebtBound          = "box.debt_bound"
	EventDebtUnbound        = "box.debt_unbound"
	EventCollateralSupplied = "box.collateral_supplied"
	EventCollateralWithdrawn = "box.collateral_withdrawn"
	EventBorrowed           = "box.borrowed"
	EventRepaid             = "box.repaid"

	EventWound   = "box.wound"
	EventUnwound = "box.unwound"
	EventShifted = "box.shifted"

	EventActionSubmitted = "box.action_submitted"
	EventActionExecuted  = "box.action_executed"
	EventActionRevoked   = "box.action_revoked"
	EventTimelockRaised  = "box.timelock_raised"

	EventShutdown  = "box.shutdown"
	EventRecovered = "box.recovered"

	EventParamChanged = "box.param_changed"
)
