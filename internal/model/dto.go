package model

// Request bodies for the vault API. Amounts travel as decimal strings in base
// units; addresses and facility IDs are 0x-prefixed hex.

type DepositRequest struct {
	Receiver string `json:"receiver,omitempty"` // defaults to the caller
	Assets   string `json:"assets" binding:"required"`
}

type WithdrawRequest struct {
	Receiver string `json:"receiver,omitempty"`
	Assets   string `json:"assets" binding:"required"`
}

type RedeemRequest struct {
	Receiver string `json:"receiver,omitempty"`
	Shares   string `json:"shares" binding:"required"`
}

type AllocateRequest struct {
	Token   string `json:"token" binding:"required"`
	Amount  string `json:"amount" binding:"required"` // base-currency amount to spend
	Swapper string `json:"swapper" binding:"required"`
	Routing string `json:"routing,omitempty"` // opaque hex, forwarded to the executor
}

type DeallocateRequest struct {
	Token   string `json:"token" binding:"required"`
	Amount  string `json:"amount" binding:"required"` // token amount to sell back
	Swapper string `json:"swapper" binding:"required"`
	Routing string `json:"routing,omitempty"`
}

type ReallocateRequest struct {
	FromToken string `json:"from_token" binding:"required"`
	ToToken   string `json:"to_token" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Swapper   string `json:"swapper" binding:"required"`
	Routing   string `json:"routing,omitempty"`
}

type FacilityAmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type RepayRequest struct {
	// Empty amount repays the whole debt.
	Amount string `json:"amount,omitempty"`
}

type WindRequest struct {
	LoanAmount string `json:"loan_amount" binding:"required"`
	Lender     string `json:"lender" binding:"required"`
	Swapper    string `json:"swapper" binding:"required"`
	Routing    string `json:"routing,omitempty"`
}

type UnwindRequest struct {
	// Empty repay amount clears the whole debt; empty collateral amount
	// releases the whole collateral balance.
	RepayAmount      string `json:"repay_amount,omitempty"`
	CollateralAmount string `json:"collateral_amount,omitempty"`
	Lender           string `json:"lender" binding:"required"`
	Swapper          string `json:"swapper" binding:"required"`
	Routing          string `json:"routing,omitempty"`
}

type ShiftRequest struct {
	ToFacility string `json:"to_facility" binding:"required"`
	Lender     string `json:"lender" binding:"required"`
}

// ActionRequest names a timelocked call plus its arguments. The service
// re-encodes it into the canonical payload, so submit and execute can never
// disagree on the bytes.
type ActionRequest struct {
	Action string            `json:"action" binding:"required"`
	Params map[string]string `json:"params,omitempty"`
}

type RoleRequest struct {
	Role    string `json:"role" binding:"required"`
	Account string `json:"account" binding:"required"`
}

type TransferOwnerRequest struct {
	Account string `json:"account" binding:"required"`
}

// Views returned by the read endpoints.

type VaultStatus struct {
	Name            string            `json:"name"`
	Symbol          string            `json:"symbol"`
	BaseToken       string            `json:"base_token"`
	TotalValue      string            `json:"total_value,omitempty"`
	ValueInFlight   bool              `json:"value_in_flight,omitempty"`
	TotalShares     string            `json:"total_shares"`
	MaxSlippage     string            `json:"max_slippage"`
	SlippageUsed    string            `json:"slippage_used"`
	EpochStart      string            `json:"epoch_start"`
	Shutdown        bool              `json:"shutdown"`
	ShutdownAt      string            `json:"shutdown_at,omitempty"`
	Tokens          []TokenHolding    `json:"tokens"`
	Facilities      []FacilityView    `json:"facilities"`
	PendingActions  int               `json:"pending_actions"`
	Roles           map[string]string `json:"roles"`
}

type TokenHolding struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
	Value   string `json:"value,omitempty"`
}

type FacilityView struct {
	ID              string `json:"id"`
	Adapter         string `json:"adapter"`
	CollateralToken string `json:"collateral_token,omitempty"`
	DebtToken       string `json:"debt_token,omitempty"`
	Collateral      string `json:"collateral"`
	Debt            string `json:"debt"`
	LoanToValue     string `json:"loan_to_value"`
}

type DepositResponse struct {
	Shares string `json:"shares"`
}

type WithdrawResponse struct {
	Shares string `json:"shares_burned"`
}

type RedeemResponse struct {
	Assets string `json:"assets"`
}

type RepayResponse struct {
	Repaid string `json:"repaid"`
}

type FacilityCreateResponse struct {
	ID string `json:"id"`
}

type ActionSubmitResponse struct {
	Key         string `json:"key"`
	ScheduledAt string `json:"scheduled_at"`
}
