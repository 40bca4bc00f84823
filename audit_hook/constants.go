package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionUserRegistered = "user.registered"
	ActionKeyAdded       = "key.added"

	// Address actions
	ActionAddressCreated = "address.created"

	// Transfer actions
	ActionDebitCreated      = "debit.created"
	ActionCreditCreated     = "credit.created"
	ActionTransferCompleted = "transfer.completed"
	ActionTransferPending   = "transfer.pending"

	// Rejection actions
	ActionReplayRejected    = "replay.rejected"
	ActionInsufficientFunds = "funds.insufficient"
)

// Resource constants for audit events.
const (
	ResourceUser     = "user"
	ResourceKey      = "key"
	ResourceAddress  = "address"
	ResourceDebit    = "debit"
	ResourceCredit   = "credit"
	ResourceTransfer = "transfer"
)

// Category constants for audit events.
const (
	CategoryAccount  = "account"
	CategoryAuth     = "auth"
	CategoryLedger   = "ledger"
	CategoryTransfer = "transfer"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
