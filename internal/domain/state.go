package domain

// State is the lifecycle phase of a campaign, derived from its flags and schedule.
type State string

const (
	StatePreSale                  State = "pre_sale"
	StateOpen                     State = "open"
	StateEndedUnresolved          State = "ended_unresolved"
	StateCancelled                State = "cancelled"
	StateClosedAwaitingSettlement State = "closed_awaiting_settlement"
	StateSettled                  State = "settled"
)

// Operation names a state-changing entry point on a campaign.
type Operation string

const (
	OpDeposit       Operation = "deposit"
	OpJoin          Operation = "join"
	OpClaim         Operation = "claim"
	OpCancel        Operation = "cancel"
	OpCloseSoftCap  Operation = "close_soft_cap"
	OpWithdraw      Operation = "withdraw"
	OpRecoverTokens Operation = "recover_tokens"
	OpRefund        Operation = "refund"

	// OpCreate is only used for audit and events; creation is not a lifecycle transition.
	OpCreate Operation = "create"
)

// Operations lists every guarded operation in a stable order.
var Operations = []Operation{
	OpDeposit,
	OpJoin,
	OpClaim,
	OpCancel,
	OpCloseSoftCap,
	OpWithdraw,
	OpRecoverTokens,
	OpRefund,
}
