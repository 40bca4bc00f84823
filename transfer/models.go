package transfer

import (
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

type State string

const (
	// StateUnconfirmed means the sender's balance has been decremented but
	// final settlement has not been observed. Unconfirmed debits are
	// resolved out of band, never rolled back.
	StateUnconfirmed State = "unconfirmed"
	StateComplete    State = "complete"
	StateFailed      State = "failed"
)

// Debit is an outgoing ledger entry. Amount is what leaves toward the
// destination; Debited is what the sender's balance lost, which differs
// from Amount by the fee depending on the fee discount mode.
type Debit struct {
	types.Entity
	ID        id.DebitID  `json:"id"`
	UserID    id.UserID   `json:"user_id"`
	Amount    types.Money `json:"amount"`
	Debited   types.Money `json:"debited"`
	Fee       types.Money `json:"fee"`
	Address   string      `json:"address"`
	Currency  string      `json:"currency"`
	Network   string      `json:"network"`
	State     State       `json:"state"`
	Reference string      `json:"reference,omitempty"`
	RefID     string      `json:"ref_id,omitempty"`
}

// Credit is an incoming ledger entry. Credits are terminal: they are
// written only once funds are irrevocably owed to the recipient.
type Credit struct {
	types.Entity
	ID        id.CreditID `json:"id"`
	UserID    id.UserID   `json:"user_id"`
	Amount    types.Money `json:"amount"`
	Address   string      `json:"address"`
	Currency  string      `json:"currency"`
	Network   string      `json:"network"`
	State     State       `json:"state"`
	Reference string      `json:"reference,omitempty"`
	RefID     string      `json:"ref_id,omitempty"`
}

type Outcome string

const (
	// OutcomeCompleted means funds reached their destination: the internal
	// credit was written or the network backend accepted the send.
	OutcomeCompleted Outcome = "completed"
	// OutcomePending means the sender's balance was decremented but final
	// settlement was not observed. The debit stays unconfirmed.
	OutcomePending Outcome = "pending"
)

// Receipt is the result of an accepted transfer. Rejected transfers
// return an error instead and leave no trace in the ledger.
type Receipt struct {
	Outcome Outcome     `json:"outcome"`
	Debit   *Debit      `json:"debit"`
	Credit  *Credit     `json:"credit,omitempty"`
	Debited types.Money `json:"debited"`
	Sent    types.Money `json:"sent"`
	Reason  string      `json:"reason,omitempty"`
}

func (r *Receipt) Completed() bool { return r.Outcome == OutcomeCompleted }
func (r *Receipt) Pending() bool   { return r.Outcome == OutcomePending }

type ListOpts struct {
	Currency string
	Network  string
	State    State
	Limit    int
	Offset   int
}
