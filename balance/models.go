package balance

import (
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

// Balance is the authoritative per-currency position of a user.
// Total counts everything owned including unconfirmed inbound funds;
// Available is what may be spent right now. At rest
// 0 <= Available <= Total always holds.
type Balance struct {
	types.Entity
	ID        id.BalanceID `json:"id"`
	UserID    id.UserID    `json:"user_id"`
	Currency  string       `json:"currency"`
	Total     types.Money  `json:"total"`
	Available types.Money  `json:"available"`
	Reference string       `json:"reference,omitempty"`
	Version   int64        `json:"-"`
}

func Zero(userID id.UserID, currency string) *Balance {
	return &Balance{
		Entity:    types.NewEntity(),
		ID:        id.NewBalanceID(),
		UserID:    userID,
		Currency:  currency,
		Total:     types.Zero(currency),
		Available: types.Zero(currency),
	}
}

func (b *Balance) CanSpend(amount types.Money) bool {
	return !b.Available.LessThan(amount)
}
