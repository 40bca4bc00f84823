package balance

import (
	"context"

	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

type Store interface {
	Latest(ctx context.Context, userID id.UserID, currency string) (*Balance, error)
	List(ctx context.Context, userID id.UserID) ([]*Balance, error)

	// Credit increments total and available by amount in one atomic unit.
	Credit(ctx context.Context, userID id.UserID, amount types.Money, reference string) (*Balance, error)
}
