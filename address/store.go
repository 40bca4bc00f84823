package address

import (
	"context"

	"github.com/xraph/custody/id"
)

type Store interface {
	Create(ctx context.Context, a *Address) error
	Get(ctx context.Context, value string, currency string) (*Address, error)
	List(ctx context.Context, userID id.UserID, opts ListOpts) ([]*Address, error)
}

type ListOpts struct {
	Value    string
	Currency string
	Network  string
	State    State
	Limit    int
	Offset   int
}
