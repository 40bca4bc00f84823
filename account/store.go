package account

import (
	"context"

	"github.com/xraph/custody/id"
)

type Store interface {
	Get(ctx context.Context, userID id.UserID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByKey(ctx context.Context, pubkey string) (*User, error)

	// ConsumeNonce atomically advances the key's last_nonce to nonce iff
	// nonce is strictly greater, returning the prior value. The advance is
	// never rolled back by later failures in the same request.
	ConsumeNonce(ctx context.Context, pubkey string, nonce int64) (int64, error)
}
