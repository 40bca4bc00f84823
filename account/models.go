package account

import (
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

type User struct {
	types.Entity
	ID       id.UserID `json:"id"`
	Username string    `json:"username"`
	Active   bool      `json:"active"`
	Keys     []UserKey `json:"keys,omitempty"`
}

// UserKey binds a public signing key to a user. LastNonce is the
// high-water mark for replay protection; it only ever moves forward.
type UserKey struct {
	types.Entity
	ID        id.UserKeyID `json:"id"`
	UserID    id.UserID    `json:"user_id"`
	Key       string       `json:"key"`
	LastNonce int64        `json:"last_nonce"`
}

func (u *User) FindKey(pubkey string) *UserKey {
	for i := range u.Keys {
		if u.Keys[i].Key == pubkey {
			return &u.Keys[i]
		}
	}
	return nil
}
