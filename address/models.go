package address

import (
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

type State string

const (
	StateActive   State = "active"
	StateDisabled State = "disabled"
)

// Address is a receiving endpoint provisioned for a user on a network.
// Value is unique per currency; inbound funds to a known Value route
// internally without touching the network backend.
type Address struct {
	types.Entity
	ID       id.AddressID `json:"id"`
	UserID   id.UserID    `json:"user_id"`
	Value    string       `json:"value"`
	Currency string       `json:"currency"`
	Network  string       `json:"network"`
	State    State        `json:"state"`
}
