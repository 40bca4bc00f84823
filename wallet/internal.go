package wallet

import (
	"context"
	"fmt"

	"go.jetify.com/typeid/v2"

	"github.com/xraph/custody/types"
)

// internalBackend serves the reserved "internal" network. Transfers on
// it settle inside the ledger, so SendToAddress is never reached.
type internalBackend struct {
	currency string
}

// Internal returns a backend for the reserved internal network in the
// given currency. Internal addresses are opaque tokens minted locally.
func Internal(currency string) Backend {
	return &internalBackend{currency: currency}
}

func (b *internalBackend) Network() string  { return NetworkInternal }
func (b *internalBackend) Currency() string { return b.currency }

func (b *internalBackend) GetNewAddress(_ context.Context) (string, error) {
	tid, err := typeid.Generate("iadr")
	if err != nil {
		return "", fmt.Errorf("wallet: mint internal address: %w", err)
	}
	return tid.String(), nil
}

func (b *internalBackend) SendToAddress(_ context.Context, addr string, _ types.Money) (string, error) {
	// Internal routing credits the ledger directly. Reaching here means
	// the destination was not a known address.
	return "", fmt.Errorf("wallet: internal network cannot send to unknown address %q", addr)
}
