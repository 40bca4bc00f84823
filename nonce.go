package custody

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/store"
)

// NonceGuard enforces monotonic request nonces per signing key. Every
// guarded request consumes its nonce before any business logic runs; a
// consumed nonce is never handed back, even when the request later
// fails, so a captured envelope cannot be replayed.
type NonceGuard struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
}

// NewNonceGuard creates a guard over the store's nonce state.
func NewNonceGuard(s store.Store, plugins *plugin.Registry, logger *slog.Logger) *NonceGuard {
	return &NonceGuard{
		store:   s,
		plugins: plugins,
		logger:  logger,
	}
}

// Check consumes nonce for pubkey. It returns ErrUnknownIdentity for an
// unregistered key and ErrReplayedNonce when nonce does not exceed the
// key's high-water mark. Under concurrent use of the same nonce exactly
// one caller wins.
func (g *NonceGuard) Check(ctx context.Context, pubkey string, nonce int64) error {
	prior, err := g.store.ConsumeNonce(ctx, pubkey, nonce)
	if err != nil {
		if errors.Is(err, ErrReplayedNonce) {
			g.logger.Warn("replayed nonce rejected",
				"nonce", nonce,
				"last_nonce", prior,
			)
			g.plugins.EmitReplayRejected(ctx, pubkey, nonce, prior)
		}
		return err
	}
	return nil
}
