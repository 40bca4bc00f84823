package extension

import (
	custody "github.com/xraph/custody"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/wallet"
)

// Option configures the Custody Forge extension.
type Option func(*Extension)

// WithStore sets the store for the custody engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithCustodyOption passes a custody.Option through to the underlying engine.
func WithCustodyOption(opt custody.Option) Option {
	return func(e *Extension) {
		e.custodyOpts = append(e.custodyOpts, opt)
	}
}

// WithWallets sets the wallet backend registry for the engine.
func WithWallets(r *wallet.Registry) Option {
	return func(e *Extension) {
		e.custodyOpts = append(e.custodyOpts, custody.WithWallets(r))
	}
}

// WithPlugin registers a custody plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.custodyOpts = append(e.custodyOpts, custody.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithFeePolicy sets the fee policy for a network.
func WithFeePolicy(network string, fee FeeConfig) Option {
	return func(e *Extension) {
		if e.config.Fees == nil {
			e.config.Fees = map[string]FeeConfig{}
		}
		e.config.Fees[network] = fee
	}
}
