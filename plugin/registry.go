package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/address"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onUserRegistered    []OnUserRegistered
	onAddressCreated    []OnAddressCreated
	onDebitCreated      []OnDebitCreated
	onCreditCreated     []OnCreditCreated
	onTransferCompleted []OnTransferCompleted
	onTransferPending   []OnTransferPending
	onReplayRejected    []OnReplayRejected
	onInsufficientFunds []OnInsufficientFunds
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnUserRegistered); ok {
		r.onUserRegistered = append(r.onUserRegistered, v)
	}
	if v, ok := p.(OnAddressCreated); ok {
		r.onAddressCreated = append(r.onAddressCreated, v)
	}
	if v, ok := p.(OnDebitCreated); ok {
		r.onDebitCreated = append(r.onDebitCreated, v)
	}
	if v, ok := p.(OnCreditCreated); ok {
		r.onCreditCreated = append(r.onCreditCreated, v)
	}
	if v, ok := p.(OnTransferCompleted); ok {
		r.onTransferCompleted = append(r.onTransferCompleted, v)
	}
	if v, ok := p.(OnTransferPending); ok {
		r.onTransferPending = append(r.onTransferPending, v)
	}
	if v, ok := p.(OnReplayRejected); ok {
		r.onReplayRejected = append(r.onReplayRejected, v)
	}
	if v, ok := p.(OnInsufficientFunds); ok {
		r.onInsufficientFunds = append(r.onInsufficientFunds, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnUserRegistered)(nil)).Elem(), "OnUserRegistered")
	checkInterface(reflect.TypeOf((*OnAddressCreated)(nil)).Elem(), "OnAddressCreated")
	checkInterface(reflect.TypeOf((*OnDebitCreated)(nil)).Elem(), "OnDebitCreated")
	checkInterface(reflect.TypeOf((*OnCreditCreated)(nil)).Elem(), "OnCreditCreated")
	checkInterface(reflect.TypeOf((*OnTransferCompleted)(nil)).Elem(), "OnTransferCompleted")
	checkInterface(reflect.TypeOf((*OnTransferPending)(nil)).Elem(), "OnTransferPending")
	checkInterface(reflect.TypeOf((*OnReplayRejected)(nil)).Elem(), "OnReplayRejected")
	checkInterface(reflect.TypeOf((*OnInsufficientFunds)(nil)).Elem(), "OnInsufficientFunds")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitUserRegistered emits a user registered event.
func (r *Registry) EmitUserRegistered(ctx context.Context, user *account.User) {
	r.mu.RLock()
	plugins := r.onUserRegistered
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUserRegistered(ctx, user)
		}); err != nil {
			r.logger.Warn("plugin OnUserRegistered failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAddressCreated emits an address created event.
func (r *Registry) EmitAddressCreated(ctx context.Context, addr *address.Address) {
	r.mu.RLock()
	plugins := r.onAddressCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAddressCreated(ctx, addr)
		}); err != nil {
			r.logger.Warn("plugin OnAddressCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDebitCreated emits a debit created event.
func (r *Registry) EmitDebitCreated(ctx context.Context, d *transfer.Debit) {
	r.mu.RLock()
	plugins := r.onDebitCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDebitCreated(ctx, d)
		}); err != nil {
			r.logger.Warn("plugin OnDebitCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditCreated emits a credit created event.
func (r *Registry) EmitCreditCreated(ctx context.Context, c *transfer.Credit) {
	r.mu.RLock()
	plugins := r.onCreditCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditCreated(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnCreditCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTransferCompleted emits a transfer completed event.
func (r *Registry) EmitTransferCompleted(ctx context.Context, receipt *transfer.Receipt) {
	r.mu.RLock()
	plugins := r.onTransferCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTransferCompleted(ctx, receipt)
		}); err != nil {
			r.logger.Warn("plugin OnTransferCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTransferPending emits a transfer pending event.
func (r *Registry) EmitTransferPending(ctx context.Context, receipt *transfer.Receipt) {
	r.mu.RLock()
	plugins := r.onTransferPending
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTransferPending(ctx, receipt)
		}); err != nil {
			r.logger.Warn("plugin OnTransferPending failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReplayRejected emits a replay rejected event.
func (r *Registry) EmitReplayRejected(ctx context.Context, pubkey string, nonce, lastNonce int64) {
	r.mu.RLock()
	plugins := r.onReplayRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReplayRejected(ctx, pubkey, nonce, lastNonce)
		}); err != nil {
			r.logger.Warn("plugin OnReplayRejected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInsufficientFunds emits an insufficient funds event.
func (r *Registry) EmitInsufficientFunds(ctx context.Context, userID string, requested types.Money) {
	r.mu.RLock()
	plugins := r.onInsufficientFunds
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInsufficientFunds(ctx, userID, requested)
		}); err != nil {
			r.logger.Warn("plugin OnInsufficientFunds failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the transfer pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
