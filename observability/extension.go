// Package observability provides a metrics extension for Custody that records
// lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/address"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnUserRegistered    = (*MetricsExtension)(nil)
	_ plugin.OnAddressCreated    = (*MetricsExtension)(nil)
	_ plugin.OnDebitCreated      = (*MetricsExtension)(nil)
	_ plugin.OnCreditCreated     = (*MetricsExtension)(nil)
	_ plugin.OnTransferCompleted = (*MetricsExtension)(nil)
	_ plugin.OnTransferPending   = (*MetricsExtension)(nil)
	_ plugin.OnReplayRejected    = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientFunds = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Custody plugin to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	UsersRegistered  Counter
	AddressesCreated Counter

	// Ledger metrics
	DebitsCreated  Counter
	CreditsCreated Counter
	DebitAmount    Histogram
	FeeAmount      Histogram

	// Transfer metrics
	TransfersCompleted Counter
	TransfersPending   Counter
	TransfersInternal  Counter
	TransfersExternal  Counter

	// Rejection metrics
	ReplaysRejected Counter
	FundsRejections Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Account metrics
		UsersRegistered:  factory.Counter("custody.user.registered"),
		AddressesCreated: factory.Counter("custody.address.created"),

		// Ledger metrics
		DebitsCreated:  factory.Counter("custody.debit.created"),
		CreditsCreated: factory.Counter("custody.credit.created"),
		DebitAmount:    factory.Histogram("custody.debit.amount"),
		FeeAmount:      factory.Histogram("custody.debit.fee"),

		// Transfer metrics
		TransfersCompleted: factory.Counter("custody.transfer.completed"),
		TransfersPending:   factory.Counter("custody.transfer.pending"),
		TransfersInternal:  factory.Counter("custody.transfer.internal"),
		TransfersExternal:  factory.Counter("custody.transfer.external"),

		// Rejection metrics
		ReplaysRejected: factory.Counter("custody.replay.rejected"),
		FundsRejections: factory.Counter("custody.funds.insufficient"),

		// Error metrics
		StoreErrors:  factory.Counter("custody.store.errors"),
		PluginErrors: factory.Counter("custody.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnUserRegistered implements plugin.OnUserRegistered.
func (m *MetricsExtension) OnUserRegistered(_ context.Context, _ *account.User) error {
	m.UsersRegistered.Inc()
	return nil
}

// OnAddressCreated implements plugin.OnAddressCreated.
func (m *MetricsExtension) OnAddressCreated(_ context.Context, _ *address.Address) error {
	m.AddressesCreated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Transfer lifecycle hooks
// ──────────────────────────────────────────────────

// OnDebitCreated implements plugin.OnDebitCreated.
func (m *MetricsExtension) OnDebitCreated(_ context.Context, d *transfer.Debit) error {
	m.DebitsCreated.Inc()
	m.DebitAmount.Observe(float64(d.Debited.Amount))
	m.FeeAmount.Observe(float64(d.Fee.Amount))
	return nil
}

// OnCreditCreated implements plugin.OnCreditCreated.
func (m *MetricsExtension) OnCreditCreated(_ context.Context, _ *transfer.Credit) error {
	m.CreditsCreated.Inc()
	return nil
}

// OnTransferCompleted implements plugin.OnTransferCompleted.
func (m *MetricsExtension) OnTransferCompleted(_ context.Context, r *transfer.Receipt) error {
	m.TransfersCompleted.Inc()
	if r.Credit != nil {
		m.TransfersInternal.Inc()
	} else {
		m.TransfersExternal.Inc()
	}
	return nil
}

// OnTransferPending implements plugin.OnTransferPending.
func (m *MetricsExtension) OnTransferPending(_ context.Context, _ *transfer.Receipt) error {
	m.TransfersPending.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Rejection hooks
// ──────────────────────────────────────────────────

// OnReplayRejected implements plugin.OnReplayRejected.
func (m *MetricsExtension) OnReplayRejected(_ context.Context, _ string, _, _ int64) error {
	m.ReplaysRejected.Inc()
	return nil
}

// OnInsufficientFunds implements plugin.OnInsufficientFunds.
func (m *MetricsExtension) OnInsufficientFunds(_ context.Context, _ string, _ types.Money) error {
	m.FundsRejections.Inc()
	return nil
}
