// Package audithook bridges Custody lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/address"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnUserRegistered    = (*Extension)(nil)
	_ plugin.OnAddressCreated    = (*Extension)(nil)
	_ plugin.OnDebitCreated      = (*Extension)(nil)
	_ plugin.OnCreditCreated     = (*Extension)(nil)
	_ plugin.OnTransferCompleted = (*Extension)(nil)
	_ plugin.OnTransferPending   = (*Extension)(nil)
	_ plugin.OnReplayRejected    = (*Extension)(nil)
	_ plugin.OnInsufficientFunds = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Custody lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnUserRegistered implements plugin.OnUserRegistered.
func (e *Extension) OnUserRegistered(ctx context.Context, user *account.User) error {
	return e.record(ctx, ActionUserRegistered, SeverityInfo, OutcomeSuccess,
		ResourceUser, user.ID.String(), CategoryAccount, nil,
		"username", user.Username,
		"keys", len(user.Keys),
	)
}

// OnAddressCreated implements plugin.OnAddressCreated.
func (e *Extension) OnAddressCreated(ctx context.Context, addr *address.Address) error {
	return e.record(ctx, ActionAddressCreated, SeverityInfo, OutcomeSuccess,
		ResourceAddress, addr.ID.String(), CategoryAccount, nil,
		"user_id", addr.UserID.String(),
		"network", addr.Network,
		"currency", addr.Currency,
	)
}

// ──────────────────────────────────────────────────
// Transfer lifecycle hooks
// ──────────────────────────────────────────────────

// OnDebitCreated implements plugin.OnDebitCreated.
func (e *Extension) OnDebitCreated(ctx context.Context, d *transfer.Debit) error {
	return e.record(ctx, ActionDebitCreated, SeverityInfo, OutcomeSuccess,
		ResourceDebit, d.ID.String(), CategoryLedger, nil,
		"user_id", d.UserID.String(),
		"amount", d.Amount.String(),
		"debited", d.Debited.String(),
		"fee", d.Fee.String(),
		"network", d.Network,
	)
}

// OnCreditCreated implements plugin.OnCreditCreated.
func (e *Extension) OnCreditCreated(ctx context.Context, c *transfer.Credit) error {
	return e.record(ctx, ActionCreditCreated, SeverityInfo, OutcomeSuccess,
		ResourceCredit, c.ID.String(), CategoryLedger, nil,
		"user_id", c.UserID.String(),
		"amount", c.Amount.String(),
		"network", c.Network,
	)
}

// OnTransferCompleted implements plugin.OnTransferCompleted.
func (e *Extension) OnTransferCompleted(ctx context.Context, r *transfer.Receipt) error {
	return e.record(ctx, ActionTransferCompleted, SeverityInfo, OutcomeSuccess,
		ResourceTransfer, r.Debit.ID.String(), CategoryTransfer, nil,
		"user_id", r.Debit.UserID.String(),
		"sent", r.Sent.String(),
		"debited", r.Debited.String(),
		"network", r.Debit.Network,
		"internal", r.Credit != nil,
	)
}

// OnTransferPending implements plugin.OnTransferPending.
func (e *Extension) OnTransferPending(ctx context.Context, r *transfer.Receipt) error {
	return e.record(ctx, ActionTransferPending, SeverityWarning, OutcomePartial,
		ResourceTransfer, r.Debit.ID.String(), CategoryTransfer, nil,
		"user_id", r.Debit.UserID.String(),
		"debited", r.Debited.String(),
		"network", r.Debit.Network,
		"pending_reason", r.Reason,
	)
}

// ──────────────────────────────────────────────────
// Rejection hooks
// ──────────────────────────────────────────────────

// OnReplayRejected implements plugin.OnReplayRejected.
func (e *Extension) OnReplayRejected(ctx context.Context, pubkey string, nonce, lastNonce int64) error {
	return e.record(ctx, ActionReplayRejected, SeverityWarning, OutcomeFailure,
		ResourceKey, "", CategoryAuth, nil,
		"pubkey", pubkey,
		"nonce", nonce,
		"last_nonce", lastNonce,
	)
}

// OnInsufficientFunds implements plugin.OnInsufficientFunds.
func (e *Extension) OnInsufficientFunds(ctx context.Context, userID string, requested types.Money) error {
	return e.record(ctx, ActionInsufficientFunds, SeverityWarning, OutcomeFailure,
		ResourceTransfer, userID, CategoryTransfer, nil,
		"user_id", userID,
		"requested", requested.String(),
		"currency", requested.Currency,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
