package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospnet/hospnet/internal/domain/accesslog"
	"github.com/hospnet/hospnet/internal/domain/identifier"
)

var (
	// ErrUnknownPatient indicates an identifier with no owner: bad input or
	// stale data from the caller.
	ErrUnknownPatient = errors.New("unknown patient identifier")
	// ErrPluginNotActive indicates the tenant has not activated the plugin.
	ErrPluginNotActive = errors.New("plugin not active for tenant")
)

// Resolver resolves an identifier code to its ownership.
type Resolver interface {
	Resolve(ctx context.Context, code string) (*identifier.Ownership, error)
}

// UsabilityChecker answers whether a plugin is usable by a tenant's staff.
type UsabilityChecker interface {
	IsUsable(ctx context.Context, tenantID, pluginName string) (bool, error)
}

// Appender appends one access-log entry.
type Appender interface {
	Append(ctx context.Context, e *accesslog.Entry) error
}

// Request identifies one gated touch of a patient record.
type Request struct {
	Code       string
	TenantID   string
	UserID     string
	PluginName string
	Action     accesslog.Action
	// Context is free-form caller context recorded in the audit entry.
	Context string
}

// Op is the caller-supplied read/write against the patient record, executed
// only after the gate's checks pass. The gate hands it the resolved patient
// id; the op owns its own locking and transactions.
type Op func(ctx context.Context, patientID uuid.UUID) (interface{}, error)

// Gate is the mandatory choke point for every plugin-initiated touch of a
// patient record. Cross-tenant identifier resolution happens only here, and
// every touch that reaches the record accessor is audited — including
// failures. Audit durability is best-effort relative to the primary
// operation: an append failure is reported on the operational log channel
// and never converts a successful operation into a failure.
type Gate struct {
	identifiers Resolver
	ledger      UsabilityChecker
	audit       Appender
	logger      zerolog.Logger
}

func New(identifiers Resolver, ledger UsabilityChecker, audit Appender, logger zerolog.Logger) *Gate {
	return &Gate{
		identifiers: identifiers,
		ledger:      ledger,
		audit:       audit,
		logger:      logger,
	}
}

// Access validates the identifier, resolves it, checks the tenant's
// activation of the plugin, runs op, audits, and returns op's outcome
// unchanged. Denials (unknown patient, inactive plugin) are audited as
// denials and op is never executed; a malformed identifier produces no
// entry because there is no canonical code to record it under.
func (g *Gate) Access(ctx context.Context, req Request, op Op) (interface{}, error) {
	code, err := identifier.Normalize(req.Code)
	if err != nil {
		return nil, err
	}

	own, err := g.identifiers.Resolve(ctx, code)
	if errors.Is(err, identifier.ErrUnknownIdentifier) {
		g.append(ctx, code, nil, req, accesslog.OutcomeDenied, "unknown patient identifier")
		return nil, ErrUnknownPatient
	}
	if err != nil {
		return nil, fmt.Errorf("resolve identifier: %w", err)
	}

	usable, err := g.ledger.IsUsable(ctx, req.TenantID, req.PluginName)
	if err != nil {
		return nil, fmt.Errorf("check plugin activation: %w", err)
	}
	if !usable {
		g.append(ctx, code, &own.PatientID, req, accesslog.OutcomeDenied, "plugin not active for tenant")
		return nil, ErrPluginNotActive
	}

	result, opErr := op(ctx, own.PatientID)

	outcome := accesslog.OutcomeSuccess
	auditCtx := req.Context
	if opErr != nil {
		// The failure is loggable context, never a reason to skip logging.
		outcome = accesslog.OutcomeFailure
		if auditCtx != "" {
			auditCtx += "; "
		}
		auditCtx += opErr.Error()
	}
	g.append(ctx, code, &own.PatientID, req, outcome, auditCtx)

	return result, opErr
}

// appendTimeout bounds the audit write so a slow audit store cannot hold the
// primary operation's response hostage.
const appendTimeout = 5 * time.Second

func (g *Gate) append(ctx context.Context, code string, patientID *uuid.UUID, req Request, outcome accesslog.Outcome, auditCtx string) {
	entry := &accesslog.Entry{
		Code:       code,
		PatientID:  patientID,
		TenantID:   req.TenantID,
		UserID:     req.UserID,
		PluginName: req.PluginName,
		Action:     req.Action,
		Outcome:    outcome,
		Context:    auditCtx,
	}

	// Detach from the request's cancellation: the entry should still land
	// when the caller's deadline expired during the operation itself.
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancel()

	if err := g.audit.Append(appendCtx, entry); err != nil {
		g.logger.Error().Err(err).
			Str("type", "audit_write_failed").
			Str("code", code).
			Str("tenant_id", req.TenantID).
			Str("plugin", req.PluginName).
			Str("action", string(req.Action)).
			Str("outcome", string(outcome)).
			Msg("access log append failed")
	}
}
