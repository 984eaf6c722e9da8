package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospnet/hospnet/internal/domain/accesslog"
	"github.com/hospnet/hospnet/internal/domain/identifier"
)

type mockResolver struct {
	owners map[string]*identifier.Ownership
}

func (r *mockResolver) Resolve(ctx context.Context, code string) (*identifier.Ownership, error) {
	own, ok := r.owners[code]
	if !ok {
		return nil, identifier.ErrUnknownIdentifier
	}
	return own, nil
}

type mockChecker struct {
	usable map[string]bool
}

func (c *mockChecker) IsUsable(ctx context.Context, tenantID, pluginName string) (bool, error) {
	return c.usable[tenantID+"/"+pluginName], nil
}

type mockAppender struct {
	mu      sync.Mutex
	entries []*accesslog.Entry
	fail    bool
}

func (a *mockAppender) Append(ctx context.Context, e *accesslog.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return fmt.Errorf("access log store unavailable")
	}
	a.entries = append(a.entries, e)
	return nil
}

func (a *mockAppender) all() []*accesslog.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries
}

func newTestGate(t *testing.T) (*Gate, *mockAppender, uuid.UUID) {
	t.Helper()
	patientID := uuid.New()
	resolver := &mockResolver{owners: map[string]*identifier.Ownership{
		"X7K2M": {Code: "X7K2M", PatientID: patientID, TenantID: "st_marys"},
	}}
	checker := &mockChecker{usable: map[string]bool{
		"county_general/vitals": true,
	}}
	audit := &mockAppender{}
	return New(resolver, checker, audit, zerolog.Nop()), audit, patientID
}

func testRequest() Request {
	return Request{
		Code:       "X7K2M",
		TenantID:   "county_general",
		UserID:     "dr.adams",
		PluginName: "vitals",
		Action:     accesslog.ActionRead,
		Context:    "ward round",
	}
}

func TestAccess_Success(t *testing.T) {
	g, audit, patientID := newTestGate(t)

	var opPatient uuid.UUID
	result, err := g.Access(context.Background(), testRequest(), func(ctx context.Context, pid uuid.UUID) (interface{}, error) {
		opPatient = pid
		return "vitals-data", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "vitals-data" {
		t.Errorf("op result not returned: %v", result)
	}
	if opPatient != patientID {
		t.Error("op did not receive the resolved patient id")
	}

	entries := audit.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Outcome != accesslog.OutcomeSuccess {
		t.Errorf("expected success outcome, got %s", e.Outcome)
	}
	if e.Code != "X7K2M" || e.TenantID != "county_general" || e.UserID != "dr.adams" || e.PluginName != "vitals" {
		t.Errorf("entry fields wrong: %+v", e)
	}
	if e.PatientID == nil || *e.PatientID != patientID {
		t.Error("entry missing resolved patient id")
	}
}

func TestAccess_NormalizesRawInput(t *testing.T) {
	g, audit, _ := newTestGate(t)

	req := testRequest()
	req.Code = " x7-k2m "
	_, err := g.Access(context.Background(), req, func(ctx context.Context, pid uuid.UUID) (interface{}, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if audit.all()[0].Code != "X7K2M" {
		t.Errorf("expected canonical code in audit entry, got %s", audit.all()[0].Code)
	}
}

func TestAccess_OpFailureStillAudited(t *testing.T) {
	g, audit, _ := newTestGate(t)

	opErr := fmt.Errorf("record locked")
	_, err := g.Access(context.Background(), testRequest(), func(ctx context.Context, pid uuid.UUID) (interface{}, error) {
		return nil, opErr
	})
	if !errors.Is(err, opErr) {
		t.Fatalf("op error not returned unchanged: %v", err)
	}

	entries := audit.all()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Outcome != accesslog.OutcomeFailure {
		t.Errorf("expected failure outcome, got %s", entries[0].Outcome)
	}
	if !strings.Contains(entries[0].Context, "record locked") {
		t.Errorf("failure reason not recorded: %q", entries[0].Context)
	}
}

func TestAccess_InvalidFormat(t *testing.T) {
	g, audit, _ := newTestGate(t)

	opRan := false
	req := testRequest()
	req.Code = "BAD1!"
	_, err := g.Access(context.Background(), req, func(ctx context.Context, pid uuid.UUID) (interface{}, error) {
		opRan = true
		return nil, nil
	})
	if !errors.Is(err, identifier.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	if opRan {
		t.Error("op must not run for malformed identifiers")
	}
	if len(audit.all()) != 0 {
		t.Errorf("malformed input must not produce an audit entry, got %d", len(audit.all()))
	}
}

func TestAccess_UnknownPatientDenied(t *testing.T) {
	g, audit, _ := newTestGate(t)

	opRan := false
	req := testRequest()
	req.Code = "QRSTU"
	_, err := g.Access(context.Background(), req, func(ctx context.Context, pid uuid.UUID) (interface{}, error) {
		opRan = true
		return nil, nil
	})
	if !errors.Is(err, ErrUnknownPatient) {
		t.Fatalf("expected ErrUnknownPatient, got %v", err)
	}
	if opRan {
		t.Error("op must not run for unknown identifiers")
	}

	entries := audit.all()
	if len(entries) != 1 {
		t.Fatalf("expected 1 denial entry, got %d", len(entries))
	}
	if entries[0].Outcome != accesslog.OutcomeDenied {
		t.Errorf("expected denied outcome, got %s", entries[0].Outcome)
	}
	if entries[0].PatientID != nil {
		t.Error("unknown identifier entry must not carry a patient id")
	}
}

func TestAccess_InactivePluginDenied(t *testing.T) {
	g, audit, patientID := newTestGate(t)

	opRan := false
	req := testRequest()
	req.PluginName = "labs" // never activated
	_, err := g.Access(context.Background(), req, func(ctx context.Context, pid uuid.UUID) (interface{}, error) {
		opRan = true
		return nil, nil
	})
	if !errors.Is(err, ErrPluginNotActive) {
		t.Fatalf("expected ErrPluginNotActive, got %v", err)
	}
	if opRan {
		t.Error("op must not run when the plugin is not active")
	}

	entries := audit.all()
	if len(entries) != 1 {
		t.Fatalf("expected 1 denial entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Outcome != accesslog.OutcomeDenied {
		t.Errorf("expected denied outcome, got %s", e.Outcome)
	}
	if e.PatientID == nil || *e.PatientID != patientID {
		t.Error("denial entry should carry the resolved patient id")
	}
	if e.PluginName != "labs" {
		t.Errorf("expected plugin labs in entry, got %s", e.PluginName)
	}
}

func TestAccess_AuditOutageDoesNotFailOperation(t *testing.T) {
	patientID := uuid.New()
	resolver := &mockResolver{owners: map[string]*identifier.Ownership{
		"X7K2M": {Code: "X7K2M", PatientID: patientID, TenantID: "st_marys"},
	}}
	checker := &mockChecker{usable: map[string]bool{"county_general/vitals": true}}
	audit := &mockAppender{fail: true}
	g := New(resolver, checker, audit, zerolog.Nop())

	result, err := g.Access(context.Background(), testRequest(), func(ctx context.Context, pid uuid.UUID) (interface{}, error) {
		return "data", nil
	})
	if err != nil {
		t.Fatalf("audit outage must not fail the operation: %v", err)
	}
	if result != "data" {
		t.Errorf("expected op result, got %v", result)
	}
}

func TestAccess_OneEntryPerCall(t *testing.T) {
	g, audit, _ := newTestGate(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := g.Access(ctx, testRequest(), func(ctx context.Context, pid uuid.UUID) (interface{}, error) {
			return nil, nil
		}); err != nil {
			t.Fatalf("access %d failed: %v", i, err)
		}
	}
	if len(audit.all()) != 5 {
		t.Fatalf("expected 5 entries for 5 calls, got %d", len(audit.all()))
	}
}

func TestAccess_CancelledCallerStillAudits(t *testing.T) {
	g, audit, _ := newTestGate(t)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := g.Access(ctx, testRequest(), func(ctx context.Context, pid uuid.UUID) (interface{}, error) {
		cancel() // caller gives up mid-operation
		return nil, ctx.Err()
	})
	if err == nil {
		t.Fatal("expected the op's cancellation error")
	}
	// The audit append is detached from the request's cancellation.
	if len(audit.all()) != 1 {
		t.Fatalf("expected 1 entry despite cancellation, got %d", len(audit.all()))
	}
	if audit.all()[0].Outcome != accesslog.OutcomeFailure {
		t.Errorf("expected failure outcome, got %s", audit.all()[0].Outcome)
	}
}
