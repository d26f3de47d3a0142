package audit

import (
	"context"
	"testing"
	"time"

	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/store"
)

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecorder_Record(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := NewRecorder()
	fixed := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	old := &models.GPAccount{ID: "g1", GPUsername: "ops", GPPassword: "secret", Status: models.GPAccountActive}
	updated := *old
	updated.Status = models.GPAccountSuspended

	err := s.InTx(ctx, func(tx store.Store) error {
		return r.Record(ctx, tx, Change{
			Table: "gp_accounts", EntityType: "gp_account", EntityID: "g1", EntityName: "ops",
			Operation: models.OpUpdate, Old: old, New: &updated, Actor: "admin@example.com",
		})
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	logs, total, err := s.ListAuditLogs(ctx, models.AuditLogFilter{RecordID: "g1"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("expected 1 audit log, got %d", total)
	}
	entry := logs[0]
	if entry.Operation != models.OpUpdate || entry.TableName != "gp_accounts" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.OldValues["gp_password"] != redacted || entry.NewValues["gp_password"] != redacted {
		t.Errorf("password not redacted: old=%v new=%v", entry.OldValues["gp_password"], entry.NewValues["gp_password"])
	}
	if entry.NewValues["status"] != "Suspended" {
		t.Errorf("expected new status Suspended, got %v", entry.NewValues["status"])
	}
	if !entry.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", entry.Timestamp, fixed)
	}

	activity, err := s.ListActivityLogs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(activity) != 1 {
		t.Fatalf("expected 1 activity log, got %d", len(activity))
	}
	if activity[0].Action != "GP Account Updated" {
		t.Errorf("action = %q", activity[0].Action)
	}
	if activity[0].Severity != models.SeverityInfo {
		t.Errorf("severity = %q", activity[0].Severity)
	}
	if activity[0].User != "admin@example.com" {
		t.Errorf("user = %q", activity[0].User)
	}
}

func TestRecorder_CreateHasNoOldValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := NewRecorder()

	var none *models.VM
	err := r.Record(ctx, s, Change{
		Table: "vms", EntityType: "vm", EntityID: "v1", EntityName: "web",
		Operation: models.OpCreate, Old: none, New: &models.VM{ID: "v1", VMName: "web"},
	})
	if err != nil {
		t.Fatal(err)
	}
	logs, _, _ := s.ListAuditLogs(ctx, models.AuditLogFilter{})
	if logs[0].OldValues != nil {
		t.Errorf("expected no old values, got %v", logs[0].OldValues)
	}
	if logs[0].NewValues["vm_name"] != "web" {
		t.Errorf("new values = %v", logs[0].NewValues)
	}
	activity, _ := s.ListActivityLogs(ctx, 1)
	if activity[0].Details != "web created by system" {
		t.Errorf("details = %q", activity[0].Details)
	}
}

func TestSeverityAndAction(t *testing.T) {
	tests := []struct {
		entity   string
		op       models.AuditOperation
		action   string
		severity models.Severity
	}{
		{"vm", models.OpCreate, "VM Created", models.SeveritySuccess},
		{"customer", models.OpDelete, "Customer Deleted", models.SeverityWarning},
		{"node", models.OpUpdate, "Node Updated", models.SeverityInfo},
		{"widget", models.OpCreate, "widget Created", models.SeveritySuccess},
	}
	for _, tc := range tests {
		if got := Action(tc.entity, tc.op); got != tc.action {
			t.Errorf("Action(%s, %s) = %q, want %q", tc.entity, tc.op, got, tc.action)
		}
		if got := SeverityFor(tc.op); got != tc.severity {
			t.Errorf("SeverityFor(%s) = %q, want %q", tc.op, got, tc.severity)
		}
	}
}
