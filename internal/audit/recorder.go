// Package audit writes the audit trail and activity feed for every change
// made through the inventory service.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/store"
)

const redacted = "***"

// secretFields are replaced before values are written to the audit trail.
var secretFields = []string{"gp_password", "password", "password_hash"}

// Change describes one mutation of one record.
type Change struct {
	Table      string
	EntityType string
	EntityID   string
	EntityName string
	Operation  models.AuditOperation
	Old        any
	New        any
	Actor      string
}

// Recorder appends audit and activity entries. It holds no state; the store
// passed to Record decides which transaction the entries land in.
type Recorder struct {
	now func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: func() time.Time { return time.Now().UTC() }}
}

// Record writes one AuditLog and one ActivityLog for c.
func (r *Recorder) Record(ctx context.Context, tx store.Store, c Change) error {
	ts := r.now()
	oldValues, err := toMap(c.Old)
	if err != nil {
		return fmt.Errorf("encode old values: %w", err)
	}
	newValues, err := toMap(c.New)
	if err != nil {
		return fmt.Errorf("encode new values: %w", err)
	}

	entry := &models.AuditLog{
		TableName:   c.Table,
		Operation:   c.Operation,
		RecordID:    c.EntityID,
		OldValues:   oldValues,
		NewValues:   newValues,
		ChangedBy:   c.Actor,
		Timestamp:   ts,
		Description: fmt.Sprintf("%s %s %s", c.Operation, c.Table, c.EntityID),
	}
	if err := tx.CreateAuditLog(ctx, entry); err != nil {
		return err
	}

	activity := &models.ActivityLog{
		Action:     Action(c.EntityType, c.Operation),
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		EntityName: c.EntityName,
		User:       c.Actor,
		Timestamp:  ts,
		Details:    details(c),
		Severity:   SeverityFor(c.Operation),
	}
	return tx.CreateActivityLog(ctx, activity)
}

// Action renders the activity title, e.g. "VM Created".
func Action(entityType string, op models.AuditOperation) string {
	label := entityLabels[entityType]
	if label == "" {
		label = entityType
	}
	switch op {
	case models.OpCreate:
		return label + " Created"
	case models.OpUpdate:
		return label + " Updated"
	case models.OpDelete:
		return label + " Deleted"
	}
	return label + " Changed"
}

var entityLabels = map[string]string{
	"vm":         "VM",
	"customer":   "Customer",
	"contact":    "Contact",
	"contract":   "Contract",
	"gp_account": "GP Account",
	"cluster":    "Cluster",
	"node":       "Node",
	"operator":   "Operator",
}

func SeverityFor(op models.AuditOperation) models.Severity {
	switch op {
	case models.OpCreate:
		return models.SeveritySuccess
	case models.OpDelete:
		return models.SeverityWarning
	}
	return models.SeverityInfo
}

func details(c Change) string {
	name := c.EntityName
	if name == "" {
		name = c.EntityID
	}
	switch c.Operation {
	case models.OpCreate:
		return fmt.Sprintf("%s created by %s", name, actorOrSystem(c.Actor))
	case models.OpDelete:
		return fmt.Sprintf("%s deleted by %s", name, actorOrSystem(c.Actor))
	}
	return fmt.Sprintf("%s updated by %s", name, actorOrSystem(c.Actor))
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}

// toMap converts a record to its JSON object form with secrets redacted.
func toMap(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for _, f := range secretFields {
		if val, ok := m[f]; ok && val != "" {
			m[f] = redacted
		}
	}
	return m, nil
}
