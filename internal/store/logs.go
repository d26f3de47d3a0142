package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/why-xn/infradesk/internal/models"
)

// --- Audit Logs ---

func (s *SQLStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	var oldValues, newValues *string
	if log.OldValues != nil {
		v := encodeJSON(log.OldValues)
		oldValues = &v
	}
	if log.NewValues != nil {
		v := encodeJSON(log.NewValues)
		newValues = &v
	}
	_, err := s.exec(ctx,
		`INSERT INTO audit_logs (id, table_name, operation, record_id, old_values, new_values, changed_by, logged_at, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.TableName, string(log.Operation), log.RecordID, oldValues, newValues,
		log.ChangedBy, formatTime(log.Timestamp), log.Description,
	)
	if err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func (s *SQLStore) ListAuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, int, error) {
	where, args := buildAuditFilter(filter)

	var total int
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	query := `SELECT id, table_name, operation, record_id, old_values, new_values, changed_by, logged_at, description
		 FROM audit_logs` + where + ` ORDER BY logged_at DESC, id`
	pageArgs := append([]any{}, args...)
	if filter.PerPage > 0 {
		query += " LIMIT ? OFFSET ?"
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.PerPage
		}
		pageArgs = append(pageArgs, filter.PerPage, offset)
	}

	rows, err := s.query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		var op, loggedAt string
		var oldValues, newValues *string
		err := rows.Scan(&l.ID, &l.TableName, &op, &l.RecordID, &oldValues, &newValues,
			&l.ChangedBy, &loggedAt, &l.Description)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit log row: %w", err)
		}
		l.Operation = models.AuditOperation(op)
		if err := decodeJSON("old_values", derefStr(oldValues), &l.OldValues); err != nil {
			return nil, 0, fmt.Errorf("scan audit log %s: %w", l.ID, err)
		}
		if err := decodeJSON("new_values", derefStr(newValues), &l.NewValues); err != nil {
			return nil, 0, fmt.Errorf("scan audit log %s: %w", l.ID, err)
		}
		l.Timestamp = parseTime(loggedAt)
		logs = append(logs, &l)
	}
	return logs, total, rows.Err()
}

func buildAuditFilter(f models.AuditLogFilter) (string, []any) {
	var conditions []string
	var args []any

	if f.TableName != "" {
		conditions = append(conditions, "table_name = ?")
		args = append(args, f.TableName)
	}
	if f.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, string(f.Operation))
	}
	if f.RecordID != "" {
		conditions = append(conditions, "record_id = ?")
		args = append(args, f.RecordID)
	}
	if f.ChangedBy != "" {
		conditions = append(conditions, "changed_by = ?")
		args = append(args, f.ChangedBy)
	}
	if f.From != nil {
		conditions = append(conditions, "logged_at >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		conditions = append(conditions, "logged_at <= ?")
		args = append(args, formatTime(*f.To))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// --- Activity Logs ---

func (s *SQLStore) CreateActivityLog(ctx context.Context, log *models.ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	if log.Severity == "" {
		log.Severity = models.SeverityInfo
	}
	_, err := s.exec(ctx,
		`INSERT INTO activity_logs (id, action, entity_type, entity_id, entity_name, user_email, logged_at, details, severity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.EntityType, log.EntityID, log.EntityName, log.User,
		formatTime(log.Timestamp), log.Details, string(log.Severity),
	)
	if err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}

// ListActivityLogs returns the most recent entries first. A limit of zero or
// less returns everything.
func (s *SQLStore) ListActivityLogs(ctx context.Context, limit int) ([]*models.ActivityLog, error) {
	query := `SELECT id, action, entity_type, entity_id, entity_name, user_email, logged_at, details, severity
		 FROM activity_logs ORDER BY logged_at DESC, id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ActivityLog
	for rows.Next() {
		var l models.ActivityLog
		var loggedAt, severity string
		err := rows.Scan(&l.ID, &l.Action, &l.EntityType, &l.EntityID, &l.EntityName, &l.User,
			&loggedAt, &l.Details, &severity)
		if err != nil {
			return nil, fmt.Errorf("scan activity log row: %w", err)
		}
		l.Timestamp = parseTime(loggedAt)
		l.Severity = models.Severity(severity)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
