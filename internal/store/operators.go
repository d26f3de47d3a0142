package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/why-xn/infradesk/internal/models"
)

// --- Operators ---

const operatorColumns = `id, email, password_hash, name, role, is_active, created_at, updated_at`

func (s *SQLStore) CreateOperator(ctx context.Context, op *models.Operator) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.Role == "" {
		op.Role = models.RoleViewer
	}
	now := nowString()
	_, err := s.exec(ctx,
		`INSERT INTO operators (`+operatorColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.Email, op.PasswordHash, op.Name, string(op.Role), boolToInt(op.IsActive), now, now,
	)
	if err != nil {
		return wrapErr("create operator", err)
	}
	op.CreatedAt = parseTime(now)
	op.UpdatedAt = op.CreatedAt
	return nil
}

func (s *SQLStore) GetOperatorByID(ctx context.Context, id string) (*models.Operator, error) {
	return s.getOperator(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id = ?`, id)
}

func (s *SQLStore) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	return s.getOperator(ctx, `SELECT `+operatorColumns+` FROM operators WHERE email = ?`, email)
}

func (s *SQLStore) getOperator(ctx context.Context, query string, arg string) (*models.Operator, error) {
	op, err := scanOperator(s.queryRow(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operator: %w", err)
	}
	return op, nil
}

func scanOperator(row scanner) (*models.Operator, error) {
	var o models.Operator
	var role, createdAt, updatedAt string
	var isActive int
	if err := row.Scan(&o.ID, &o.Email, &o.PasswordHash, &o.Name, &role, &isActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	o.Role = models.OperatorRole(role)
	o.IsActive = isActive != 0
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

func (s *SQLStore) ListOperators(ctx context.Context) ([]*models.Operator, error) {
	rows, err := s.query(ctx, `SELECT `+operatorColumns+` FROM operators ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()

	var ops []*models.Operator
	for rows.Next() {
		o, err := scanOperator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operator row: %w", err)
		}
		ops = append(ops, o)
	}
	return ops, rows.Err()
}

func (s *SQLStore) UpdateOperator(ctx context.Context, op *models.Operator) error {
	now := nowString()
	_, err := s.exec(ctx,
		`UPDATE operators SET email = ?, password_hash = ?, name = ?, role = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		op.Email, op.PasswordHash, op.Name, string(op.Role), boolToInt(op.IsActive), now, op.ID,
	)
	if err != nil {
		return wrapErr("update operator", err)
	}
	op.UpdatedAt = parseTime(now)
	return nil
}

// --- Refresh Tokens ---

func (s *SQLStore) CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) error {
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	now := nowString()
	_, err := s.exec(ctx,
		`INSERT INTO refresh_tokens (id, operator_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		rt.ID, rt.OperatorID, rt.TokenHash, formatTime(rt.ExpiresAt), now,
	)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	rt.CreatedAt = parseTime(now)
	return nil
}

func (s *SQLStore) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	var expiresAt, createdAt string
	err := s.queryRow(ctx,
		`SELECT id, operator_id, token_hash, expires_at, created_at FROM refresh_tokens WHERE token_hash = ?`,
		tokenHash,
	).Scan(&rt.ID, &rt.OperatorID, &rt.TokenHash, &expiresAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	rt.ExpiresAt = parseTime(expiresAt)
	rt.CreatedAt = parseTime(createdAt)
	return &rt, nil
}

func (s *SQLStore) DeleteRefreshToken(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM refresh_tokens WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteRefreshTokensByOperator(ctx context.Context, operatorID string) error {
	if _, err := s.exec(ctx, `DELETE FROM refresh_tokens WHERE operator_id = ?`, operatorID); err != nil {
		return fmt.Errorf("delete refresh tokens: %w", err)
	}
	return nil
}

// CleanupExpiredRefreshTokens deletes tokens that expired before now and
// returns how many were removed.
func (s *SQLStore) CleanupExpiredRefreshTokens(ctx context.Context, now time.Time) (int, error) {
	res, err := s.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("cleanup refresh tokens: %w", err)
	}
	return rowsAffected(res), nil
}
