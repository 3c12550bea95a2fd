package repository

import (
	"context"
	"database/sql"

	"mfa-orphans/internal/audit/domain"
)

const (
	insertAuditLog = `INSERT INTO audit_logs (id, admin_uid, action, subject, action_id, ip, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	listRecentAuditLogs = `SELECT id, admin_uid, action, subject, action_id, ip, metadata, created_at
FROM audit_logs ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	listAuditLogsBySubject = `SELECT id, admin_uid, action, subject, action_id, ip, metadata, created_at
FROM audit_logs WHERE lower(subject) = lower($1) ORDER BY created_at DESC, id LIMIT $2`
)

// PostgresRepository stores audit logs in the audit_logs table (see internal/db/migrations).
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	actionID := sql.NullString{String: a.ActionID, Valid: a.ActionID != ""}
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx, insertAuditLog,
		a.ID, a.AdminUID, a.Action, a.Subject, actionID, a.IP, meta, a.CreatedAt)
	return err
}

// ListRecent returns audit logs newest first, paginated by limit and offset.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, listRecentAuditLogs, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAuditLogs(rows)
}

// ListBySubject returns audit logs for subject (case-insensitive), newest first.
func (r *PostgresRepository) ListBySubject(ctx context.Context, subject string, limit int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, listAuditLogsBySubject, subject, limit)
	if err != nil {
		return nil, err
	}
	return scanAuditLogs(rows)
}

func scanAuditLogs(rows *sql.Rows) ([]*domain.AuditLog, error) {
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a        domain.AuditLog
			actionID sql.NullString
			meta     sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.AdminUID, &a.Action, &a.Subject, &actionID, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ActionID = actionID.String
		a.Metadata = meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
