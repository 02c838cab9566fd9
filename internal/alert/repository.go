package alert

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the durable alert log operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Append adds an alert to the tenant's log.
	Append(ctx context.Context, rec *Record) error

	// ListByTenant retrieves a tenant's alerts, most recent first.
	// A limit <= 0 returns all alerts.
	ListByTenant(ctx context.Context, tenant string, limit int) ([]Record, error)

	// Resolve marks an alert resolved. Administrative action, not part of
	// the pipeline.
	// Returns ErrAlertNotFound if the alert does not exist.
	Resolve(ctx context.Context, id, resolvedBy string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed alert log.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append adds an alert to the tenant's log.
func (r *SQLiteRepository) Append(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO alerts (
			id, tenant, device_id, device_name, mac, state, severity, raised_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Tenant, rec.DeviceID, rec.DeviceName, rec.MAC,
		string(rec.State), string(rec.Severity), rec.RaisedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("appending alert: %w", err)
	}
	return nil
}

// ListByTenant retrieves a tenant's alerts, most recent first.
func (r *SQLiteRepository) ListByTenant(ctx context.Context, tenant string, limit int) ([]Record, error) {
	query := `
		SELECT id, tenant, device_id, device_name, mac, state, severity,
			raised_at, resolved_at, resolved_by
		FROM alerts
		WHERE tenant = ?
		ORDER BY raised_at DESC`
	args := []any{tenant}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var raisedAt int64
		var resolvedAt sql.NullInt64
		var resolvedBy sql.NullString

		err := rows.Scan(
			&rec.ID, &rec.Tenant, &rec.DeviceID, &rec.DeviceName, &rec.MAC,
			&rec.State, &rec.Severity, &raisedAt, &resolvedAt, &resolvedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}

		rec.RaisedAt = time.Unix(raisedAt, 0).UTC()
		if resolvedAt.Valid {
			ts := time.Unix(resolvedAt.Int64, 0).UTC()
			rec.ResolvedAt = &ts
		}
		if resolvedBy.Valid {
			rec.ResolvedBy = &resolvedBy.String
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alert rows: %w", err)
	}
	return records, nil
}

// Resolve marks an alert resolved.
func (r *SQLiteRepository) Resolve(ctx context.Context, id, resolvedBy string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET resolved_at = ?, resolved_by = ? WHERE id = ? AND resolved_at IS NULL`,
		time.Now().UTC().Unix(), resolvedBy, id,
	)
	if err != nil {
		return fmt.Errorf("resolving alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking resolve result: %w", err)
	}
	if rows == 0 {
		return ErrAlertNotFound
	}
	return nil
}
