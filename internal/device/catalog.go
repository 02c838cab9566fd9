package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Catalog defines the durable device registry operations the core consumes.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
//
// Only GetByMAC and List are on the hot path (warm-load and cache-miss
// resolution); the CRUD operations back the thin admin API.
type Catalog interface {
	// GetByMAC retrieves a device's configuration by MAC address.
	// Returns ErrNotFound if the device is not registered.
	GetByMAC(ctx context.Context, mac string) (*Record, error)

	// List retrieves the configuration of every registered device.
	List(ctx context.Context) ([]*Record, error)

	// ListByTenant retrieves every registered device owned by a tenant.
	ListByTenant(ctx context.Context, tenant string) ([]*Record, error)

	// Create registers a new device.
	// Returns ErrExists if the MAC is already registered.
	Create(ctx context.Context, rec *Record) error

	// Update modifies a registered device's configuration.
	// Returns ErrNotFound if the device is not registered.
	Update(ctx context.Context, rec *Record) error

	// Delete removes a device from the catalog.
	// Returns ErrNotFound if the device is not registered.
	Delete(ctx context.Context, mac string) error
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog creates a new SQLite-backed catalog.
// The db parameter should be an open SQLite connection.
func NewSQLiteCatalog(db *sql.DB) *SQLiteCatalog {
	return &SQLiteCatalog{db: db}
}

const catalogColumns = `id, mac, name, tenant, device_type,
	on_hour, on_minute, off_hour, off_minute, toggle, auto`

// GetByMAC retrieves a device's configuration by MAC address.
func (c *SQLiteCatalog) GetByMAC(ctx context.Context, mac string) (*Record, error) {
	query := `SELECT ` + catalogColumns + ` FROM devices WHERE mac = ?`

	row := c.db.QueryRowContext(ctx, query, NormalizeMAC(mac))
	rec, err := scanCatalogRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device by mac: %w", err)
	}
	return rec, nil
}

// List retrieves the configuration of every registered device.
func (c *SQLiteCatalog) List(ctx context.Context) ([]*Record, error) {
	query := `SELECT ` + catalogColumns + ` FROM devices ORDER BY name`
	return c.queryRecords(ctx, query)
}

// ListByTenant retrieves every registered device owned by a tenant.
func (c *SQLiteCatalog) ListByTenant(ctx context.Context, tenant string) ([]*Record, error) {
	query := `SELECT ` + catalogColumns + ` FROM devices WHERE tenant = ? ORDER BY name`
	return c.queryRecords(ctx, query, tenant)
}

// Create registers a new device.
func (c *SQLiteCatalog) Create(ctx context.Context, rec *Record) error {
	now := time.Now().UTC().Unix()

	query := `
		INSERT INTO devices (
			id, mac, name, tenant, device_type,
			on_hour, on_minute, off_hour, off_minute, toggle, auto,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		rec.ID, NormalizeMAC(rec.MAC), rec.Name, rec.Tenant, rec.Type,
		rec.Schedule.OnHour, rec.Schedule.OnMinute,
		rec.Schedule.OffHour, rec.Schedule.OffMinute,
		boolToInt(rec.Toggle), boolToInt(rec.Auto),
		now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return fmt.Errorf("creating device: %w", err)
	}
	return nil
}

// Update modifies a registered device's configuration.
func (c *SQLiteCatalog) Update(ctx context.Context, rec *Record) error {
	query := `
		UPDATE devices SET
			name = ?, tenant = ?, device_type = ?,
			on_hour = ?, on_minute = ?, off_hour = ?, off_minute = ?,
			toggle = ?, auto = ?, updated_at = ?
		WHERE mac = ?`

	result, err := c.db.ExecContext(ctx, query,
		rec.Name, rec.Tenant, rec.Type,
		rec.Schedule.OnHour, rec.Schedule.OnMinute,
		rec.Schedule.OffHour, rec.Schedule.OffMinute,
		boolToInt(rec.Toggle), boolToInt(rec.Auto),
		time.Now().UTC().Unix(),
		NormalizeMAC(rec.MAC),
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a device from the catalog.
func (c *SQLiteCatalog) Delete(ctx context.Context, mac string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM devices WHERE mac = ?`, NormalizeMAC(mac))
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// queryRecords runs a catalog SELECT and scans all rows.
func (c *SQLiteCatalog) queryRecords(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanCatalogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return records, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCatalogRow maps one devices row to a config-only Record.
func scanCatalogRow(row rowScanner) (*Record, error) {
	var rec Record
	var toggle, auto int

	err := row.Scan(
		&rec.ID, &rec.MAC, &rec.Name, &rec.Tenant, &rec.Type,
		&rec.Schedule.OnHour, &rec.Schedule.OnMinute,
		&rec.Schedule.OffHour, &rec.Schedule.OffMinute,
		&toggle, &auto,
	)
	if err != nil {
		return nil, err
	}

	rec.Toggle = toggle != 0
	rec.Auto = auto != 0
	return &rec, nil
}

// NormalizeMAC lowercases a MAC and strips separator characters so cache
// keys and catalog lookups are insensitive to the formatting devices use
// on the wire.
func NormalizeMAC(mac string) string {
	mac = strings.ToLower(mac)
	mac = strings.ReplaceAll(mac, ":", "")
	mac = strings.ReplaceAll(mac, "-", "")
	return mac
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
