package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for registry record persistence.
type Repository interface {
	// Upsert inserts a record or, when its unique id exists, updates the
	// name and owning config entry.
	// Returns ErrEntityIDTaken if the entity id belongs to another unique id.
	Upsert(ctx context.Context, entry *Entry) error

	// UpdateName sets the display name of a record.
	// Returns ErrEntryNotFound if the record does not exist.
	UpdateName(ctx context.Context, entityID, name string) error

	// Delete removes a record by entity id.
	// Returns ErrEntryNotFound if the record does not exist.
	Delete(ctx context.Context, entityID string) error

	// DeleteByConfigEntry removes every record of a config entry and
	// returns how many were removed.
	DeleteByConfigEntry(ctx context.Context, configEntryID string) (int, error)

	// GetByEntityID retrieves a record.
	// Returns ErrEntryNotFound if the record does not exist.
	GetByEntityID(ctx context.Context, entityID string) (*Entry, error)

	// ListByConfigEntry retrieves every record of a config entry.
	ListByConfigEntry(ctx context.Context, configEntryID string) ([]Entry, error)

	// List retrieves all records.
	List(ctx context.Context) ([]Entry, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
	SELECT entity_id, unique_id, config_entry_id, platform, wrapped_entity_id,
		uid, name, created_at, updated_at
	FROM entity_registry`

// Upsert inserts or updates a record keyed by unique id.
func (r *SQLiteRepository) Upsert(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.Platform == "" {
		entry.Platform = "sensor"
	}

	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	query := `
		INSERT INTO entity_registry (
			entity_id, unique_id, config_entry_id, platform, wrapped_entity_id,
			uid, name, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unique_id) DO UPDATE SET
			config_entry_id = excluded.config_entry_id,
			name = excluded.name,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		entry.EntityID,
		entry.UniqueID,
		entry.ConfigEntryID,
		entry.Platform,
		entry.WrappedEntityID,
		entry.UID,
		entry.Name,
		entry.CreatedAt.Format(time.RFC3339),
		entry.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintError(err, "entity_registry.entity_id") {
			return fmt.Errorf("%w: %s", ErrEntityIDTaken, entry.EntityID)
		}
		return fmt.Errorf("upserting registry entry: %w", err)
	}
	return nil
}

// UpdateName sets the display name of a record.
func (r *SQLiteRepository) UpdateName(ctx context.Context, entityID, name string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE entity_registry SET name = ?, updated_at = ? WHERE entity_id = ?",
		name, time.Now().UTC().Format(time.RFC3339), entityID,
	)
	if err != nil {
		return fmt.Errorf("updating registry name: %w", err)
	}
	return expectOneRow(result)
}

// Delete removes a record by entity id.
func (r *SQLiteRepository) Delete(ctx context.Context, entityID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM entity_registry WHERE entity_id = ?", entityID)
	if err != nil {
		return fmt.Errorf("deleting registry entry: %w", err)
	}
	return expectOneRow(result)
}

// DeleteByConfigEntry removes every record of a config entry.
func (r *SQLiteRepository) DeleteByConfigEntry(ctx context.Context, configEntryID string) (int, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM entity_registry WHERE config_entry_id = ?", configEntryID)
	if err != nil {
		return 0, fmt.Errorf("deleting registry entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

// GetByEntityID retrieves a record.
func (r *SQLiteRepository) GetByEntityID(ctx context.Context, entityID string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE entity_id = ?", entityID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying registry entry: %w", err)
	}
	return entry, nil
}

// ListByConfigEntry retrieves every record of a config entry.
func (r *SQLiteRepository) ListByConfigEntry(ctx context.Context, configEntryID string) ([]Entry, error) {
	return r.query(ctx, selectColumns+" WHERE config_entry_id = ? ORDER BY entity_id", configEntryID)
}

// List retrieves all records.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	return r.query(ctx, selectColumns+" ORDER BY entity_id")
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying registry entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning registry entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating registry entries: %w", err)
	}
	return entries, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e                    Entry
		createdAt, updatedAt string
	)
	if err := s.Scan(
		&e.EntityID, &e.UniqueID, &e.ConfigEntryID, &e.Platform, &e.WrappedEntityID,
		&e.UID, &e.Name, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &e, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// isConstraintError checks for a SQLite UNIQUE or PRIMARY KEY violation
// on the given column.
func isConstraintError(err error, column string) bool {
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") && strings.Contains(msg, column)
}
