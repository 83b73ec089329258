package configentry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for config entry persistence.
type Repository interface {
	// Create inserts an entry, assigning an id when empty.
	// Returns ErrAlreadyConfigured if the watched list already has an entry.
	Create(ctx context.Context, entry *Entry) error

	// Get retrieves an entry by id.
	// Returns ErrNotFound if the entry does not exist.
	Get(ctx context.Context, id string) (*Entry, error)

	// GetByWatchedEntity retrieves the entry watching a todo entity.
	// Returns ErrNotFound if no entry watches it.
	GetByWatchedEntity(ctx context.Context, entityID string) (*Entry, error)

	// List retrieves all entries ordered by creation time.
	List(ctx context.Context) ([]Entry, error)

	// Delete removes an entry and, by cascade, its registry records.
	// Returns ErrNotFound if the entry does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// timeFormat has fixed-width fractions so stored timestamps sort in order.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

const selectColumns = `
	SELECT id, domain, title, options, created_at, updated_at
	FROM config_entries`

// Create inserts an entry.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if err := ValidateWatchedEntityID(entry.Options.EntityID); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Domain == "" {
		entry.Domain = Domain
	}

	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	options, err := json.Marshal(entry.Options)
	if err != nil {
		return fmt.Errorf("marshalling options: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO config_entries (id, domain, title, watched_entity_id, options, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Domain,
		entry.Title,
		entry.Options.EntityID,
		string(options),
		entry.CreatedAt.Format(timeFormat),
		entry.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyConfigured, entry.Options.EntityID)
		}
		return fmt.Errorf("inserting config entry: %w", err)
	}
	return nil
}

// Get retrieves an entry by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Entry, error) {
	return r.queryOne(ctx, selectColumns+" WHERE id = ?", id)
}

// GetByWatchedEntity retrieves the entry watching entityID.
func (r *SQLiteRepository) GetByWatchedEntity(ctx context.Context, entityID string) (*Entry, error) {
	return r.queryOne(ctx, selectColumns+" WHERE watched_entity_id = ?", entityID)
}

// List retrieves all entries.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("querying config entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning config entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating config entries: %w", err)
	}
	return entries, nil
}

// Delete removes an entry.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM config_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting config entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryOne(ctx context.Context, query string, arg string) (*Entry, error) {
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying config entry: %w", err)
	}
	return entry, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e                    Entry
		options              string
		createdAt, updatedAt string
	)
	if err := s.Scan(&e.ID, &e.Domain, &e.Title, &options, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(options), &e.Options); err != nil {
		return nil, fmt.Errorf("unmarshalling options: %w", err)
	}

	var err error
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	e.State = StateNotLoaded
	return &e, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
