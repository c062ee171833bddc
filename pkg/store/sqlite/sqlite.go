// Package sqlite provides a SQLite-backed implementation of store.Driver.
//
// Batched mutations run inside a single transaction, which is what gives
// ApplyBatch its all-or-nothing guarantee.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 database/sql driver

	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/store"
)

// Driver implements store.Driver using SQLite.
type Driver struct {
	db *sql.DB
}

// NewDriver creates a new SQLite-backed store driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	d := &Driver{db: db}

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return d, nil
}

// migrate creates the necessary tables if they don't exist.
func (d *Driver) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scopes (
		id         TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS facts (
		id            TEXT PRIMARY KEY,
		scope_id      TEXT NOT NULL REFERENCES scopes(id),
		content       TEXT NOT NULL,
		state         TEXT NOT NULL,
		policy        TEXT NOT NULL,
		seq           INTEGER NOT NULL UNIQUE,
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP,
		superseded_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_facts_scope_id ON facts(scope_id);
	CREATE INDEX IF NOT EXISTS idx_facts_scope_state ON facts(scope_id, state);
	`

	_, err := d.db.Exec(schema)
	return err
}

// CreateScope registers a scope. Re-registering an existing identifier is
// a no-op.
func (d *Driver) CreateScope(ctx context.Context, scope *memory.Scope) error {
	if scope == nil || scope.ID == "" {
		return errors.New("cannot create scope without an identifier")
	}

	query := `INSERT OR IGNORE INTO scopes (id, created_at) VALUES (?, ?)`

	_, err := d.db.ExecContext(ctx, query, scope.ID, scope.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert scope: %w", err)
	}

	return nil
}

// GetScope retrieves a scope by identifier.
func (d *Driver) GetScope(ctx context.Context, scopeID string) (*memory.Scope, error) {
	query := `SELECT id, created_at FROM scopes WHERE id = ?`

	var scope memory.Scope
	err := d.db.QueryRowContext(ctx, query, scopeID).Scan(&scope.ID, &scope.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ScopeNotFoundError{ScopeID: scopeID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scope: %w", err)
	}

	return &scope, nil
}

// ListScopes returns all scopes ordered by creation time.
func (d *Driver) ListScopes(ctx context.Context) ([]*memory.Scope, error) {
	query := `SELECT id, created_at FROM scopes ORDER BY created_at ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scopes: %w", err)
	}
	defer rows.Close()

	var scopes []*memory.Scope
	for rows.Next() {
		var scope memory.Scope
		if err := rows.Scan(&scope.ID, &scope.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scopes = append(scopes, &scope)
	}

	return scopes, rows.Err()
}

// Append creates and stores a new fact record.
func (d *Driver) Append(ctx context.Context, scopeID, content string, state memory.State, policy memory.Policy) (*memory.FactRecord, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := appendTx(ctx, tx, scopeID, content, state, policy)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return record, nil
}

// appendTx inserts a record inside an open transaction.
func appendTx(ctx context.Context, tx *sql.Tx, scopeID, content string, state memory.State, policy memory.Policy) (*memory.FactRecord, error) {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM scopes WHERE id = ?`, scopeID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.InvalidScopeError{ScopeID: scopeID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check scope: %w", err)
	}

	record := &memory.FactRecord{
		ID:        uuid.NewString(),
		ScopeID:   scopeID,
		Content:   content,
		State:     state,
		Policy:    policy,
		CreatedAt: time.Now().UTC(),
	}

	query := `
	INSERT INTO facts (id, scope_id, content, state, policy, seq, created_at)
	VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM facts), ?)`

	if _, err := tx.ExecContext(ctx, query, record.ID, record.ScopeID, record.Content, string(record.State), string(record.Policy), record.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert fact: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT seq FROM facts WHERE id = ?`, record.ID).Scan(&record.Seq); err != nil {
		return nil, fmt.Errorf("failed to read back sequence: %w", err)
	}

	return record, nil
}

// Get retrieves a fact record by id.
func (d *Driver) Get(ctx context.Context, factID string) (*memory.FactRecord, error) {
	return getRow(ctx, d.db, factID)
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRow(ctx context.Context, q rowQuerier, factID string) (*memory.FactRecord, error) {
	query := `
	SELECT id, scope_id, content, state, policy, seq, created_at, updated_at, superseded_by
	FROM facts WHERE id = ?`

	record, err := scanFact(q.QueryRowContext(ctx, query, factID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFoundError{FactID: factID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan fact: %w", err)
	}

	return record, nil
}

// scanner abstracts *sql.Row and *sql.Rows for fact scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanFact(s scanner) (*memory.FactRecord, error) {
	var (
		record       memory.FactRecord
		state        string
		policy       string
		updatedAt    sql.NullTime
		supersededBy sql.NullString
	)

	err := s.Scan(&record.ID, &record.ScopeID, &record.Content, &state, &policy, &record.Seq, &record.CreatedAt, &updatedAt, &supersededBy)
	if err != nil {
		return nil, err
	}

	record.State = memory.State(state)
	record.Policy = memory.Policy(policy)
	if updatedAt.Valid {
		t := updatedAt.Time
		record.UpdatedAt = &t
	}
	if supersededBy.Valid {
		s := supersededBy.String
		record.SupersededBy = &s
	}

	return &record, nil
}

// List returns a scope's records ordered by creation time ascending,
// optionally filtered by state.
func (d *Driver) List(ctx context.Context, scopeID string, states ...memory.State) ([]*memory.FactRecord, error) {
	if _, err := d.GetScope(ctx, scopeID); err != nil {
		var notFound store.ScopeNotFoundError
		if errors.As(err, &notFound) {
			return nil, store.InvalidScopeError{ScopeID: scopeID}
		}
		return nil, err
	}

	query := `
	SELECT id, scope_id, content, state, policy, seq, created_at, updated_at, superseded_by
	FROM facts WHERE scope_id = ?`
	args := []any{scopeID}

	if len(states) > 0 {
		query += ` AND state IN (?` + repeat(", ?", len(states)-1) + `)`
		for _, s := range states {
			args = append(args, string(s))
		}
	}

	query += ` ORDER BY created_at ASC, seq ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	var records []*memory.FactRecord
	for rows.Next() {
		record, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func repeat(s string, n int) string {
	out := ""
	for range n {
		out += s
	}
	return out
}

// UpdateState transitions a record, enforcing the lifecycle table.
func (d *Driver) UpdateState(ctx context.Context, factID string, next memory.State, supersededBy *string) (*memory.FactRecord, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := updateStateTx(ctx, tx, factID, next, supersededBy)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return record, nil
}

// updateStateTx performs the check-and-update inside an open transaction.
func updateStateTx(ctx context.Context, tx *sql.Tx, factID string, next memory.State, supersededBy *string) (*memory.FactRecord, error) {
	record, err := getRow(ctx, tx, factID)
	if err != nil {
		return nil, err
	}

	if !record.State.CanTransition(next) {
		return nil, store.InvalidTransitionError{FactID: factID, From: record.State, To: next}
	}

	now := time.Now().UTC()

	var by sql.NullString
	if supersededBy != nil {
		by = sql.NullString{String: *supersededBy, Valid: true}
	}

	query := `UPDATE facts SET state = ?, updated_at = ?, superseded_by = COALESCE(?, superseded_by) WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, string(next), now, by, factID); err != nil {
		return nil, fmt.Errorf("failed to update fact: %w", err)
	}

	record.State = next
	record.UpdatedAt = &now
	if supersededBy != nil {
		s := *supersededBy
		record.SupersededBy = &s
	}

	return record, nil
}

// Delete removes a record entirely. A second call returns NotFoundError.
func (d *Driver) Delete(ctx context.Context, factID string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM facts WHERE id = ?`, factID)
	if err != nil {
		return fmt.Errorf("failed to delete fact: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return store.NotFoundError{FactID: factID}
	}

	return nil
}

// ApplyBatch applies ops in order inside one transaction. Any failure
// rolls the entire batch back.
func (d *Driver) ApplyBatch(ctx context.Context, scopeID string, ops []store.BatchOp) ([]*memory.FactRecord, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM scopes WHERE id = ?`, scopeID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.InvalidScopeError{ScopeID: scopeID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check scope: %w", err)
	}

	var appended []*memory.FactRecord
	for i, op := range ops {
		record, err := getRow(ctx, tx, op.FactID)
		if err != nil {
			return nil, store.BatchError{Index: i, Err: err}
		}
		if record.ScopeID != scopeID {
			return nil, store.BatchError{Index: i, Err: store.InvalidScopeError{ScopeID: scopeID}}
		}

		switch op.Kind {
		case store.BatchDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM facts WHERE id = ?`, op.FactID); err != nil {
				return nil, store.BatchError{Index: i, Err: err}
			}

		case store.BatchSupersede:
			replacement, err := appendTx(ctx, tx, scopeID, op.Replacement, memory.StateCommitted, record.Policy)
			if err != nil {
				return nil, store.BatchError{Index: i, Err: err}
			}
			if _, err := updateStateTx(ctx, tx, op.FactID, memory.StateSuperseded, &replacement.ID); err != nil {
				return nil, store.BatchError{Index: i, Err: err}
			}
			appended = append(appended, replacement)

		default:
			return nil, store.BatchError{Index: i, Err: errors.New("unknown batch op kind: " + string(op.Kind))}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}

	return appended, nil
}

// Close closes the underlying database connection.
func (d *Driver) Close() error {
	return d.db.Close()
}
