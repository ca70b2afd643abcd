// Package store: SQLite-backed Store implementation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/kindatcart/cartcheck/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists profiles and conversation state in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the SQLite database file; the containing
// directory is created if it does not exist.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetProfile returns the stored profile, or (nil, nil) when absent.
func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, health_goals, restrictions, restrictions_set, created_at, cart_checks, items_reconsidered
		FROM profiles WHERE id = ?`, id)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return profile, nil
}

// SaveProfile upserts a profile keyed by its ID.
func (s *SQLiteStore) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	if profile == nil || profile.ID == "" {
		return models.ErrEmptyRecipient
	}
	goalsJSON, restrictionsJSON, err := marshalProfileLists(profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, health_goals, restrictions, restrictions_set, created_at, cart_checks, items_reconsidered)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			health_goals = excluded.health_goals,
			restrictions = excluded.restrictions,
			restrictions_set = excluded.restrictions_set,
			cart_checks = excluded.cart_checks,
			items_reconsidered = excluded.items_reconsidered`,
		profile.ID, nilIfEmpty(profile.Name), goalsJSON, restrictionsJSON,
		profile.RestrictionsSet, profile.CreatedAt, profile.CartChecks, profile.ItemsReconsidered)
	if err != nil {
		slog.Error("SQLiteStore SaveProfile failed", "error", err, "id", profile.ID)
		return fmt.Errorf("failed to save profile %s: %w", profile.ID, err)
	}
	slog.Debug("SQLiteStore SaveProfile succeeded", "id", profile.ID)
	return nil
}

// DeleteProfile removes the profile and any conversation state for the user.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteProfile failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete profile %s: %w", id, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_states WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteProfile state cleanup failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete state for %s: %w", id, err)
	}
	return nil
}

// GetState returns the user's conversation state, or StateNew when absent.
func (s *SQLiteStore) GetState(ctx context.Context, id string) (models.StateType, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM conversation_states WHERE id = ?`, id).Scan(&state)
	if err == sql.ErrNoRows {
		return models.StateNew, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetState failed", "error", err, "id", id)
		return models.StateNew, fmt.Errorf("failed to get state for %s: %w", id, err)
	}
	return models.StateType(state), nil
}

// SetState records the user's conversation state.
func (s *SQLiteStore) SetState(ctx context.Context, id string, state models.StateType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_states (id, state) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state`, id, string(state))
	if err != nil {
		slog.Error("SQLiteStore SetState failed", "error", err, "id", id, "state", state)
		return fmt.Errorf("failed to set state for %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
