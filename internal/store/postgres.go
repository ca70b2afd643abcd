// Package store: PostgreSQL-backed Store implementation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/kindatcart/cartcheck/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists profiles and conversation state in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetProfile returns the stored profile, or (nil, nil) when absent.
func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, health_goals, restrictions, restrictions_set, created_at, cart_checks, items_reconsidered
		FROM profiles WHERE id = $1`, id)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfile failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return profile, nil
}

// SaveProfile upserts a profile keyed by its ID.
func (s *PostgresStore) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	if profile == nil || profile.ID == "" {
		return models.ErrEmptyRecipient
	}
	goalsJSON, restrictionsJSON, err := marshalProfileLists(profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, health_goals, restrictions, restrictions_set, created_at, cart_checks, items_reconsidered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			health_goals = EXCLUDED.health_goals,
			restrictions = EXCLUDED.restrictions,
			restrictions_set = EXCLUDED.restrictions_set,
			cart_checks = EXCLUDED.cart_checks,
			items_reconsidered = EXCLUDED.items_reconsidered`,
		profile.ID, nilIfEmpty(profile.Name), goalsJSON, restrictionsJSON,
		profile.RestrictionsSet, profile.CreatedAt, profile.CartChecks, profile.ItemsReconsidered)
	if err != nil {
		slog.Error("PostgresStore SaveProfile failed", "error", err, "id", profile.ID)
		return fmt.Errorf("failed to save profile %s: %w", profile.ID, err)
	}
	return nil
}

// DeleteProfile removes the profile and any conversation state for the user.
func (s *PostgresStore) DeleteProfile(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteProfile failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete profile %s: %w", id, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_states WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteProfile state cleanup failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete state for %s: %w", id, err)
	}
	return nil
}

// GetState returns the user's conversation state, or StateNew when absent.
func (s *PostgresStore) GetState(ctx context.Context, id string) (models.StateType, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM conversation_states WHERE id = $1`, id).Scan(&state)
	if err == sql.ErrNoRows {
		return models.StateNew, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetState failed", "error", err, "id", id)
		return models.StateNew, fmt.Errorf("failed to get state for %s: %w", id, err)
	}
	return models.StateType(state), nil
}

// SetState records the user's conversation state.
func (s *PostgresStore) SetState(ctx context.Context, id string, state models.StateType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_states (id, state) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state`, id, string(state))
	if err != nil {
		slog.Error("PostgresStore SetState failed", "error", err, "id", id, "state", state)
		return fmt.Errorf("failed to set state for %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
