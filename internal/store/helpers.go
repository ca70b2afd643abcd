package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kindatcart/cartcheck/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalProfileLists serializes the goal and restriction lists for storage.
// Empty slices are stored as "[]" so absent and empty stay distinguishable
// via the restrictions_set column rather than the list contents.
func marshalProfileLists(p *models.UserProfile) (goals, restrictions string, err error) {
	g, err := json.Marshal(emptyIfNil(p.HealthGoals))
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal health goals: %w", err)
	}
	r, err := json.Marshal(emptyIfNil(p.Restrictions))
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal restrictions: %w", err)
	}
	return string(g), string(r), nil
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanProfile scans a UserProfile from a profiles-table row.
func scanProfile(row rowScanner) (*models.UserProfile, error) {
	var p models.UserProfile
	var name sql.NullString
	var goalsJSON, restrictionsJSON string
	err := row.Scan(&p.ID, &name, &goalsJSON, &restrictionsJSON,
		&p.RestrictionsSet, &p.CreatedAt, &p.CartChecks, &p.ItemsReconsidered)
	if err != nil {
		return nil, err
	}
	p.Name = name.String
	if err := json.Unmarshal([]byte(goalsJSON), &p.HealthGoals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal health goals: %w", err)
	}
	if err := json.Unmarshal([]byte(restrictionsJSON), &p.Restrictions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal restrictions: %w", err)
	}
	return &p, nil
}
