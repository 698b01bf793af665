package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore reads consent grants from PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store over a connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// GetGrant fetches the grant for a patient and organization pair.
func (s *PGStore) GetGrant(ctx context.Context, patientID, organizationID string) (*Grant, error) {
	const query = `
		SELECT patient_id, organization_id, status, allowed_categories,
		       effective_from, expires_at, policy_ref, updated_at
		FROM consent_grants
		WHERE patient_id = $1 AND organization_id = $2`

	var (
		g          Grant
		status     string
		categories []string
		expiresAt  *time.Time
		policyRef  *string
	)
	err := s.pool.QueryRow(ctx, query, patientID, organizationID).Scan(
		&g.PatientID, &g.OrganizationID, &status, &categories,
		&g.EffectiveFrom, &expiresAt, &policyRef, &g.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consent: query grant: %w", err)
	}

	g.Status = Status(status)
	for _, c := range categories {
		g.AllowedCategories = append(g.AllowedCategories, Category(c))
	}
	if expiresAt != nil {
		g.ExpiresAt = *expiresAt
	}
	if policyRef != nil {
		g.PolicyRef = *policyRef
	}
	return &g, nil
}

// UpdateStatus applies a lifecycle transition in the database, enforcing
// the state machine inside the transaction.
func (s *PGStore) UpdateStatus(ctx context.Context, patientID, organizationID string, to Status) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("consent: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT status FROM consent_grants
		 WHERE patient_id = $1 AND organization_id = $2 FOR UPDATE`,
		patientID, organizationID).Scan(&current)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("consent: lock grant: %w", err)
	}

	if !CanTransition(Status(current), to) {
		return fmt.Errorf("consent: illegal transition %s -> %s", current, to)
	}

	_, err = tx.Exec(ctx,
		`UPDATE consent_grants SET status = $3, updated_at = now()
		 WHERE patient_id = $1 AND organization_id = $2`,
		patientID, organizationID, string(to))
	if err != nil {
		return fmt.Errorf("consent: update grant: %w", err)
	}
	return tx.Commit(ctx)
}
