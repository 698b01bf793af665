package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSink persists audit records to PostgreSQL.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink creates a sink over a connection pool.
func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

// Record inserts the entry. The insert participates in the invocation's
// deadline; a timeout here fails the invocation.
func (s *PGSink) Record(ctx context.Context, rec *Record) error {
	detail, err := json.Marshal(rec.Detail)
	if err != nil {
		return fmt.Errorf("audit: marshal detail: %w", err)
	}

	const query = `
		INSERT INTO audit_records (
			id, subject, organization_id, action,
			resource_type, resource_id, outcome, recorded_at, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.Subject, rec.OrganizationID, rec.Action,
		rec.ResourceType, rec.ResourceID, rec.Outcome, rec.RecordedAt, detail,
	)
	if err != nil {
		return fmt.Errorf("audit: insert record: %w", err)
	}
	return nil
}
