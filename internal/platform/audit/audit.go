// Package audit records one disclosure-accounting entry per gateway
// invocation. A failure to record is a failure of the invocation itself.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Outcomes of an audited invocation.
const (
	OutcomeSuccess           = "success"
	OutcomePartial           = "partial"
	OutcomeValidationFailure = "validation-failure"
	OutcomeConsentDenied     = "consent-denied"
	OutcomeError             = "error"
)

// Record is one audit entry. Subject is the patient identifier the
// invocation concerned; Detail carries bounded key/value context such as
// the consent reason code and removed categories.
type Record struct {
	ID             uuid.UUID
	Subject        string
	OrganizationID string
	Action         string
	ResourceType   string
	ResourceID     string
	Outcome        string
	RecordedAt     time.Time
	Detail         map[string]string
}

// NewRecord creates a record with a fresh ID and timestamp.
func NewRecord(subject, organizationID, action, outcome string) *Record {
	return &Record{
		ID:             uuid.New(),
		Subject:        subject,
		OrganizationID: organizationID,
		Action:         action,
		Outcome:        outcome,
		RecordedAt:     time.Now().UTC(),
		Detail:         map[string]string{},
	}
}

// Sink persists audit records.
type Sink interface {
	Record(ctx context.Context, rec *Record) error
}

// LogSink writes audit records to the structured log. It backs
// deployments without a database and is the fallback target in tests.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink over a logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record emits the entry at info level.
func (s *LogSink) Record(_ context.Context, rec *Record) error {
	event := s.logger.Info().
		Str("audit_id", rec.ID.String()).
		Str("subject", rec.Subject).
		Str("organization", rec.OrganizationID).
		Str("action", rec.Action).
		Str("outcome", rec.Outcome).
		Time("recorded_at", rec.RecordedAt)
	if rec.ResourceType != "" {
		event = event.Str("resource_type", rec.ResourceType).Str("resource_id", rec.ResourceID)
	}
	for k, v := range rec.Detail {
		event = event.Str("detail_"+k, v)
	}
	event.Msg("audit record")
	return nil
}

// MemorySink collects records for tests.
type MemorySink struct {
	mu      sync.Mutex
	records []*Record
	fail    error
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailWith makes subsequent Record calls return err.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Record stores the entry.
func (s *MemorySink) Record(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, rec)
	return nil
}

// Records returns a snapshot of the collected entries.
func (s *MemorySink) Records() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Record(nil), s.records...)
}
