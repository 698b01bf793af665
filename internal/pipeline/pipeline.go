// Package pipeline orchestrates one gateway invocation: structural
// validation, extraction, mapping, profile validation, consent
// enforcement, response filtering, and disclosure auditing.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/interop/gateway/internal/platform/audit"
	"github.com/interop/gateway/internal/platform/consent"
	"github.com/interop/gateway/internal/platform/fhir"
	"github.com/interop/gateway/internal/platform/filter"
	"github.com/interop/gateway/internal/platform/hl7v2"
	"github.com/interop/gateway/internal/platform/mapping"
	"github.com/interop/gateway/internal/platform/telemetry"
)

// Response statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusDenied  = "denied"
	StatusInvalid = "invalid"
)

// Request is one transformation invocation.
type Request struct {
	Raw            *hl7v2.RawMessage
	OrganizationID string
	Subject        string // caller identity for the audit trail
	Requested      []consent.Category
}

// Response is the outcome of one invocation. Bundle is nil unless some
// resources survived filtering.
type Response struct {
	Status     string
	Bundle     *fhir.Bundle
	HL7Issues  []hl7v2.Issue
	FHIRIssues []fhir.Issue
	Decision   *consent.Decision
	Removed    []consent.Category
	CacheHit   bool
}

// transformed is the singleflight result shared by coalesced callers.
type transformed struct {
	bundle *fhir.Bundle
	issues []fhir.Issue
	valid  bool
}

// Service wires the pipeline stages together.
type Service struct {
	engine    *mapping.Engine
	gate      *consent.Gate
	sink      audit.Sink
	validator *fhir.ProfileValidator
	table     *filter.Table
	cache     *Cache
	group     singleflight.Group

	consentTimeout time.Duration
	auditTimeout   time.Duration

	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// Options configures a Service.
type Options struct {
	Engine         *mapping.Engine
	Gate           *consent.Gate
	Sink           audit.Sink
	Validator      *fhir.ProfileValidator
	Table          *filter.Table
	Cache          *Cache
	ConsentTimeout time.Duration
	AuditTimeout   time.Duration
	Logger         zerolog.Logger
	Metrics        *telemetry.Metrics
}

// NewService creates a pipeline service.
func NewService(opts Options) *Service {
	if opts.ConsentTimeout <= 0 {
		opts.ConsentTimeout = 2 * time.Second
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = 2 * time.Second
	}
	if opts.Cache == nil {
		opts.Cache = NewCache(5 * time.Minute)
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetrics()
	}
	return &Service{
		engine:         opts.Engine,
		gate:           opts.Gate,
		sink:           opts.Sink,
		validator:      opts.Validator,
		table:          opts.Table,
		cache:          opts.Cache,
		consentTimeout: opts.ConsentTimeout,
		auditTimeout:   opts.AuditTimeout,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
}

// Transform runs the full pipeline for one message. Exactly one audit
// record is written per invocation; a failure to write it fails the
// invocation regardless of pipeline outcome.
func (s *Service) Transform(ctx context.Context, req *Request) (*Response, error) {
	s.metrics.Inc(telemetry.MetricRequests)

	requested := req.Requested
	if len(requested) == 0 {
		requested = consent.Categories()
	}

	msg, structRes := hl7v2.ValidateStructure(req.Raw)
	if !structRes.Valid() {
		return s.finishInvalid(ctx, req, "", structRes.Issues, nil)
	}

	rec, extractRes := hl7v2.Extract(msg, req.Raw)
	structRes.Merge(extractRes)
	if rec == nil {
		return s.finishInvalid(ctx, req, "", structRes.Issues, nil)
	}
	patientID := rec.Patient.MRN

	// Consent pre-check. A blanket denial skips transformation entirely.
	preDecision, err := s.evaluateConsent(ctx, patientID, req.OrganizationID, requested)
	if err != nil {
		s.metrics.Inc(telemetry.MetricConsentFailsafe)
		s.logger.Warn().Err(err).Str("message_id", rec.MessageID).
			Msg("consent store unavailable, failing closed")
	}
	if preDecision.DeniesAll() {
		return s.finishDenied(ctx, req, patientID, rec.MessageID, preDecision)
	}

	// Transformation, cached by payload, rule version, and organization.
	fingerprint := Fingerprint(req.Raw.Payload, s.engine.RuleVersion(), req.OrganizationID)
	cacheHit := false

	bundle := s.cache.Get(fingerprint)
	var fhirIssues []fhir.Issue
	if bundle != nil {
		cacheHit = true
		s.metrics.Inc(telemetry.MetricCacheHits)
	} else {
		s.metrics.Inc(telemetry.MetricCacheMisses)
		result, err, _ := s.group.Do(fingerprint, func() (any, error) {
			return s.transformOnce(rec, req.OrganizationID, fingerprint), nil
		})
		if err != nil {
			return nil, err
		}
		t := result.(*transformed)
		fhirIssues = t.issues
		if !t.valid {
			return s.finishInvalid(ctx, req, patientID, structRes.Issues, fhirIssues)
		}
		bundle = t.bundle.Clone()
	}

	// Consent post-check: the grant may have changed while transforming
	// or the bundle may have come from the cache, so the decision that
	// shapes the response is always freshly evaluated.
	decision, err := s.evaluateConsent(ctx, patientID, req.OrganizationID, requested)
	if err != nil {
		s.metrics.Inc(telemetry.MetricConsentFailsafe)
	}
	if decision.DeniesAll() {
		return s.finishDenied(ctx, req, patientID, rec.MessageID, decision)
	}

	filtered := filter.Apply(bundle, decision, s.table)
	if filtered.Blocked {
		return s.finishDenied(ctx, req, patientID, rec.MessageID, decision)
	}

	resp := &Response{
		Bundle:     filtered.Bundle,
		HL7Issues:  structRes.Warnings(),
		FHIRIssues: fhirIssues,
		Decision:   decision,
		Removed:    filtered.RemovedCategories,
		CacheHit:   cacheHit,
	}
	outcome := audit.OutcomeSuccess
	if filtered.Filtered || filtered.Bundle.Partial {
		resp.Status = StatusPartial
		outcome = audit.OutcomePartial
		s.metrics.Inc(telemetry.MetricPartial)
	} else {
		resp.Status = StatusOK
	}

	record := s.newRecord(req, patientID, outcome)
	record.Detail["message_id"] = rec.MessageID
	record.Detail["family"] = string(rec.Family)
	record.Detail["consent_reason"] = decision.ReasonCode
	record.Detail["rule_version"] = filtered.Bundle.RuleVersion
	if len(filtered.RemovedCategories) > 0 {
		record.Detail["removed_categories"] = joinCategories(filtered.RemovedCategories)
	}
	if n := len(resp.HL7Issues); n > 0 {
		record.Detail["warnings"] = fmt.Sprintf("%d", n)
	}
	if cacheHit {
		record.Detail["cache"] = "hit"
	}
	if err := s.writeAudit(ctx, record); err != nil {
		return nil, err
	}
	return resp, nil
}

// transformOnce maps and profile-validates a record, caching the
// canonical bundle. Mapping and profile failures are resource-scoped;
// the invocation is invalid only when no resource survives at all. Runs
// at most once per fingerprint across concurrent callers.
func (s *Service) transformOnce(rec *hl7v2.ClinicalRecord, organizationID, fingerprint string) *transformed {
	bundle, mapRes := s.engine.Map(rec, organizationID)
	profileRes := s.validator.Validate(bundle)

	issues := append(mapRes.Issues, profileRes.Issues...)
	if len(bundle.Resources) == 0 {
		return &transformed{issues: issues, valid: false}
	}

	s.cache.Put(fingerprint, bundle)
	return &transformed{bundle: bundle, issues: issues, valid: true}
}

// evaluateConsent calls the gate under its own deadline. The returned
// decision denies everything when the store failed or the deadline
// passed; the error reports why.
func (s *Service) evaluateConsent(ctx context.Context, patientID, organizationID string, requested []consent.Category) (*consent.Decision, error) {
	cctx, cancel := context.WithTimeout(ctx, s.consentTimeout)
	defer cancel()
	return s.gate.Evaluate(cctx, patientID, organizationID, requested)
}

func (s *Service) finishInvalid(ctx context.Context, req *Request, patientID string, hl7Issues []hl7v2.Issue, fhirIssues []fhir.Issue) (*Response, error) {
	s.metrics.Inc(telemetry.MetricInvalid)

	record := s.newRecord(req, patientID, audit.OutcomeValidationFailure)
	record.Detail["issues"] = fmt.Sprintf("%d", len(hl7Issues)+len(fhirIssues))
	if err := s.writeAudit(ctx, record); err != nil {
		return nil, err
	}
	return &Response{
		Status:     StatusInvalid,
		HL7Issues:  hl7Issues,
		FHIRIssues: fhirIssues,
	}, nil
}

func (s *Service) finishDenied(ctx context.Context, req *Request, patientID, messageID string, decision *consent.Decision) (*Response, error) {
	s.metrics.Inc(telemetry.MetricConsentDenied)

	record := s.newRecord(req, patientID, audit.OutcomeConsentDenied)
	record.Detail["message_id"] = messageID
	record.Detail["consent_reason"] = decision.ReasonCode
	if err := s.writeAudit(ctx, record); err != nil {
		return nil, err
	}
	return &Response{Status: StatusDenied, Decision: decision}, nil
}

func (s *Service) newRecord(req *Request, patientID, outcome string) *audit.Record {
	rec := audit.NewRecord(patientID, req.OrganizationID, "transform", outcome)
	if req.Subject != "" {
		rec.Detail["client"] = req.Subject
	}
	return rec
}

// writeAudit persists the record under the audit deadline. The pipeline
// result is withheld when the record cannot be written.
func (s *Service) writeAudit(ctx context.Context, record *audit.Record) error {
	actx, cancel := context.WithTimeout(ctx, s.auditTimeout)
	defer cancel()
	if err := s.sink.Record(actx, record); err != nil {
		s.metrics.Inc(telemetry.MetricAuditFailures)
		s.logger.Error().Err(err).Str("audit_id", record.ID.String()).Msg("audit write failed")
		return fmt.Errorf("pipeline: audit record not written: %w", err)
	}
	return nil
}

func joinCategories(categories []consent.Category) string {
	out := ""
	for i, c := range categories {
		if i > 0 {
			out += ","
		}
		out += string(c)
	}
	return out
}
