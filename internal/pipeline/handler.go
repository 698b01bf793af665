package pipeline

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/interop/gateway/internal/platform/auth"
	"github.com/interop/gateway/internal/platform/consent"
	"github.com/interop/gateway/internal/platform/fhir"
	"github.com/interop/gateway/internal/platform/hl7v2"
)

// maxPayloadBytes bounds the accepted HL7v2 payload size.
const maxPayloadBytes = 1 << 20

// Handler exposes the pipeline over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates a handler over a pipeline service.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the transform route on a router group.
func (h *Handler) Register(g *echo.Group) {
	g.POST("/transform", h.Transform)
}

// Transform accepts an HL7v2 message (optionally MLLP framed) and
// returns the consent-filtered FHIR bundle. The requesting organization
// comes from the authenticated identity; the category scope from the
// categories query parameter, defaulting to all categories.
func (h *Handler) Transform(c echo.Context) error {
	identity := auth.FromContext(c)
	if identity == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated organization")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPayloadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}
	if len(body) > maxPayloadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload exceeds limit")
	}
	if len(body) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty payload")
	}
	payload := hl7v2.Unframe(body)

	requested, err := consent.ParseCategories(c.QueryParam("categories"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	raw := &hl7v2.RawMessage{
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
	// Family comes from the declared header when present, otherwise
	// from MSH-9 of the payload itself.
	if declared := c.Request().Header.Get("X-Message-Family"); declared != "" {
		raw.Family = hl7v2.Family(declared)
	}
	var parsed *hl7v2.Message
	if msg, perr := hl7v2.Parse(payload); perr == nil {
		parsed = msg
		raw.ID = msg.ControlID
		raw.SendingApp = msg.SendingApp
		raw.SendingFacility = msg.SendingFac
		raw.ReceivingApp = msg.ReceivingApp
		raw.ReceivingFacility = msg.ReceivingFac
		if raw.Family == "" {
			if family, ok := hl7v2.FamilyFromType(msg.Type); ok {
				raw.Family = family
			}
		}
	}

	resp, err := h.service.Transform(c.Request().Context(), &Request{
		Raw:            raw,
		OrganizationID: identity.OrganizationID,
		Subject:        identity.Subject,
		Requested:      requested,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "transformation could not be completed")
	}

	payloadOut := map[string]any{
		"status":   resp.Status,
		"cacheHit": resp.CacheHit,
	}
	if resp.Bundle != nil {
		payloadOut["bundle"] = resp.Bundle
	}
	if len(resp.HL7Issues) > 0 {
		payloadOut["issues"] = resp.HL7Issues
	}
	if len(resp.FHIRIssues) > 0 {
		vr := &fhir.ValidationResult{Issues: resp.FHIRIssues}
		payloadOut["outcome"] = vr.OperationOutcome()
	}
	if resp.Decision != nil {
		payloadOut["consent"] = map[string]any{
			"reasonCode": resp.Decision.ReasonCode,
			"reason":     resp.Decision.Reason,
			"allowed":    resp.Decision.Allowed,
			"denied":     resp.Decision.Denied,
		}
	}
	if len(resp.Removed) > 0 {
		payloadOut["removedCategories"] = resp.Removed
	}
	if parsed != nil && c.QueryParam("ack") == "true" {
		payloadOut["ack"] = string(hl7v2.Serialize(hl7v2.GenerateACK(parsed, ackCode(resp.Status))))
	}

	return c.JSON(statusCode(resp.Status), payloadOut)
}

func statusCode(status string) int {
	switch status {
	case StatusOK, StatusPartial:
		return http.StatusOK
	case StatusDenied:
		return http.StatusForbidden
	case StatusInvalid:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func ackCode(status string) string {
	switch status {
	case StatusOK, StatusPartial:
		return "AA"
	case StatusInvalid:
		return "AE"
	}
	return "AR"
}
