package types

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

type ListReconciliationsRequest struct {
	Status string `json:"status"`
	Limit  int32  `json:"limit"`
	Offset int32  `json:"offset"`
}

func NewListReconciliationsRequestFromContext(ctx echo.Context) (*ListReconciliationsRequest, error) {
	limit, offset, err := parseLimitOffset(ctx)
	if err != nil {
		return nil, err
	}
	status := strings.ToLower(strings.TrimSpace(ctx.QueryParam("status")))
	if status == "" {
		status = "open"
	}
	return &ListReconciliationsRequest{Status: status, Limit: limit, Offset: offset}, nil
}

func (r *ListReconciliationsRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = defaultListLimit
	}
	switch r.Status {
	case "open", "resolved", "all":
	default:
		return errors.New("status must be open, resolved or all")
	}
	return validateLimitOffset(r.Limit, r.Offset)
}

type ResolveReconciliationRequest struct {
	ID         uint64 `json:"-"`
	Resolution string `json:"resolution"`
	Note       string `json:"note"`
}

func NewResolveReconciliationRequestFromContext(ctx echo.Context) (*ResolveReconciliationRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	var body ResolveReconciliationRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.ID = id
	body.Resolution = strings.ToLower(strings.TrimSpace(body.Resolution))
	body.Note = strings.TrimSpace(body.Note)
	return &body, nil
}

func (r *ResolveReconciliationRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid reconciliation id")
	}
	switch r.Resolution {
	case "retry", "refund", "dismiss":
	default:
		return errors.New("resolution must be retry, refund or dismiss")
	}
	if len(r.Note) > 1000 {
		return errors.New("note must be at most 1000 characters")
	}
	return nil
}

type ReconciliationResponse struct {
	ID         uint64     `json:"id"`
	Reference  string     `json:"reference"`
	Reason     string     `json:"reason"`
	Detail     string     `json:"detail,omitempty"`
	Status     string     `json:"status"`
	Resolution string     `json:"resolution,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Note       string     `json:"note,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type ReconciliationEnvelopeResponse struct {
	Reconciliation *ReconciliationResponse `json:"reconciliation"`
}

type ListReconciliationsResponse struct {
	Reconciliations []*ReconciliationResponse `json:"reconciliations"`
}

// ReprocessPaymentResponse is returned by the internal reprocess endpoint.
type ReprocessPaymentResponse struct {
	Reference string `json:"reference"`
	Processed bool   `json:"processed"`
	Position  *int32 `json:"position,omitempty"`
	Error     string `json:"error,omitempty"`
}
