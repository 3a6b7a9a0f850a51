package types

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	minGroupMembers = int32(2)
	maxGroupMembers = int32(100)
)

type CreateGroupRequest struct {
	Name                    string     `json:"name"`
	Description             string     `json:"description"`
	ContributionAmountMinor int64      `json:"contribution_amount"`
	SecurityDepositMinor    int64      `json:"security_deposit"`
	Currency                string     `json:"currency"`
	Frequency               string     `json:"frequency"`
	TotalMembers            int32      `json:"total_members"`
	CreatorSlot             int32      `json:"creator_slot"`
	StartDate               *time.Time `json:"start_date,omitempty"`
}

func NewCreateGroupRequestFromContext(ctx echo.Context) (*CreateGroupRequest, error) {
	var body CreateGroupRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Name = strings.TrimSpace(body.Name)
	body.Description = strings.TrimSpace(body.Description)
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.Frequency = strings.ToLower(strings.TrimSpace(body.Frequency))
	if body.CreatorSlot == 0 {
		body.CreatorSlot = 1
	}

	return &body, nil
}

func (r *CreateGroupRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if len(r.Name) > 120 {
		return errors.New("name must be at most 120 characters")
	}
	if r.ContributionAmountMinor <= 0 {
		return errors.New("contribution_amount must be > 0")
	}
	if r.SecurityDepositMinor < 0 {
		return errors.New("security_deposit must be >= 0")
	}
	if len(r.Currency) != 3 {
		return errors.New("currency must be 3 letters")
	}
	if !IsValidFrequency(r.Frequency) {
		return errors.New("frequency must be daily, weekly, biweekly or monthly")
	}
	if r.TotalMembers < minGroupMembers || r.TotalMembers > maxGroupMembers {
		return errors.New("total_members must be between 2 and 100")
	}
	if r.CreatorSlot < 1 || r.CreatorSlot > r.TotalMembers {
		return errors.New("creator_slot must be between 1 and total_members")
	}
	return nil
}

func IsValidFrequency(frequency string) bool {
	switch frequency {
	case "daily", "weekly", "biweekly", "monthly":
		return true
	default:
		return false
	}
}

type GroupIDRequest struct {
	GroupID string
}

func NewGroupIDRequestFromContext(ctx echo.Context) (*GroupIDRequest, error) {
	return &GroupIDRequest{GroupID: strings.TrimSpace(ctx.Param("id"))}, nil
}

func (r *GroupIDRequest) Validate() error {
	if r.GroupID == "" {
		return errors.New("group id is required")
	}
	return nil
}

type RequestSlotRequest struct {
	GroupID       string `json:"-"`
	PreferredSlot int32  `json:"preferred_slot"`
	Message       string `json:"message"`
}

func NewRequestSlotRequestFromContext(ctx echo.Context) (*RequestSlotRequest, error) {
	var body RequestSlotRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.GroupID = strings.TrimSpace(ctx.Param("id"))
	body.Message = strings.TrimSpace(body.Message)
	return &body, nil
}

func (r *RequestSlotRequest) Validate() error {
	if r.GroupID == "" {
		return errors.New("group id is required")
	}
	if r.PreferredSlot <= 0 {
		return errors.New("preferred_slot must be > 0")
	}
	if len(r.Message) > 500 {
		return errors.New("message must be at most 500 characters")
	}
	return nil
}

type ListJoinRequestsRequest struct {
	GroupID string
	Status  string
}

func NewListJoinRequestsRequestFromContext(ctx echo.Context) (*ListJoinRequestsRequest, error) {
	return &ListJoinRequestsRequest{
		GroupID: strings.TrimSpace(ctx.Param("id")),
		Status:  strings.ToLower(strings.TrimSpace(ctx.QueryParam("status"))),
	}, nil
}

func (r *ListJoinRequestsRequest) Validate() error {
	if r.GroupID == "" {
		return errors.New("group id is required")
	}
	switch r.Status {
	case "", "pending", "approved", "rejected", "withdrawn":
		return nil
	default:
		return errors.New("invalid status")
	}
}

type ReviewJoinRequestRequest struct {
	RequestID string `json:"-"`
	Reason    string `json:"reason"`
}

func NewReviewJoinRequestRequestFromContext(ctx echo.Context) (*ReviewJoinRequestRequest, error) {
	var body ReviewJoinRequestRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.RequestID = strings.TrimSpace(ctx.Param("id"))
	body.Reason = strings.TrimSpace(body.Reason)
	return &body, nil
}

func (r *ReviewJoinRequestRequest) Validate() error {
	if r.RequestID == "" {
		return errors.New("join request id is required")
	}
	if len(r.Reason) > 500 {
		return errors.New("reason must be at most 500 characters")
	}
	return nil
}

type GroupResponse struct {
	ID                      string     `json:"id"`
	Name                    string     `json:"name"`
	Description             string     `json:"description,omitempty"`
	CreatorID               string     `json:"creator_id"`
	ContributionAmountMinor int64      `json:"contribution_amount"`
	SecurityDepositMinor    int64      `json:"security_deposit"`
	Currency                string     `json:"currency"`
	Frequency               string     `json:"frequency"`
	TotalMembers            int32      `json:"total_members"`
	CurrentMembers          int32      `json:"current_members"`
	CurrentCycle            int32      `json:"current_cycle"`
	ServiceFeePercent       string     `json:"service_fee_percent"`
	Status                  string     `json:"status"`
	StartDate               *time.Time `json:"start_date,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
}

type GroupEnvelopeResponse struct {
	Group *GroupResponse `json:"group"`
}

type SlotResponse struct {
	SlotNumber  int32  `json:"slot_number"`
	PayoutCycle int32  `json:"payout_cycle"`
	Status      string `json:"status"`
	HolderID    string `json:"holder_id,omitempty"`
}

type ListSlotsResponse struct {
	Slots []*SlotResponse `json:"slots"`
}

type JoinRequestResponse struct {
	ID              string     `json:"id"`
	GroupID         string     `json:"group_id"`
	UserID          string     `json:"user_id"`
	PreferredSlot   int32      `json:"preferred_slot"`
	Message         string     `json:"message,omitempty"`
	Status          string     `json:"status"`
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type JoinRequestEnvelopeResponse struct {
	JoinRequest *JoinRequestResponse `json:"join_request"`
}

type ListJoinRequestsResponse struct {
	JoinRequests []*JoinRequestResponse `json:"join_requests"`
}

type ContributionResponse struct {
	UserID           string     `json:"user_id"`
	CycleNumber      int32      `json:"cycle_number"`
	AmountMinor      int64      `json:"amount"`
	Status           string     `json:"status"`
	DueDate          time.Time  `json:"due_date"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	PaymentReference string     `json:"payment_reference,omitempty"`
}

type ListContributionsResponse struct {
	Contributions []*ContributionResponse `json:"contributions"`
}
