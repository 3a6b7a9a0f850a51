package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/factory"
	"github.com/vibast-solutions/ms-go-ajo/app/repository"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
	"github.com/vibast-solutions/ms-go-ajo/config"
)

// GroupService owns the group lifecycle before activation and the payout
// slot state machine: available -> reserved -> assigned, and back to
// available on reject or withdraw.
type GroupService struct {
	stores      Stores
	paymentsCfg config.PaymentsConfig
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewGroupService(stores Stores, paymentsCfg config.PaymentsConfig) *GroupService {
	return &GroupService{
		stores:      stores,
		paymentsCfg: paymentsCfg,
		logger:      factory.NewModuleLogger("group-service"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateGroup creates a forming group with slots 1..N and reserves the
// creator's chosen slot. The creator becomes a member once the group creation
// payment is verified.
func (s *GroupService) CreateGroup(ctx context.Context, creatorID string, req *types.CreateGroupRequest) (*entity.Group, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" || req == nil {
		return nil, ErrInvalidRequest
	}

	feePercent, err := normalizeFeePercent(s.paymentsCfg.ServiceFeePercent)
	if err != nil {
		return nil, err
	}

	now := s.now()
	group := &entity.Group{
		ID:                      uuid.NewString(),
		Name:                    req.Name,
		CreatorID:               creatorID,
		ContributionAmountMinor: req.ContributionAmountMinor,
		SecurityDepositMinor:    req.SecurityDepositMinor,
		Currency:                req.Currency,
		Frequency:               req.Frequency,
		TotalMembers:            req.TotalMembers,
		ServiceFeePercent:       feePercent,
		Status:                  entity.GroupStatusForming,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if req.Description != "" {
		description := req.Description
		group.Description = &description
	}
	if req.StartDate != nil {
		start := req.StartDate.UTC()
		group.StartDate = &start
	}

	err = s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.stores.Groups.Create(ctx, group); err != nil {
			return err
		}

		slots := make([]*entity.PayoutSlot, 0, group.TotalMembers)
		for n := int32(1); n <= group.TotalMembers; n++ {
			slots = append(slots, &entity.PayoutSlot{
				GroupID:     group.ID,
				SlotNumber:  n,
				PayoutCycle: n,
				Status:      entity.SlotStatusAvailable,
				UpdatedAt:   now,
			})
		}
		if err := s.stores.Slots.CreateBatch(ctx, slots); err != nil {
			return err
		}

		reserved, err := s.stores.Slots.Reserve(ctx, group.ID, req.CreatorSlot, creatorID, now)
		if err != nil {
			return err
		}
		if !reserved {
			return ErrSlotUnavailable
		}

		return s.audit(ctx, creatorID, "group_created", "group", group.ID, map[string]interface{}{
			"total_members": group.TotalMembers,
			"creator_slot":  req.CreatorSlot,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"group_id": group.ID, "creator_id": creatorID}).Info("Group created")
	return group, nil
}

func (s *GroupService) GetGroup(ctx context.Context, groupID string) (*entity.Group, error) {
	group, err := s.stores.Groups.FindByID(ctx, strings.TrimSpace(groupID))
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

func (s *GroupService) ListSlots(ctx context.Context, groupID string) ([]*entity.PayoutSlot, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.stores.Slots.ListByGroup(ctx, groupID)
}

// RequestSlot reserves the preferred slot and files a join request in one
// transaction. Of two concurrent requests for the same slot exactly one wins;
// the other gets ErrSlotUnavailable.
func (s *GroupService) RequestSlot(ctx context.Context, userID string, req *types.RequestSlotRequest) (*entity.JoinRequest, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || req == nil {
		return nil, ErrInvalidRequest
	}

	group, err := s.GetGroup(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	if group.Status != entity.GroupStatusForming {
		return nil, ErrGroupNotForming
	}
	if group.IsFull() {
		return nil, ErrGroupFull
	}
	if req.PreferredSlot < 1 || req.PreferredSlot > group.TotalMembers {
		return nil, fmt.Errorf("%w: slot must be between 1 and %d", ErrInvalidRequest, group.TotalMembers)
	}
	if group.CreatorID == userID {
		return nil, ErrAlreadyMember
	}

	membership, err := s.stores.Memberships.FindByGroupUser(ctx, group.ID, userID)
	if err != nil {
		return nil, err
	}
	if membership != nil {
		return nil, ErrAlreadyMember
	}
	approved, err := s.stores.JoinRequests.FindLatestByGroupUser(ctx, group.ID, userID, entity.JoinRequestStatusApproved)
	if err != nil {
		return nil, err
	}
	if approved != nil {
		return nil, ErrRequestApproved
	}

	now := s.now()
	joinReq := &entity.JoinRequest{
		ID:            uuid.NewString(),
		GroupID:       group.ID,
		UserID:        userID,
		PreferredSlot: req.PreferredSlot,
		Status:        entity.JoinRequestStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Message != "" {
		message := req.Message
		joinReq.Message = &message
	}

	err = s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		reserved, err := s.stores.Slots.Reserve(ctx, group.ID, req.PreferredSlot, userID, now)
		if err != nil {
			return err
		}
		if !reserved {
			return ErrSlotUnavailable
		}

		if err := s.stores.JoinRequests.Create(ctx, joinReq); err != nil {
			if errors.Is(err, repository.ErrJoinRequestAlreadyExists) {
				return ErrPendingRequest
			}
			return err
		}

		return s.audit(ctx, userID, "join_requested", "join_request", joinReq.ID, map[string]interface{}{
			"group_id": group.ID,
			"slot":     req.PreferredSlot,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	return joinReq, nil
}

// ApproveJoinRequest assigns the reserved slot to the requester. Membership
// only starts once the join payment is verified.
func (s *GroupService) ApproveJoinRequest(ctx context.Context, reviewerID, requestID string) (*entity.JoinRequest, error) {
	joinReq, group, err := s.reviewable(ctx, reviewerID, requestID)
	if err != nil {
		return nil, err
	}
	if group.Status != entity.GroupStatusForming {
		return nil, ErrGroupNotForming
	}
	if group.IsFull() {
		return nil, ErrGroupFull
	}

	now := s.now()
	err = s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		assigned, err := s.stores.Slots.Assign(ctx, group.ID, joinReq.PreferredSlot, joinReq.UserID, now)
		if err != nil {
			return err
		}
		if !assigned {
			return ErrSlotUnavailable
		}

		if err := s.transition(ctx, joinReq, entity.JoinRequestStatusApproved, reviewerID, nil, now); err != nil {
			return err
		}

		return s.audit(ctx, reviewerID, "join_approved", "join_request", joinReq.ID, map[string]interface{}{
			"group_id": group.ID,
			"user_id":  joinReq.UserID,
			"slot":     joinReq.PreferredSlot,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	return joinReq, nil
}

func (s *GroupService) RejectJoinRequest(ctx context.Context, reviewerID, requestID, reason string) (*entity.JoinRequest, error) {
	joinReq, group, err := s.reviewable(ctx, reviewerID, requestID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var reasonPtr *string
	if reason = strings.TrimSpace(reason); reason != "" {
		reasonPtr = &reason
	}

	err = s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.stores.Slots.Release(ctx, group.ID, joinReq.PreferredSlot, joinReq.UserID, now); err != nil {
			return err
		}
		if err := s.transition(ctx, joinReq, entity.JoinRequestStatusRejected, reviewerID, reasonPtr, now); err != nil {
			return err
		}
		return s.audit(ctx, reviewerID, "join_rejected", "join_request", joinReq.ID, map[string]interface{}{
			"group_id": group.ID,
			"user_id":  joinReq.UserID,
			"reason":   reason,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	return joinReq, nil
}

func (s *GroupService) WithdrawJoinRequest(ctx context.Context, userID, requestID string) (*entity.JoinRequest, error) {
	joinReq, err := s.stores.JoinRequests.FindByID(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return nil, err
	}
	if joinReq == nil {
		return nil, ErrJoinRequestMissing
	}
	if joinReq.UserID != strings.TrimSpace(userID) {
		return nil, ErrForbidden
	}
	if joinReq.Status != entity.JoinRequestStatusPending {
		return nil, ErrInvalidStatus
	}

	now := s.now()
	err = s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.stores.Slots.Release(ctx, joinReq.GroupID, joinReq.PreferredSlot, joinReq.UserID, now); err != nil {
			return err
		}
		if err := s.transition(ctx, joinReq, entity.JoinRequestStatusWithdrawn, "", nil, now); err != nil {
			return err
		}
		return s.audit(ctx, joinReq.UserID, "join_withdrawn", "join_request", joinReq.ID, nil, now)
	})
	if err != nil {
		return nil, err
	}

	return joinReq, nil
}

func (s *GroupService) ListJoinRequests(ctx context.Context, userID, groupID, status string) ([]*entity.JoinRequest, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.CreatorID != strings.TrimSpace(userID) {
		return nil, ErrForbidden
	}
	return s.stores.JoinRequests.ListByGroup(ctx, group.ID, status)
}

// ListContributions is visible to the creator and to members.
func (s *GroupService) ListContributions(ctx context.Context, userID, groupID string) ([]*entity.Contribution, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if group.CreatorID != userID {
		membership, err := s.stores.Memberships.FindByGroupUser(ctx, group.ID, userID)
		if err != nil {
			return nil, err
		}
		if membership == nil {
			return nil, ErrForbidden
		}
	}
	return s.stores.Contributions.ListByGroup(ctx, group.ID)
}

// RunOverdueBatch flags pending contributions whose due date has passed.
func (s *GroupService) RunOverdueBatch(ctx context.Context) error {
	now := s.now()
	items, err := s.stores.Contributions.ListPastDue(ctx, now, batchSize(s.paymentsCfg))
	if err != nil {
		return err
	}

	var firstErr error
	for _, item := range items {
		if item == nil {
			continue
		}
		marked, err := s.stores.Contributions.MarkOverdue(ctx, item.ID, now)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if marked {
			s.logger.WithFields(logrus.Fields{
				"group_id":     item.GroupID,
				"user_id":      item.UserID,
				"cycle_number": item.CycleNumber,
			}).Info("Contribution overdue")
		}
	}

	return firstErr
}

func (s *GroupService) reviewable(ctx context.Context, reviewerID, requestID string) (*entity.JoinRequest, *entity.Group, error) {
	joinReq, err := s.stores.JoinRequests.FindByID(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return nil, nil, err
	}
	if joinReq == nil {
		return nil, nil, ErrJoinRequestMissing
	}
	group, err := s.GetGroup(ctx, joinReq.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if group.CreatorID != strings.TrimSpace(reviewerID) {
		return nil, nil, ErrForbidden
	}
	if joinReq.Status != entity.JoinRequestStatusPending {
		return nil, nil, ErrInvalidStatus
	}
	return joinReq, group, nil
}

func (s *GroupService) transition(ctx context.Context, joinReq *entity.JoinRequest, status, reviewerID string, reason *string, now time.Time) error {
	updated := *joinReq
	updated.Status = status
	updated.RejectionReason = reason
	updated.UpdatedAt = now
	if reviewerID != "" {
		updated.ReviewedBy = &reviewerID
		updated.ReviewedAt = &now
	}

	ok, err := s.stores.JoinRequests.Transition(ctx, &updated, entity.JoinRequestStatusPending)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidStatus
	}
	*joinReq = updated
	return nil
}

func (s *GroupService) audit(ctx context.Context, actorID, action, entityType, entityID string, details map[string]interface{}, now time.Time) error {
	return appendAudit(ctx, s.stores.Audit, actorID, action, entityType, entityID, details, now)
}

func appendAudit(ctx context.Context, repo auditRepository, actorID, action, entityType, entityID string, details map[string]interface{}, now time.Time) error {
	var detailsJSON *string
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return err
		}
		s := string(raw)
		detailsJSON = &s
	}
	return repo.Create(ctx, &entity.AuditEntry{
		ActorID:     actorID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		DetailsJSON: detailsJSON,
		CreatedAt:   now,
	})
}

func batchSize(cfg config.PaymentsConfig) int32 {
	if cfg.JobBatchSize <= 0 {
		return defaultBatchSize
	}
	return cfg.JobBatchSize
}

func keepFirstErr(current error, next error) error {
	if current != nil {
		return current
	}
	return next
}
