package mapper

import (
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
)

func GroupToResponse(group *entity.Group) *types.GroupResponse {
	if group == nil {
		return nil
	}

	return &types.GroupResponse{
		ID:                      group.ID,
		Name:                    group.Name,
		Description:             derefString(group.Description),
		CreatorID:               group.CreatorID,
		ContributionAmountMinor: group.ContributionAmountMinor,
		SecurityDepositMinor:    group.SecurityDepositMinor,
		Currency:                group.Currency,
		Frequency:               group.Frequency,
		TotalMembers:            group.TotalMembers,
		CurrentMembers:          group.CurrentMembers,
		CurrentCycle:            group.CurrentCycle,
		ServiceFeePercent:       group.ServiceFeePercent,
		Status:                  group.Status,
		StartDate:               group.StartDate,
		CreatedAt:               group.CreatedAt,
	}
}

func SlotsToResponse(slots []*entity.PayoutSlot) []*types.SlotResponse {
	out := make([]*types.SlotResponse, 0, len(slots))
	for _, slot := range slots {
		if slot == nil {
			continue
		}
		item := &types.SlotResponse{
			SlotNumber:  slot.SlotNumber,
			PayoutCycle: slot.PayoutCycle,
			Status:      slot.Status,
		}
		switch slot.Status {
		case entity.SlotStatusAssigned:
			item.HolderID = derefString(slot.AssignedTo)
		case entity.SlotStatusReserved:
			item.HolderID = derefString(slot.ReservedBy)
		}
		out = append(out, item)
	}
	return out
}

func JoinRequestToResponse(req *entity.JoinRequest) *types.JoinRequestResponse {
	if req == nil {
		return nil
	}

	return &types.JoinRequestResponse{
		ID:              req.ID,
		GroupID:         req.GroupID,
		UserID:          req.UserID,
		PreferredSlot:   req.PreferredSlot,
		Message:         derefString(req.Message),
		Status:          req.Status,
		ReviewedBy:      derefString(req.ReviewedBy),
		ReviewedAt:      req.ReviewedAt,
		RejectionReason: derefString(req.RejectionReason),
		CreatedAt:       req.CreatedAt,
	}
}

func JoinRequestsToResponse(items []*entity.JoinRequest) []*types.JoinRequestResponse {
	out := make([]*types.JoinRequestResponse, 0, len(items))
	for _, item := range items {
		if mapped := JoinRequestToResponse(item); mapped != nil {
			out = append(out, mapped)
		}
	}
	return out
}

func ContributionsToResponse(items []*entity.Contribution) []*types.ContributionResponse {
	out := make([]*types.ContributionResponse, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, &types.ContributionResponse{
			UserID:           item.UserID,
			CycleNumber:      item.CycleNumber,
			AmountMinor:      item.AmountMinor,
			Status:           item.Status,
			DueDate:          item.DueDate,
			PaidAt:           item.PaidAt,
			PaymentReference: derefString(item.PaymentReference),
		})
	}
	return out
}
