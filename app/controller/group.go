package controller

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/factory"
	"github.com/vibast-solutions/ms-go-ajo/app/mapper"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
)

type GroupAPI interface {
	CreateGroup(ctx context.Context, creatorID string, req *types.CreateGroupRequest) (*entity.Group, error)
	GetGroup(ctx context.Context, groupID string) (*entity.Group, error)
	ListSlots(ctx context.Context, groupID string) ([]*entity.PayoutSlot, error)
	RequestSlot(ctx context.Context, userID string, req *types.RequestSlotRequest) (*entity.JoinRequest, error)
	ApproveJoinRequest(ctx context.Context, reviewerID, requestID string) (*entity.JoinRequest, error)
	RejectJoinRequest(ctx context.Context, reviewerID, requestID, reason string) (*entity.JoinRequest, error)
	WithdrawJoinRequest(ctx context.Context, userID, requestID string) (*entity.JoinRequest, error)
	ListJoinRequests(ctx context.Context, userID, groupID, status string) ([]*entity.JoinRequest, error)
	ListContributions(ctx context.Context, userID, groupID string) ([]*entity.Contribution, error)
}

type GroupController struct {
	groups GroupAPI
	logger logrus.FieldLogger
}

func NewGroupController(groups GroupAPI) *GroupController {
	return &GroupController{
		groups: groups,
		logger: factory.NewModuleLogger("groups-controller"),
	}
}

func (c *GroupController) CreateGroup(ctx echo.Context) error {
	caller, ok := callerFromContext(ctx)
	if !ok {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}
	req, err := types.NewCreateGroupRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	group, err := c.groups.CreateGroup(ctx.Request().Context(), caller.UserID, req)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "Create group")
	}

	return ctx.JSON(http.StatusCreated, &types.GroupEnvelopeResponse{Group: mapper.GroupToResponse(group)})
}

func (c *GroupController) GetGroup(ctx echo.Context) error {
	req, _ := types.NewGroupIDRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	group, err := c.groups.GetGroup(ctx.Request().Context(), req.GroupID)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "Get group")
	}

	return ctx.JSON(http.StatusOK, &types.GroupEnvelopeResponse{Group: mapper.GroupToResponse(group)})
}

func (c *GroupController) ListSlots(ctx echo.Context) error {
	req, _ := types.NewGroupIDRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	slots, err := c.groups.ListSlots(ctx.Request().Context(), req.GroupID)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "List slots")
	}

	return ctx.JSON(http.StatusOK, &types.ListSlotsResponse{Slots: mapper.SlotsToResponse(slots)})
}

func (c *GroupController) RequestSlot(ctx echo.Context) error {
	caller, ok := callerFromContext(ctx)
	if !ok {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}
	req, err := types.NewRequestSlotRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	joinReq, err := c.groups.RequestSlot(ctx.Request().Context(), caller.UserID, req)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "Request slot")
	}

	return ctx.JSON(http.StatusCreated, &types.JoinRequestEnvelopeResponse{JoinRequest: mapper.JoinRequestToResponse(joinReq)})
}

func (c *GroupController) ListJoinRequests(ctx echo.Context) error {
	caller, ok := callerFromContext(ctx)
	if !ok {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}
	req, _ := types.NewListJoinRequestsRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.groups.ListJoinRequests(ctx.Request().Context(), caller.UserID, req.GroupID, req.Status)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "List join requests")
	}

	return ctx.JSON(http.StatusOK, &types.ListJoinRequestsResponse{JoinRequests: mapper.JoinRequestsToResponse(items)})
}

func (c *GroupController) ApproveJoinRequest(ctx echo.Context) error {
	return c.review(ctx, "Approve join request", func(ctx context.Context, userID string, req *types.ReviewJoinRequestRequest) (*entity.JoinRequest, error) {
		return c.groups.ApproveJoinRequest(ctx, userID, req.RequestID)
	})
}

func (c *GroupController) RejectJoinRequest(ctx echo.Context) error {
	return c.review(ctx, "Reject join request", func(ctx context.Context, userID string, req *types.ReviewJoinRequestRequest) (*entity.JoinRequest, error) {
		return c.groups.RejectJoinRequest(ctx, userID, req.RequestID, req.Reason)
	})
}

func (c *GroupController) WithdrawJoinRequest(ctx echo.Context) error {
	return c.review(ctx, "Withdraw join request", func(ctx context.Context, userID string, req *types.ReviewJoinRequestRequest) (*entity.JoinRequest, error) {
		return c.groups.WithdrawJoinRequest(ctx, userID, req.RequestID)
	})
}

func (c *GroupController) ListContributions(ctx echo.Context) error {
	caller, ok := callerFromContext(ctx)
	if !ok {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}
	req, _ := types.NewGroupIDRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.groups.ListContributions(ctx.Request().Context(), caller.UserID, req.GroupID)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "List contributions")
	}

	return ctx.JSON(http.StatusOK, &types.ListContributionsResponse{Contributions: mapper.ContributionsToResponse(items)})
}

func (c *GroupController) review(
	ctx echo.Context,
	action string,
	fn func(ctx context.Context, userID string, req *types.ReviewJoinRequestRequest) (*entity.JoinRequest, error),
) error {
	caller, ok := callerFromContext(ctx)
	if !ok {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}
	req, err := types.NewReviewJoinRequestRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	joinReq, err := fn(ctx.Request().Context(), caller.UserID, req)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, action)
	}

	return ctx.JSON(http.StatusOK, &types.JoinRequestEnvelopeResponse{JoinRequest: mapper.JoinRequestToResponse(joinReq)})
}
