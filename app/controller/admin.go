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

type ReconciliationAPI interface {
	ListReconciliations(ctx context.Context, req *types.ListReconciliationsRequest) ([]*entity.Reconciliation, error)
	ResolveReconciliation(ctx context.Context, adminID string, req *types.ResolveReconciliationRequest) (*entity.Reconciliation, error)
}

// AdminController serves the manual reconciliation queue. Routes sit behind
// auth.RequireAdmin.
type AdminController struct {
	reconciliations ReconciliationAPI
	logger          logrus.FieldLogger
}

func NewAdminController(reconciliations ReconciliationAPI) *AdminController {
	return &AdminController{
		reconciliations: reconciliations,
		logger:          factory.NewModuleLogger("admin-controller"),
	}
}

func (c *AdminController) ListReconciliations(ctx echo.Context) error {
	req, err := types.NewListReconciliationsRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.reconciliations.ListReconciliations(ctx.Request().Context(), req)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "List reconciliations")
	}

	return ctx.JSON(http.StatusOK, &types.ListReconciliationsResponse{Reconciliations: mapper.ReconciliationsToResponse(items)})
}

func (c *AdminController) ResolveReconciliation(ctx echo.Context) error {
	caller, ok := callerFromContext(ctx)
	if !ok {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}
	req, err := types.NewResolveReconciliationRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.reconciliations.ResolveReconciliation(ctx.Request().Context(), caller.UserID, req)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "Resolve reconciliation")
	}

	factory.LoggerWithContext(c.logger, ctx).WithFields(logrus.Fields{
		"reconciliation_id": item.ID,
		"resolution":        req.Resolution,
		"status":            item.Status,
	}).Info("Reconciliation reviewed")
	return ctx.JSON(http.StatusOK, &types.ReconciliationEnvelopeResponse{Reconciliation: mapper.ReconciliationToResponse(item)})
}
