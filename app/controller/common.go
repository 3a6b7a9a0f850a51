package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/auth"
	"github.com/vibast-solutions/ms-go-ajo/app/factory"
	"github.com/vibast-solutions/ms-go-ajo/app/provider"
	"github.com/vibast-solutions/ms-go-ajo/app/service"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
)

// retryAfterSeconds is sent with every 503 so clients and the gateway back
// off before retrying.
const retryAfterSeconds = "5"

func writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}

// writeServiceError maps service sentinels onto HTTP statuses. Anything not
// listed is logged and reported as a 500.
func writeServiceError(ctx echo.Context, logger logrus.FieldLogger, err error, action string) error {
	switch {
	case errors.Is(err, service.ErrRetryLater), errors.Is(err, provider.ErrGatewayUnavailable):
		ctx.Response().Header().Set("Retry-After", retryAfterSeconds)
		return writeError(ctx, http.StatusServiceUnavailable, service.ErrRetryLater.Error())
	case errors.Is(err, service.ErrSignatureMissing):
		return writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSignatureInvalid):
		return writeError(ctx, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return writeError(ctx, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrPaymentNotFound),
		errors.Is(err, service.ErrGroupNotFound),
		errors.Is(err, service.ErrJoinRequestMissing),
		errors.Is(err, service.ErrReconciliationNotFound),
		errors.Is(err, service.ErrContributionNotFound):
		return writeError(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAlreadyMember),
		errors.Is(err, service.ErrPendingRequest),
		errors.Is(err, service.ErrRequestApproved),
		errors.Is(err, service.ErrSlotUnavailable),
		errors.Is(err, service.ErrGroupFull),
		errors.Is(err, service.ErrGroupNotForming),
		errors.Is(err, service.ErrGroupNotActive),
		errors.Is(err, service.ErrReconciliationResolved):
		return writeError(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrNotEligible),
		errors.Is(err, service.ErrNotMember),
		errors.Is(err, service.ErrNoApprovedRequest):
		return writeError(ctx, http.StatusBadRequest, err.Error())
	default:
		factory.LoggerWithContext(logger, ctx).WithError(err).Error(action + " failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

// callerFromContext builds the service caller from the identity placed by the
// auth middleware.
func callerFromContext(ctx echo.Context) (service.Caller, bool) {
	identity := auth.IdentityFromContext(ctx)
	if identity == nil || identity.UserID == "" {
		return service.Caller{}, false
	}
	return service.Caller{
		UserID:       identity.UserID,
		SessionValid: identity.SessionValid,
		IsAdmin:      identity.SessionValid && identity.IsAdmin(),
	}, true
}
