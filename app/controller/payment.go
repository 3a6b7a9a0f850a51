package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/factory"
	"github.com/vibast-solutions/ms-go-ajo/app/mapper"
	"github.com/vibast-solutions/ms-go-ajo/app/notifier"
	"github.com/vibast-solutions/ms-go-ajo/app/service"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
)

// PaymentAPI is the part of the payment service the HTTP layer drives.
type PaymentAPI interface {
	GatewayPublicKey() string
	SignatureHeader() string
	InitializePayment(ctx context.Context, userID string, req *types.InitializePaymentRequest) (*entity.Payment, error)
	VerifyPayment(ctx context.Context, caller service.Caller, reference string) (*service.VerifyResult, error)
	GetPaymentStatus(ctx context.Context, caller service.Caller, reference string) (*service.PaymentStatus, error)
	CurrentUpdate(ctx context.Context, caller service.Caller, reference string) (*notifier.PaymentUpdate, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*service.VerifyResult, error)
	ReprocessPayment(ctx context.Context, reference string) (*service.VerifyResult, error)
}

// Streamer upgrades a request into a live update stream for one reference.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, reference string, current func() (*notifier.PaymentUpdate, error)) error
}

type PaymentController struct {
	payments PaymentAPI
	streamer Streamer
	logger   logrus.FieldLogger
}

func NewPaymentController(payments PaymentAPI, streamer Streamer) *PaymentController {
	return &PaymentController{
		payments: payments,
		streamer: streamer,
		logger:   factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) InitializePayment(ctx echo.Context) error {
	caller, ok := callerFromContext(ctx)
	if !ok {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}
	req, err := types.NewInitializePaymentRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	payment, err := c.payments.InitializePayment(ctx.Request().Context(), caller.UserID, req)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "Initialize payment")
	}

	return ctx.JSON(http.StatusCreated, &types.InitializePaymentResponse{
		Reference:   payment.Reference,
		PaymentType: payment.PaymentType,
		AmountMinor: payment.AmountMinor,
		Currency:    payment.Currency,
		PublicKey:   c.payments.GatewayPublicKey(),
	})
}

// VerifyPayment is the synchronous confirmation the client sends after the
// checkout closes. Failed charges and structural conflicts are 200 responses
// with success=false.
func (c *PaymentController) VerifyPayment(ctx echo.Context) error {
	caller, ok := callerFromContext(ctx)
	if !ok {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}
	req, err := types.NewVerifyPaymentRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.payments.VerifyPayment(ctx.Request().Context(), caller, req.Reference)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "Verify payment")
	}

	if result.Conflict != "" {
		factory.LoggerWithContext(c.logger, ctx).WithFields(logrus.Fields{
			"reference": req.Reference,
			"conflict":  result.Conflict,
		}).Warn("Verified payment flagged for review")
	}
	return ctx.JSON(http.StatusOK, verifyResponse(result))
}

func (c *PaymentController) GetPayment(ctx echo.Context) error {
	caller, ok := callerFromContext(ctx)
	if !ok {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}
	req, _ := types.NewPaymentReferenceRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	status, err := c.payments.GetPaymentStatus(ctx.Request().Context(), caller, req.Reference)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "Get payment")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentStatusResponse{
		Payment:   mapper.PaymentToResponse(status.Payment),
		Activated: status.Activated,
		Position:  status.Position,
	})
}

// Subscribe upgrades to a websocket that first carries the current state of
// the payment and then every later change.
func (c *PaymentController) Subscribe(ctx echo.Context) error {
	caller, ok := callerFromContext(ctx)
	if !ok {
		return writeError(ctx, http.StatusUnauthorized, "authentication required")
	}
	req, _ := types.NewPaymentReferenceRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	// Checked before the upgrade so refusals are plain HTTP errors.
	if _, err := c.payments.CurrentUpdate(ctx.Request().Context(), caller, req.Reference); err != nil {
		return writeServiceError(ctx, c.logger, err, "Subscribe")
	}

	streamCtx := context.WithoutCancel(ctx.Request().Context())
	current := func() (*notifier.PaymentUpdate, error) {
		return c.payments.CurrentUpdate(streamCtx, caller, req.Reference)
	}
	if err := c.streamer.Serve(ctx.Response(), ctx.Request(), req.Reference, current); err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).WithField("reference", req.Reference).Debug("Subscription upgrade failed")
	}
	return nil
}

// HandleWebhook acknowledges gateway events. Signature failures never reach
// the pipeline; a 503 asks the gateway to deliver again.
func (c *PaymentController) HandleWebhook(ctx echo.Context) error {
	req, err := types.NewWebhookRequestFromContext(ctx, c.payments.SignatureHeader())
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	if _, err := c.payments.HandleWebhook(ctx.Request().Context(), req.Payload, req.Signature); err != nil {
		if errors.Is(err, service.ErrSignatureMissing) || errors.Is(err, service.ErrSignatureInvalid) {
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Webhook rejected")
		}
		return writeServiceError(ctx, c.logger, err, "Handle webhook")
	}

	return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Received: true})
}

func (c *PaymentController) ReprocessPayment(ctx echo.Context) error {
	req, _ := types.NewPaymentReferenceRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.payments.ReprocessPayment(ctx.Request().Context(), req.Reference)
	if err != nil {
		return writeServiceError(ctx, c.logger, err, "Reprocess payment")
	}

	return ctx.JSON(http.StatusOK, reprocessResponse(req.Reference, result))
}

func verifyResponse(result *service.VerifyResult) *types.VerifyPaymentResponse {
	return &types.VerifyPaymentResponse{
		Success:  result.Success,
		Verified: result.Verified,
		Status:   result.Status,
		Position: result.Position,
		Message:  result.Message,
		Error:    result.Error,
	}
}

func reprocessResponse(reference string, result *service.VerifyResult) *types.ReprocessPaymentResponse {
	return &types.ReprocessPaymentResponse{
		Reference: reference,
		Processed: result.Success,
		Position:  result.Position,
		Error:     result.Error,
	}
}
