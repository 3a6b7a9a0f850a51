package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/mapper"
	"github.com/vibast-solutions/ms-go-ajo/app/service"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// internalCaller reads any payment; the internal auth interceptor has already
// vetted the calling service.
var internalCaller = service.Caller{UserID: "internal", SessionValid: true, IsAdmin: true}

type PaymentAPI interface {
	GetPaymentStatus(ctx context.Context, caller service.Caller, reference string) (*service.PaymentStatus, error)
	ReprocessPayment(ctx context.Context, reference string) (*service.VerifyResult, error)
	ListReconciliations(ctx context.Context, req *types.ListReconciliationsRequest) ([]*entity.Reconciliation, error)
}

type Server struct {
	payments PaymentAPI
}

func NewServer(payments PaymentAPI) *Server {
	return &Server{payments: payments}
}

func (s *Server) Health(_ context.Context, _ *HealthRequest) (*types.HealthResponse, error) {
	return &types.HealthResponse{Status: "ok"}, nil
}

func (s *Server) GetPaymentStatus(ctx context.Context, req *PaymentReferenceRequest) (*types.PaymentStatusResponse, error) {
	ref := &types.PaymentReferenceRequest{Reference: strings.TrimSpace(req.Reference)}
	if err := ref.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	item, err := s.payments.GetPaymentStatus(ctx, internalCaller, ref.Reference)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			return nil, status.Error(codes.NotFound, "payment not found")
		}
		loggerWithContext(ctx).WithError(err).Error("Get payment status failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return &types.PaymentStatusResponse{
		Payment:   mapper.PaymentToResponse(item.Payment),
		Activated: item.Activated,
		Position:  item.Position,
	}, nil
}

func (s *Server) ReprocessPayment(ctx context.Context, req *PaymentReferenceRequest) (*types.ReprocessPaymentResponse, error) {
	l := loggerWithContext(ctx)
	ref := &types.PaymentReferenceRequest{Reference: strings.TrimSpace(req.Reference)}
	if err := ref.Validate(); err != nil {
		l.WithError(err).Debug("Reprocess payment validation failed")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.payments.ReprocessPayment(ctx, ref.Reference)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			return nil, status.Error(codes.NotFound, "payment not found")
		case errors.Is(err, service.ErrRetryLater):
			return nil, status.Error(codes.Unavailable, err.Error())
		case errors.Is(err, service.ErrInvalidRequest):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		default:
			l.WithError(err).Error("Reprocess payment failed")
			return nil, status.Error(codes.Internal, "internal server error")
		}
	}

	return &types.ReprocessPaymentResponse{
		Reference: ref.Reference,
		Processed: result.Success,
		Position:  result.Position,
		Error:     result.Error,
	}, nil
}

func (s *Server) ListReconciliations(ctx context.Context, req *ListReconciliationsRequest) (*types.ListReconciliationsResponse, error) {
	list := &types.ListReconciliationsRequest{Status: strings.TrimSpace(req.Status), Limit: req.Limit, Offset: req.Offset}
	if list.Status == "" {
		list.Status = entity.ReconciliationStatusOpen
	}
	if err := list.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	items, err := s.payments.ListReconciliations(ctx, list)
	if err != nil {
		loggerWithContext(ctx).WithError(err).Error("List reconciliations failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return &types.ListReconciliationsResponse{Reconciliations: mapper.ReconciliationsToResponse(items)}, nil
}
