//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"os"
	"strings"

	authpb "github.com/vibast-solutions/ms-go-auth/app/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultAjoCallerAPIKey   = "ajo-caller-key"
	defaultAjoNoAccessAPIKey = "ajo-no-access-key"
	defaultAjoAppAPIKey      = "ajo-app-api-key"
	defaultAjoServiceName    = "ajo-service"
	ajoAuthMockAddr          = "0.0.0.0:38084"
)

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func ajoCallerAPIKey() string {
	return envOrDefault("AJO_CALLER_API_KEY", defaultAjoCallerAPIKey)
}

func ajoNoAccessAPIKey() string {
	return envOrDefault("AJO_NO_ACCESS_API_KEY", defaultAjoNoAccessAPIKey)
}

func ajoAppAPIKey() string {
	return envOrDefault("AJO_APP_API_KEY", defaultAjoAppAPIKey)
}

func ajoServiceName() string {
	return envOrDefault("AJO_SERVICE_NAME", defaultAjoServiceName)
}

// ajoAuthGRPCServer answers the internal access checks lib-go-auth makes on
// behalf of the ajo service.
type ajoAuthGRPCServer struct {
	authpb.UnimplementedAuthServiceServer
}

func (s *ajoAuthGRPCServer) ValidateInternalAccess(ctx context.Context, req *authpb.ValidateInternalAccessRequest) (*authpb.ValidateInternalAccessResponse, error) {
	if incomingAPIKey(ctx) != ajoAppAPIKey() {
		return nil, status.Error(codes.Unauthenticated, "unauthorized caller")
	}

	switch strings.TrimSpace(req.GetApiKey()) {
	case ajoCallerAPIKey():
		return &authpb.ValidateInternalAccessResponse{
			ServiceName:   "ledger-ops",
			AllowedAccess: []string{ajoServiceName(), "notifications-service"},
		}, nil
	case ajoNoAccessAPIKey():
		return &authpb.ValidateInternalAccessResponse{
			ServiceName:   "ledger-ops",
			AllowedAccess: []string{"notifications-service"},
		}, nil
	default:
		return nil, status.Error(codes.Unauthenticated, "invalid api key")
	}
}

func incomingAPIKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("x-api-key")
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
