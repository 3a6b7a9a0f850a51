//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-ajo/app/auth"
	"github.com/vibast-solutions/ms-go-ajo/app/client"
	ajogrpc "github.com/vibast-solutions/ms-go-ajo/app/grpc"
	"github.com/vibast-solutions/ms-go-ajo/app/provider"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultAjoHTTPBase        = "http://localhost:48080"
	defaultAjoGRPCAddr        = "localhost:49090"
	defaultAjoJWTSecret       = "e2e-jwt-secret"
	defaultAjoWebhookSecret   = "sk_test_e2e"
	groupContributionMinor    = 500000
	groupSecurityDepositMinor = 100000
)

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type requestOptions struct {
	token     string
	apiKey    string
	headers   map[string]string
	rawBody   []byte
	requestID string
}

func (c *httpClient) do(t *testing.T, method, path string, body any, opts requestOptions) (*http.Response, []byte) {
	t.Helper()

	payload := opts.rawBody
	if payload == nil && body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		payload = data
	}

	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.requestID != "" {
		req.Header.Set("X-Request-ID", opts.requestID)
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	if opts.apiKey != "" {
		req.Header.Set("X-API-Key", opts.apiKey)
	}
	for key, value := range opts.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}
	return resp, bodyBytes
}

func decode[T any](t *testing.T, body []byte) *T {
	t.Helper()
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal failed: %v body=%s", err, string(body))
	}
	return &out
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		resp, err := healthClient.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func waitForGRPC(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("grpc service not ready at %s", addr)
}

func dialAjoGRPC(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc dial failed: %v", err)
	}
	return conn
}

func grpcContextWithHeaders(apiKey, requestID string) context.Context {
	ctx := context.Background()
	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", requestID)
	}
	if apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", apiKey)
	}
	return ctx
}

func mustToken(t *testing.T, verifier *auth.TokenVerifier, userID, role string) string {
	t.Helper()
	token, err := verifier.Generate(userID, role, time.Hour)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	return token
}

func TestAjoE2E(t *testing.T) {
	httpBase := envOrDefault("AJO_HTTP_URL", defaultAjoHTTPBase)
	grpcAddr := envOrDefault("AJO_GRPC_ADDR", defaultAjoGRPCAddr)
	webhookSecret := envOrDefault("AJO_WEBHOOK_SECRET", defaultAjoWebhookSecret)

	if err := waitForHTTP(httpBase, 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}
	if err := waitForGRPC(grpcAddr, 30*time.Second); err != nil {
		t.Fatalf("grpc not ready: %v", err)
	}

	api := newHTTPClient(httpBase)
	verifier := auth.NewTokenVerifier(envOrDefault("AJO_JWT_SECRET", defaultAjoJWTSecret), envOrDefault("AJO_JWT_ISSUER", ""))

	suffix := time.Now().UnixNano()
	creatorID := fmt.Sprintf("creator-%d", suffix)
	joinerID := fmt.Sprintf("joiner-%d", suffix)
	creatorToken := mustToken(t, verifier, creatorID, "member")
	joinerToken := mustToken(t, verifier, joinerID, "member")
	adminToken := mustToken(t, verifier, fmt.Sprintf("admin-%d", suffix), auth.RoleAdmin)

	conn := dialAjoGRPC(t, grpcAddr)
	defer conn.Close()
	grpcClient := ajogrpc.NewAjoInternalServiceClient(conn)

	var (
		groupID          string
		creationRef      string
		joinRequestID    string
		joinRef          string
		reconciliationID uint64
	)

	t.Run("HTTPRequestIDGenerated", func(t *testing.T) {
		resp, _ := api.do(t, http.MethodGet, "/health", nil, requestOptions{})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatal("expected a generated X-Request-ID")
		}
	})

	t.Run("HTTPRequestIDEchoed", func(t *testing.T) {
		resp, _ := api.do(t, http.MethodGet, "/health", nil, requestOptions{requestID: "e2e-echo"})
		if resp.Header.Get("X-Request-ID") != "e2e-echo" {
			t.Fatalf("expected echoed request id, got %q", resp.Header.Get("X-Request-ID"))
		}
	})

	t.Run("HTTPMissingToken", func(t *testing.T) {
		resp, _ := api.do(t, http.MethodPost, "/groups", map[string]any{}, requestOptions{})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("CreateGroup", func(t *testing.T) {
		resp, body := api.do(t, http.MethodPost, "/groups", map[string]any{
			"name":                "e2e circle",
			"contribution_amount": groupContributionMinor,
			"security_deposit":    groupSecurityDepositMinor,
			"currency":            "NGN",
			"frequency":           "weekly",
			"total_members":       3,
			"creator_slot":        1,
		}, requestOptions{token: creatorToken})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d body=%s", resp.StatusCode, string(body))
		}
		envelope := decode[types.GroupEnvelopeResponse](t, body)
		if envelope.Group == nil || envelope.Group.Status != "forming" {
			t.Fatalf("unexpected group: %s", string(body))
		}
		groupID = envelope.Group.ID
	})

	t.Run("InitializeCreationPayment", func(t *testing.T) {
		resp, body := api.do(t, http.MethodPost, "/payments/initialize", map[string]any{
			"payment_type": "group_creation",
			"group_id":     groupID,
		}, requestOptions{token: creatorToken})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d body=%s", resp.StatusCode, string(body))
		}
		initialized := decode[types.InitializePaymentResponse](t, body)
		if initialized.AmountMinor != groupContributionMinor+groupSecurityDepositMinor {
			t.Fatalf("unexpected amount: %d", initialized.AmountMinor)
		}
		creationRef = initialized.Reference
	})

	t.Run("VerifyActivatesCreator", func(t *testing.T) {
		gateway.settle(creationRef, mockCharge{
			status:   "success",
			amount:   groupContributionMinor + groupSecurityDepositMinor,
			currency: "NGN",
			metadata: map[string]string{"payment_type": "group_creation", "group_id": groupID, "user_id": creatorID},
		})

		for attempt := 0; attempt < 2; attempt++ {
			resp, body := api.do(t, http.MethodPost, "/payments/verify", map[string]any{"reference": creationRef}, requestOptions{token: creatorToken})
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("attempt %d: expected 200, got %d body=%s", attempt, resp.StatusCode, string(body))
			}
			result := decode[types.VerifyPaymentResponse](t, body)
			if !result.Success || !result.Verified || result.Status != "success" {
				t.Fatalf("attempt %d: unexpected verify result: %s", attempt, string(body))
			}
			if result.Position == nil || *result.Position != 1 {
				t.Fatalf("attempt %d: expected position 1, got %v", attempt, result.Position)
			}
		}
	})

	t.Run("WatcherSeesActivation", func(t *testing.T) {
		watcher := client.NewWatcher(client.WatcherConfig{
			BaseURL:      httpBase,
			AccessToken:  creatorToken,
			PollInterval: 500 * time.Millisecond,
			MaxAttempts:  10,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		activation, err := watcher.WaitForActivation(ctx, creationRef)
		if err != nil {
			t.Fatalf("expected activation, got %v", err)
		}
		if !activation.Activated {
			t.Fatalf("unexpected activation: %+v", activation)
		}
	})

	t.Run("PaymentHiddenFromOtherUsers", func(t *testing.T) {
		resp, _ := api.do(t, http.MethodGet, "/payments/"+creationRef, nil, requestOptions{token: joinerToken})
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("WebhookRejectsBadSignature", func(t *testing.T) {
		payload := []byte(`{"event":"charge.success","data":{"reference":"` + creationRef + `"}}`)
		resp, _ := api.do(t, http.MethodPost, "/webhooks/paystack", nil, requestOptions{
			rawBody: payload,
			headers: map[string]string{provider.PaystackSignatureHeader: provider.ComputeSignature("wrong-secret", payload)},
		})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("WebhookReplayIsAcknowledged", func(t *testing.T) {
		payload := []byte(`{"event":"charge.success","data":{"reference":"` + creationRef + `"}}`)
		resp, body := api.do(t, http.MethodPost, "/webhooks/paystack", nil, requestOptions{
			rawBody: payload,
			headers: map[string]string{provider.PaystackSignatureHeader: provider.ComputeSignature(webhookSecret, payload)},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		if ack := decode[types.WebhookAckResponse](t, body); !ack.Received {
			t.Fatalf("unexpected ack: %s", string(body))
		}
	})

	t.Run("JoinRequestApproved", func(t *testing.T) {
		resp, body := api.do(t, http.MethodPost, "/groups/"+groupID+"/join-requests", map[string]any{
			"preferred_slot": 2,
			"message":        "count me in",
		}, requestOptions{token: joinerToken})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d body=%s", resp.StatusCode, string(body))
		}
		joinRequestID = decode[types.JoinRequestEnvelopeResponse](t, body).JoinRequest.ID

		resp, body = api.do(t, http.MethodPost, "/join-requests/"+joinRequestID+"/approve", map[string]any{}, requestOptions{token: joinerToken})
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403 for self approval, got %d body=%s", resp.StatusCode, string(body))
		}

		resp, body = api.do(t, http.MethodPost, "/join-requests/"+joinRequestID+"/approve", map[string]any{}, requestOptions{token: creatorToken})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("AmountMismatchIsFlagged", func(t *testing.T) {
		resp, body := api.do(t, http.MethodPost, "/payments/initialize", map[string]any{
			"payment_type": "group_join",
			"group_id":     groupID,
		}, requestOptions{token: joinerToken})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d body=%s", resp.StatusCode, string(body))
		}
		initialized := decode[types.InitializePaymentResponse](t, body)
		joinRef = initialized.Reference

		gateway.settle(joinRef, mockCharge{
			status:   "success",
			amount:   initialized.AmountMinor - 100,
			currency: "NGN",
			metadata: map[string]string{"payment_type": "group_join", "group_id": groupID, "user_id": joinerID},
		})

		resp, body = api.do(t, http.MethodPost, "/payments/verify", map[string]any{"reference": joinRef}, requestOptions{token: joinerToken})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		result := decode[types.VerifyPaymentResponse](t, body)
		if result.Success || !result.Verified || result.Error == "" {
			t.Fatalf("expected flagged verification, got %s", string(body))
		}
	})

	t.Run("AdminRoutesRequireRole", func(t *testing.T) {
		resp, _ := api.do(t, http.MethodGet, "/admin/reconciliations", nil, requestOptions{token: joinerToken})
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("AdminListsOpenReconciliation", func(t *testing.T) {
		resp, body := api.do(t, http.MethodGet, "/admin/reconciliations?status=open&limit=100", nil, requestOptions{token: adminToken})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		for _, item := range decode[types.ListReconciliationsResponse](t, body).Reconciliations {
			if item.Reference == joinRef {
				reconciliationID = item.ID
			}
		}
		if reconciliationID == 0 {
			t.Fatalf("expected reconciliation for %s in %s", joinRef, string(body))
		}
	})

	t.Run("InternalReprocessRequiresAPIKey", func(t *testing.T) {
		path := "/internal/payments/" + creationRef + "/reprocess"
		resp, _ := api.do(t, http.MethodPost, path, nil, requestOptions{})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		resp, _ = api.do(t, http.MethodPost, path, nil, requestOptions{apiKey: ajoNoAccessAPIKey()})
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.StatusCode)
		}
		resp, body := api.do(t, http.MethodPost, path, nil, requestOptions{apiKey: ajoCallerAPIKey()})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		if out := decode[types.ReprocessPaymentResponse](t, body); !out.Processed {
			t.Fatalf("expected processed payment, got %s", string(body))
		}
	})

	t.Run("GRPCMissingRequestID", func(t *testing.T) {
		_, err := grpcClient.GetPaymentStatus(grpcContextWithHeaders(ajoCallerAPIKey(), ""), &ajogrpc.PaymentReferenceRequest{Reference: creationRef})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("expected InvalidArgument, got %v", err)
		}
	})

	t.Run("GRPCUnauthorizedMissingAPIKey", func(t *testing.T) {
		ctx := grpcContextWithHeaders("", fmt.Sprintf("e2e-grpc-no-auth-%d", time.Now().UnixNano()))
		_, err := grpcClient.GetPaymentStatus(ctx, &ajogrpc.PaymentReferenceRequest{Reference: creationRef})
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected Unauthenticated, got %v", err)
		}
	})

	t.Run("GRPCPaymentStatus", func(t *testing.T) {
		ctx := grpcContextWithHeaders(ajoCallerAPIKey(), fmt.Sprintf("e2e-grpc-status-%d", time.Now().UnixNano()))
		res, err := grpcClient.GetPaymentStatus(ctx, &ajogrpc.PaymentReferenceRequest{Reference: creationRef})
		if err != nil {
			t.Fatalf("grpc payment status failed: %v", err)
		}
		if !res.Activated || res.Payment == nil || res.Payment.Reference != creationRef {
			t.Fatalf("unexpected status: %+v", res)
		}
	})

	t.Run("GRPCPaymentNotFound", func(t *testing.T) {
		ctx := grpcContextWithHeaders(ajoCallerAPIKey(), fmt.Sprintf("e2e-grpc-missing-%d", time.Now().UnixNano()))
		_, err := grpcClient.GetPaymentStatus(ctx, &ajogrpc.PaymentReferenceRequest{Reference: "ajo_missing"})
		if status.Code(err) != codes.NotFound {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})

	t.Run("AdminRefundsConflict", func(t *testing.T) {
		path := fmt.Sprintf("/admin/reconciliations/%d/resolve", reconciliationID)
		resp, body := api.do(t, http.MethodPost, path, map[string]any{
			"resolution": "refund",
			"note":       "amount short by 1.00",
		}, requestOptions{token: adminToken})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		resolved := decode[types.ReconciliationEnvelopeResponse](t, body).Reconciliation
		if resolved.Status != "resolved" || resolved.Resolution != "refund" {
			t.Fatalf("unexpected resolution: %s", string(body))
		}

		resp, _ = api.do(t, http.MethodPost, path, map[string]any{"resolution": "dismiss"}, requestOptions{token: adminToken})
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409 for second resolution, got %d", resp.StatusCode)
		}
	})
}
