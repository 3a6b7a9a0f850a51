package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	PaystackCode            = "paystack"
	PaystackSignatureHeader = "X-Paystack-Signature"

	maxVerifyResponseBytes = 1 << 20
)

type PaystackConfig struct {
	BaseURL       string
	SecretKey     string
	PublicKey     string
	WebhookSecret string
	VerifyTimeout time.Duration
}

type PaystackGateway struct {
	cfg    PaystackConfig
	client *http.Client
}

func NewPaystackGateway(cfg PaystackConfig) *PaystackGateway {
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.paystack.co"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &PaystackGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.VerifyTimeout},
	}
}

func (p *PaystackGateway) Code() string {
	return PaystackCode
}

func (p *PaystackGateway) PublicKey() string {
	return p.cfg.PublicKey
}

func (p *PaystackGateway) SignatureHeader() string {
	return PaystackSignatureHeader
}

func (p *PaystackGateway) Verify(ctx context.Context, reference string) (*Verification, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrVerificationRejected)
	}
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, errors.New("gateway secret key is not configured")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, p.cfg.VerifyTimeout)
	defer cancel()

	endpoint := p.cfg.BaseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(verifyCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifyResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status=%d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrVerificationRejected, resp.StatusCode, truncateBody(body))
	}

	return parsePaystackVerification(reference, body)
}

// VerifyWebhookSignature checks the hex HMAC-SHA512 of the raw body. It must
// run before the body is parsed.
func (p *PaystackGateway) VerifyWebhookSignature(payload []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureMissing
	}
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook secret is not configured", ErrSignatureInvalid)
	}

	expected := ComputeSignature(p.cfg.WebhookSecret, payload)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrSignatureInvalid
	}
	return nil
}

func (p *PaystackGateway) ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var envelope struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	event := strings.TrimSpace(envelope.Event)
	if event == "" {
		return nil, errors.New("webhook event name is missing")
	}
	return &WebhookEvent{
		Event:     event,
		Reference: strings.TrimSpace(envelope.Data.Reference),
	}, nil
}

// ComputeSignature returns the lower-case hex HMAC-SHA512 of payload.
func ComputeSignature(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parsePaystackVerification(reference string, body []byte) (*Verification, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var envelope map[string]interface{}
	if err := decoder.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed body: %v", ErrVerificationRejected, err)
	}

	if ok, _ := envelope["status"].(bool); !ok {
		message, _ := envelope["message"].(string)
		return nil, fmt.Errorf("%w: gateway status false: %s", ErrVerificationRejected, message)
	}

	data, ok := envelope["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing data object", ErrVerificationRejected)
	}

	gotReference, _ := data["reference"].(string)
	if strings.TrimSpace(gotReference) != reference {
		return nil, fmt.Errorf("%w: reference mismatch", ErrVerificationRejected)
	}

	gatewayStatus, _ := data["status"].(string)
	gatewayStatus = strings.ToLower(strings.TrimSpace(gatewayStatus))
	if gatewayStatus == "" {
		return nil, fmt.Errorf("%w: missing transaction status", ErrVerificationRejected)
	}

	amount, ok := toInt64(data["amount"])
	if !ok || amount < 0 {
		return nil, fmt.Errorf("%w: invalid amount", ErrVerificationRejected)
	}

	currency, _ := data["currency"].(string)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: invalid currency", ErrVerificationRejected)
	}

	verification := &Verification{
		Reference:     reference,
		Status:        normalizeStatus(gatewayStatus),
		GatewayStatus: gatewayStatus,
		AmountMinor:   amount,
		Currency:      currency,
		Metadata:      toStringMap(data["metadata"]),
		RawJSON:       string(body),
	}

	if channel, ok := data["channel"].(string); ok && strings.TrimSpace(channel) != "" {
		c := strings.TrimSpace(channel)
		verification.Channel = &c
	}
	if fees, ok := toInt64(data["fees"]); ok {
		verification.FeesMinor = &fees
	}
	if paidAtRaw, ok := data["paid_at"].(string); ok && paidAtRaw != "" {
		if paidAt, err := time.Parse(time.RFC3339, paidAtRaw); err == nil {
			utc := paidAt.UTC()
			verification.PaidAt = &utc
		}
	}
	if id, ok := toInt64(data["id"]); ok {
		txID := strconv.FormatInt(id, 10)
		verification.TransactionID = &txID
	}

	return verification, nil
}

func normalizeStatus(gatewayStatus string) string {
	switch gatewayStatus {
	case "success":
		return StatusSuccess
	case "failed", "abandoned", "reversed":
		return StatusFailed
	default:
		return StatusPending
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(n), true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// toStringMap flattens gateway metadata into string values. The gateway may
// send an object, a JSON encoded string or an empty string.
func toStringMap(v interface{}) map[string]string {
	out := map[string]string{}
	switch m := v.(type) {
	case map[string]interface{}:
		for key, value := range m {
			switch typed := value.(type) {
			case string:
				out[key] = typed
			case json.Number:
				out[key] = typed.String()
			case bool:
				out[key] = strconv.FormatBool(typed)
			case float64:
				out[key] = strconv.FormatFloat(typed, 'f', -1, 64)
			}
		}
	case string:
		if strings.TrimSpace(m) == "" {
			return out
		}
		decoder := json.NewDecoder(strings.NewReader(m))
		decoder.UseNumber()
		var nested map[string]interface{}
		if err := decoder.Decode(&nested); err == nil {
			return toStringMap(nested)
		}
	}
	return out
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max])
}
