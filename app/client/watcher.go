package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/factory"
	"github.com/vibast-solutions/ms-go-ajo/app/notifier"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
)

var (
	ErrActivationTimeout = errors.New("payment was not activated before polling gave up")
	ErrUnauthorized      = errors.New("access token rejected")
)

// WatcherConfig.StreamTimeout bounds how long the live stream is followed
// before the watcher switches to polling.
type WatcherConfig struct {
	BaseURL       string
	AccessToken   string
	PollInterval  time.Duration
	MaxAttempts   int
	HTTPTimeout   time.Duration
	StreamTimeout time.Duration
}

// Activation is the final state seen by the watcher.
type Activation struct {
	Reference string
	Status    string
	Activated bool
	Position  *int32
	Error     string
}

// Done reports whether the payment reached a state that will not change
// without operator action.
func (a *Activation) Done() bool {
	return a.Activated || a.Status == entity.PaymentStatusFailed || a.Error != ""
}

// Watcher follows one payment until its membership effect is applied. It
// prefers the websocket stream and falls back to polling the status endpoint.
type Watcher struct {
	cfg        WatcherConfig
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     logrus.FieldLogger
}

func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Watcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: cfg.HTTPTimeout},
		logger:     factory.NewModuleLogger("activation-watcher"),
	}
}

func (w *Watcher) WaitForActivation(ctx context.Context, reference string) (*Activation, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, errors.New("reference is required")
	}

	activation, err := w.watchStream(ctx, reference)
	if err == nil {
		return activation, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, ErrUnauthorized) {
		return nil, err
	}

	w.logger.WithError(err).WithField("reference", reference).Info("Live updates unavailable, polling")
	return w.poll(ctx, reference)
}

// watchStream returns an error whenever the stream cannot carry the payment to
// a final state, so the caller can fall back to polling.
func (w *Watcher) watchStream(ctx context.Context, reference string) (*Activation, error) {
	wsURL, err := w.streamURL(reference)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.StreamTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+w.cfg.AccessToken)
	conn, resp, err := w.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var update notifier.PaymentUpdate
		if err := conn.ReadJSON(&update); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("stream ended without a final state: %w", ctx.Err())
			}
			return nil, fmt.Errorf("read stream: %w", err)
		}

		activation := &Activation{
			Reference: reference,
			Status:    update.Status,
			Activated: update.Activated,
			Position:  update.Position,
			Error:     update.Error,
		}
		if activation.Done() {
			return activation, nil
		}
		if update.Verified {
			// the stream only says verified; the status endpoint knows
			// whether the membership exists.
			current, err := w.check(ctx, reference)
			if err != nil {
				return nil, err
			}
			if current.Done() {
				return current, nil
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context, reference string) (*Activation, error) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		activation, err := w.check(ctx, reference)
		switch {
		case err == nil && activation.Done():
			return activation, nil
		case errors.Is(err, ErrUnauthorized):
			return nil, err
		case err != nil:
			w.logger.WithError(err).WithFields(logrus.Fields{
				"reference": reference,
				"attempt":   attempt,
			}).Warn("Status check failed")
		}

		if attempt == w.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return nil, ErrActivationTimeout
}

func (w *Watcher) check(ctx context.Context, reference string) (*Activation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.BaseURL+"/payments/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status types.PaymentStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, err
	}
	if status.Payment == nil {
		return nil, errors.New("status response carries no payment")
	}

	return &Activation{
		Reference: reference,
		Status:    status.Payment.Status,
		Activated: status.Activated,
		Position:  status.Position,
		Error:     status.Payment.ProcessingError,
	}, nil
}

func (w *Watcher) streamURL(reference string) (string, error) {
	u, err := url.Parse(w.cfg.BaseURL + "/payments/" + url.PathEscape(reference) + "/subscribe")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
