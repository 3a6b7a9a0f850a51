//go:build e2e
// +build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
)

const ajoGatewayMockAddr = "0.0.0.0:38085"

type mockCharge struct {
	status   string
	amount   int64
	currency string
	metadata map[string]string
}

// mockGateway stands in for the payment gateway verify endpoint. Tests settle
// a reference before asking the service to verify it.
type mockGateway struct {
	mu      sync.Mutex
	charges map[string]mockCharge
}

func newMockGateway() *mockGateway {
	return &mockGateway{charges: map[string]mockCharge{}}
}

func (g *mockGateway) settle(reference string, charge mockCharge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges[reference] = charge
}

func (g *mockGateway) lookup(reference string) (mockCharge, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	charge, ok := g.charges[reference]
	return charge, ok
}

func (g *mockGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /transaction/verify/{reference}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
			return
		}

		reference := r.PathValue("reference")
		charge, ok := g.lookup(reference)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]interface{}{
				"id":        time.Now().UnixNano() / 1000,
				"status":    charge.status,
				"reference": reference,
				"amount":    charge.amount,
				"currency":  charge.currency,
				"channel":   "card",
				"fees":      charge.amount / 100,
				"paid_at":   time.Now().UTC().Format(time.RFC3339),
				"metadata":  charge.metadata,
			},
		})
	})
	return mux
}
