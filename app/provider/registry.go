package provider

import (
	"errors"
	"strings"
)

var ErrGatewayNotSupported = errors.New("gateway is not supported")

type Registry struct {
	gateways    map[string]Gateway
	defaultCode string
}

// NewRegistry uses the first gateway as the default one.
func NewRegistry(gateways ...Gateway) *Registry {
	items := make(map[string]Gateway, len(gateways))
	defaultCode := ""
	for _, g := range gateways {
		code := strings.ToLower(g.Code())
		if defaultCode == "" {
			defaultCode = code
		}
		items[code] = g
	}
	return &Registry{gateways: items, defaultCode: defaultCode}
}

func (r *Registry) Get(code string) (Gateway, error) {
	gateway, ok := r.gateways[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrGatewayNotSupported
	}
	return gateway, nil
}

func (r *Registry) Default() (Gateway, error) {
	return r.Get(r.defaultCode)
}
