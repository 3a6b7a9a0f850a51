package types

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	defaultListLimit = int32(50)
	maxListLimit     = int32(500)
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func parseLimitOffset(ctx echo.Context) (int32, int32, error) {
	limit := defaultListLimit
	offset := int32(0)

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		n, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return 0, 0, err
		}
		limit = int32(n)
	}
	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		n, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return 0, 0, err
		}
		offset = int32(n)
	}
	return limit, offset, nil
}

func validateLimitOffset(limit, offset int32) error {
	if limit <= 0 || limit > maxListLimit {
		return errors.New("limit must be between 1 and 500")
	}
	if offset < 0 {
		return errors.New("offset must be >= 0")
	}
	return nil
}
