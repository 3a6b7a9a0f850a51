package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

var hundred = decimal.NewFromInt(100)

// addPeriods moves t forward by n contribution periods.
func addPeriods(t time.Time, frequency string, n int) time.Time {
	switch frequency {
	case entity.FrequencyDaily:
		return t.AddDate(0, 0, n)
	case entity.FrequencyWeekly:
		return t.AddDate(0, 0, 7*n)
	case entity.FrequencyBiweekly:
		return t.AddDate(0, 0, 14*n)
	default:
		return t.AddDate(0, n, 0)
	}
}

// serviceFee is percent of gross, rounded half up to whole minor units.
func serviceFee(grossMinor int64, percent string) (int64, error) {
	percent = strings.TrimSpace(percent)
	if percent == "" {
		return 0, nil
	}
	pct, err := decimal.NewFromString(percent)
	if err != nil {
		return 0, fmt.Errorf("invalid service fee percent %q: %w", percent, err)
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return 0, fmt.Errorf("service fee percent %s out of range", pct.String())
	}
	return decimal.NewFromInt(grossMinor).Mul(pct).Div(hundred).Round(0).IntPart(), nil
}

func normalizeFeePercent(percent string) (string, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(percent))
	if err != nil {
		return "", fmt.Errorf("invalid service fee percent %q: %w", percent, err)
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return "", fmt.Errorf("service fee percent %s out of range", pct.String())
	}
	return pct.StringFixed(2), nil
}

func payoutReference(groupID string, cycle int32) string {
	return fmt.Sprintf("payout:%s:%d", groupID, cycle)
}

func serviceFeeReference(groupID string, cycle int32) string {
	return fmt.Sprintf("fee:%s:%d", groupID, cycle)
}
