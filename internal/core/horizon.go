package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Horizon is a trailing window of most recent months.
type Horizon struct {
	Label  string `json:"label"`
	Months int    `json:"months"`
}

var Horizons = []Horizon{
	{Label: "3 Months", Months: 3},
	{Label: "6 Months", Months: 6},
	{Label: "1 Year", Months: 12},
	{Label: "3 Years", Months: 36},
	{Label: "5 Years", Months: 60},
	{Label: "10 Years", Months: 120},
}

// DefaultHorizon is one year.
var DefaultHorizon = Horizons[2]

// ParseHorizon accepts a label ("1 Year") or a month count ("12").
func ParseHorizon(s string) (Horizon, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultHorizon, nil
	}
	for _, h := range Horizons {
		if strings.EqualFold(h.Label, s) {
			return h, nil
		}
	}
	months, err := strconv.Atoi(s)
	if err != nil {
		return Horizon{}, fmt.Errorf("invalid horizon %q", s)
	}
	for _, h := range Horizons {
		if h.Months == months {
			return h, nil
		}
	}
	if months < 1 {
		return Horizon{}, fmt.Errorf("invalid horizon %d: must be at least one month", months)
	}
	return Horizon{Label: fmt.Sprintf("%d Months", months), Months: months}, nil
}
