//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Segment labels of customer_segments.
const (
	LabelVIP       = "VIP"
	LabelHighValue = "high_value"
	LabelActive    = "active"
	LabelRegular   = "regular"
	LabelAtRisk    = "at_risk"
	LabelLost      = "lost"
)

// Segment labels of customer_profiles.customer_segment.
const (
	ProfileNew    = "new"
	ProfileVIP    = "VIP"
	ProfileLoyal  = "loyal"
	ProfileActive = "active"
	ProfileAtRisk = "at_risk"
	ProfileLost   = "lost"
)

// RFM is one customer's recency, frequency and monetary value with their
// 1-5 scores.
type RFM struct {
	CustomerID  string
	RecencyDays int
	Frequency   int
	Monetary    decimal.Decimal
	R, F, M     int
}

// Code is the three-digit segment code r·100 + f·10 + m.
func (s RFM) Code() int {
	return s.R*100 + s.F*10 + s.M
}

// Label is the customer_segments label of the scores.
func (s RFM) Label() string {
	switch {
	case s.Code() == 555:
		return LabelVIP
	case s.R == 5 && s.F+s.M >= 8:
		return LabelHighValue
	case s.R >= 4:
		return LabelActive
	case s.R == 3:
		return LabelRegular
	case s.R == 2:
		return LabelAtRisk
	default:
		return LabelLost
	}
}

// ProfileLabel is the coarser label kept on the customer profile.
func (s RFM) ProfileLabel() string {
	switch {
	case s.F == 1 && s.R >= 4:
		return ProfileNew
	case s.Code() == 555:
		return ProfileVIP
	case s.F >= 4 && s.R >= 3:
		return ProfileLoyal
	case s.R >= 4:
		return ProfileActive
	case s.R == 2 || s.R == 3:
		return ProfileAtRisk
	default:
		return ProfileLost
	}
}

// RecencyScore scores days since the last order.
func RecencyScore(days int) int {
	switch {
	case days <= 30:
		return 5
	case days <= 60:
		return 4
	case days <= 90:
		return 3
	case days <= 180:
		return 2
	default:
		return 1
	}
}

// FrequencyScore scores the number of paid orders.
func FrequencyScore(n int) int {
	switch {
	case n >= 20:
		return 5
	case n >= 10:
		return 4
	case n >= 5:
		return 3
	case n >= 2:
		return 2
	default:
		return 1
	}
}

var (
	monetary1000 = decimal.NewFromInt(1000)
	monetary500  = decimal.NewFromInt(500)
	monetary200  = decimal.NewFromInt(200)
	monetary100  = decimal.NewFromInt(100)
)

// MonetaryScore scores the recognized revenue of a customer.
func MonetaryScore(m decimal.Decimal) int {
	switch {
	case m.GreaterThanOrEqual(monetary1000):
		return 5
	case m.GreaterThanOrEqual(monetary500):
		return 4
	case m.GreaterThanOrEqual(monetary200):
		return 3
	case m.GreaterThanOrEqual(monetary100):
		return 2
	default:
		return 1
	}
}

// WallClock returns t's local wall-clock reading tagged as UTC, the form
// in which TIMESTAMP columns come back from the warehouse.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// RecencyDays counts whole days between the last order and now. A last
// order in the future counts as today.
func RecencyDays(last, now time.Time) int {
	d := int(now.Sub(last) / (24 * time.Hour))
	if d < 0 {
		return 0
	}
	return d
}

// Score fills the scores of a customer's raw values.
func Score(customerID string, recencyDays, frequency int, monetary decimal.Decimal) RFM {
	return RFM{
		CustomerID:  customerID,
		RecencyDays: recencyDays,
		Frequency:   frequency,
		Monetary:    monetary,
		R:           RecencyScore(recencyDays),
		F:           FrequencyScore(frequency),
		M:           MonetaryScore(monetary),
	}
}
