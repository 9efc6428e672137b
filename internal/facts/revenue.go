//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package facts

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hotdog2030/hotdog-etl/internal/source"
)

// Canonical pay modes.
const (
	PayCashier   = "cashier"
	PayMini      = "mini-program"
	PayGift      = "gift"
	PayTakeout   = "takeout"
	PayGroupBuy  = "group-buy"
	PayPinhaofan = "pinhaofan"
)

// bandLimit is the largest plausible single order.
var bandLimit = decimal.NewFromInt(1000)

var payModeAliases = map[string]string{
	"收银":    PayCashier,
	"收银机":   PayCashier,
	"小程序":   PayMini,
	"微信小程序": PayMini,
	"赠送":    PayGift,
	"赠品":    PayGift,
	"拼好饭":   PayPinhaofan,
}

var platformAliases = []struct{ zh, en string }{
	{"美团", "meituan"},
	{"饿了么", "eleme"},
	{"抖音", "douyin"},
	{"大众点评", "dianping"},
	{"点评", "dianping"},
}

// NormalizePayMode maps a source pay mode onto its canonical spelling.
// Chinese channel names become cashier, mini-program, gift,
// takeout-<platform>, group-buy-<platform> or pinhaofan; anything else is
// lower-cased and passed through.
func NormalizePayMode(raw string) string {
	m := strings.TrimSpace(raw)
	if canon, ok := payModeAliases[m]; ok {
		return canon
	}
	for _, kind := range []struct{ zh, prefix string }{{"外卖", PayTakeout}, {"团购", PayGroupBuy}} {
		if !strings.Contains(m, kind.zh) {
			continue
		}
		rest := strings.TrimSpace(strings.ReplaceAll(m, kind.zh, ""))
		for _, p := range platformAliases {
			if strings.Contains(rest, p.zh) {
				return kind.prefix + "-" + p.en
			}
		}
		return kind.prefix
	}
	return strings.ToLower(m)
}

// Amounts are the payment columns of one order, NULL read as zero.
type Amounts struct {
	PayMode         string
	Cash            decimal.Decimal
	Vip             decimal.Decimal
	VipGift         decimal.Decimal
	Card            decimal.Decimal
	CardGift        decimal.Decimal
	Coupon          decimal.Decimal
	Discount        decimal.Decimal
	RollsRealIncome decimal.Decimal
	Refund          decimal.Decimal
	OrderValue      decimal.Decimal
	Total           decimal.Decimal
}

// AmountsOf extracts the payment columns of a source order.
func AmountsOf(o *source.Order) Amounts {
	return Amounts{
		PayMode:         NormalizePayMode(source.Str(o.PayMode)),
		Cash:            source.Dec(o.Cash),
		Vip:             source.Dec(o.VipAmount),
		VipGift:         source.Dec(o.VipAmountZengSong),
		Card:            source.Dec(o.CardAmount),
		CardGift:        source.Dec(o.CardZengSong),
		Coupon:          source.Dec(o.CouponAmount),
		Discount:        source.Dec(o.DiscountAmount),
		RollsRealIncome: source.Dec(o.RollsRealIncome),
		Refund:          source.Dec(o.RefundMoney),
		OrderValue:      source.Dec(o.OrderValue),
		Total:           source.Dec(o.Total),
	}
}

func firstPositive(vals ...decimal.Decimal) decimal.Decimal {
	for _, v := range vals[:len(vals)-1] {
		if v.IsPositive() {
			return v
		}
	}
	return vals[len(vals)-1]
}

// GrossRevenue applies the per-channel rule before refunds.
func GrossRevenue(a Amounts) decimal.Decimal {
	m := a.PayMode
	switch {
	case m == PayCashier:
		if a.OrderValue.IsPositive() {
			return a.OrderValue
		}
		if a.Total.IsPositive() {
			return a.Total
		}
		return a.Cash.Add(a.Vip).Add(a.VipGift).Add(a.Card).Add(a.CardGift)
	case strings.Contains(m, PayTakeout):
		return firstPositive(a.Cash, a.OrderValue, a.Total)
	case strings.Contains(m, PayGroupBuy), strings.Contains(m, PayPinhaofan):
		return firstPositive(a.OrderValue, a.RollsRealIncome, a.Total)
	case m == PayMini:
		return a.OrderValue
	case m == PayGift:
		return decimal.Zero
	default:
		return firstPositive(a.OrderValue, a.Total)
	}
}

// Recognize returns the recognized revenue of an order: the channel rule
// minus refunds, never below zero.
func Recognize(a Amounts) decimal.Decimal {
	r := GrossRevenue(a).Sub(a.Refund)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// InBand reports whether an order passes the plausibility band: a
// positive order value of at most 1000, or failing that a positive cash
// amount of at most 1000.
func InBand(a Amounts) bool {
	if a.OrderValue.IsPositive() {
		return a.OrderValue.LessThanOrEqual(bandLimit)
	}
	return a.Cash.IsPositive() && a.Cash.LessThanOrEqual(bandLimit)
}
