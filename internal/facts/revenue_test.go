package facts

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRecognize_TableR(t *testing.T) {
	tests := []struct {
		name string
		a    Amounts
		want string
	}{
		{"cashier order value", Amounts{PayMode: PayCashier, OrderValue: d("25.50")}, "25.5"},
		{"cashier falls back to total", Amounts{PayMode: PayCashier, Total: d("18"), Cash: d("3")}, "18"},
		{"cashier sums tenders", Amounts{PayMode: PayCashier, Cash: d("5"), Vip: d("3"), VipGift: d("1"), Card: d("2"), CardGift: d("0.5")}, "11.5"},
		{"takeout prefers cash", Amounts{PayMode: "takeout-meituan", Cash: d("30"), OrderValue: d("45")}, "30"},
		{"takeout order value", Amounts{PayMode: "takeout-eleme", OrderValue: d("45"), Total: d("50")}, "45"},
		{"takeout total", Amounts{PayMode: PayTakeout, Total: d("50")}, "50"},
		{"group buy order value", Amounts{PayMode: "group-buy-douyin", OrderValue: d("19.9"), RollsRealIncome: d("15")}, "19.9"},
		{"group buy rolls income", Amounts{PayMode: "group-buy-dianping", RollsRealIncome: d("15"), Total: d("20")}, "15"},
		{"pinhaofan total", Amounts{PayMode: PayPinhaofan, Total: d("12")}, "12"},
		{"mini program order value only", Amounts{PayMode: PayMini, OrderValue: d("40"), Cash: d("99"), Total: d("99")}, "40"},
		{"gift is zero", Amounts{PayMode: PayGift, OrderValue: d("40"), Cash: d("40"), Total: d("40")}, "0"},
		{"unknown mode order value", Amounts{PayMode: "voucher", OrderValue: d("8"), Total: d("9")}, "8"},
		{"unknown mode total", Amounts{PayMode: "", Total: d("9")}, "9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recognize(tt.a)
			if !got.Equal(d(tt.want)) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRecognize_Refunds(t *testing.T) {
	// mini-program order of 40 with 10 refunded
	a := Amounts{PayMode: PayMini, OrderValue: d("40.00"), Refund: d("10.00")}
	if got := Recognize(a); !got.Equal(d("30")) {
		t.Errorf("Expected 30.00, got %s", got)
	}

	a = Amounts{PayMode: PayCashier, OrderValue: d("10"), Refund: d("15")}
	if got := Recognize(a); !got.IsZero() {
		t.Errorf("Expected refund clamp to 0, got %s", got)
	}
}

func TestInBand(t *testing.T) {
	tests := []struct {
		name string
		a    Amounts
		want bool
	}{
		{"order value in band", Amounts{OrderValue: d("25.50")}, true},
		{"order value at limit", Amounts{OrderValue: d("1000")}, true},
		{"order value too large", Amounts{OrderValue: d("5000")}, false},
		{"order value too large ignores cash", Amounts{OrderValue: d("5000"), Cash: d("10")}, false},
		{"cash fallback", Amounts{Cash: d("12")}, true},
		{"cash too large", Amounts{Cash: d("1000.01")}, false},
		{"nothing paid", Amounts{}, false},
		{"negative order value uses cash", Amounts{OrderValue: d("-1"), Cash: d("5")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InBand(tt.a); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNormalizePayMode(t *testing.T) {
	tests := map[string]string{
		"收银":              PayCashier,
		" 小程序 ":           PayMini,
		"赠送":              PayGift,
		"美团外卖":            "takeout-meituan",
		"饿了么外卖":           "takeout-eleme",
		"外卖":              PayTakeout,
		"抖音团购":            "group-buy-douyin",
		"大众点评团购":          "group-buy-dianping",
		"拼好饭":             PayPinhaofan,
		"Cashier":         PayCashier,
		"takeout-meituan": "takeout-meituan",
	}

	for in, want := range tests {
		if got := NormalizePayMode(in); got != want {
			t.Errorf("NormalizePayMode(%q): expected %q, got %q", in, want, got)
		}
	}
}
