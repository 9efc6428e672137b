package warehouse

import (
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Numeric converts a decimal into the pgx NUMERIC representation.
func Numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// NullNumeric converts a nullable decimal; NULL stays NULL.
func NullNumeric(d decimal.NullDecimal) pgtype.Numeric {
	if !d.Valid {
		return pgtype.Numeric{}
	}
	return Numeric(d.Decimal)
}

// FloatNumeric rounds f to places and converts it.
func FloatNumeric(f float64, places int32) pgtype.Numeric {
	return Numeric(decimal.NewFromFloat(f).Round(places))
}

// Decimal converts a scanned NUMERIC back. NULL and NaN read as zero.
func Decimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// Float converts a scanned NUMERIC to float64.
func Float(n pgtype.Numeric) float64 {
	f, _ := Decimal(n).Float64()
	return f
}

// DateKey returns the YYYYMMDD key of t's calendar day.
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// ParseDateKey parses a YYYYMMDD string into midnight local time.
func ParseDateKey(s string) (time.Time, error) {
	return time.ParseInLocation("20060102", s, time.Local)
}

// DateOfKey is the inverse of DateKey.
func DateOfKey(key int) time.Time {
	t, _ := ParseDateKey(strconv.Itoa(key))
	return t
}
