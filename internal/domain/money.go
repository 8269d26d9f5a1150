package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Money is an amount in minor units (cents). Prices compare exactly.
type Money int64

// MoneyFromMajor converts a dollar amount, rounding to the nearest cent
func MoneyFromMajor(major float64) Money {
	return Money(math.Round(major * 100))
}

// Major returns the amount in major units, the way it is persisted
func (m Money) Major() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// ParseMoney reads a stored price. Numbers are major units; Decimal128 and
// {$numberDecimal: "..."} are accepted. NaN, infinities and non-numeric
// values return false.
func ParseMoney(v interface{}) (Money, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case primitive.Decimal128:
		return parseMoneyString(val.String())
	case string:
		return parseMoneyString(val)
	case primitive.M:
		return parseDecimalObject(val)
	case map[string]interface{}:
		return parseDecimalObject(val)
	}

	f, ok := NumberValue(v)
	if !ok {
		return 0, false
	}
	return MoneyFromMajor(f), true
}

func parseDecimalObject(m map[string]interface{}) (Money, bool) {
	raw, ok := m["$numberDecimal"]
	if !ok {
		return 0, false
	}
	return ParseMoney(raw)
}

func parseMoneyString(s string) (Money, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return MoneyFromMajor(f), true
}
