// Package core provides meso amount parsing and formatting.
//
// Amounts are whole mesos stored as int64. Display uses the Korean
// 억 (10^8) and 만 (10^4) grouping.
package core

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

const (
	eok = 100_000_000
	man = 10_000
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParsePrice converts a user supplied amount to mesos.
//
// Digits may be grouped with commas, underscores or spaces. Signs and
// decimals are rejected.
//
// Examples:
//
//	ParsePrice("1,500,000") -> 1500000, nil
//	ParsePrice("3_000_000") -> 3000000, nil
//	ParsePrice("-5")        -> 0, ErrInvalidAmount
func ParsePrice(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ',' || r == '_' || r == ' ':
			continue
		case unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			return 0, ErrInvalidAmount
		}
	}
	if b.Len() == 0 {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatMeso renders an amount as "1억 2345만 6789메소".
// Zero renders as "0 메소"; a zero remainder leaves a bare "메소" suffix.
func FormatMeso(amount int64) string {
	if amount == 0 {
		return "0 메소"
	}
	neg := amount < 0
	if neg {
		amount = -amount
	}
	var parts []string
	if amount >= eok {
		parts = append(parts, strconv.FormatInt(amount/eok, 10)+"억")
		amount %= eok
	}
	if amount >= man {
		parts = append(parts, strconv.FormatInt(amount/man, 10)+"만")
		amount %= man
	}
	if amount > 0 {
		parts = append(parts, strconv.FormatInt(amount, 10)+"메소")
	} else {
		parts = append(parts, "메소")
	}
	out := strings.Join(parts, " ")
	if neg {
		out = "-" + out
	}
	return out
}

// FormatPower renders a combat power value compactly: 1234567890 is
// "12억3456만7890". Nil or negative values render as "0".
func FormatPower(v *int64) string {
	if v == nil || *v <= 0 {
		return "0"
	}
	value := *v
	var b strings.Builder
	if value >= eok {
		b.WriteString(strconv.FormatInt(value/eok, 10) + "억")
		value %= eok
		if m := value / man; m > 0 {
			b.WriteString(strconv.FormatInt(m, 10) + "만")
		}
		if rest := value % man; rest > 0 {
			b.WriteString(strconv.FormatInt(rest, 10))
		}
		return b.String()
	}
	if value >= man {
		b.WriteString(strconv.FormatInt(value/man, 10) + "만")
		if rest := value % man; rest > 0 {
			b.WriteString(strconv.FormatInt(rest, 10))
		}
		return b.String()
	}
	return strconv.FormatInt(value, 10)
}
