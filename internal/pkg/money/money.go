package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// 金額一律以 decimal 表示, 精度到小數點後兩位
const Scale int32 = 2

var hundred = decimal.NewFromInt(100)

func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Percent 計算 amount * pct / 100, 四捨五入到最小貨幣單位
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(pct).Div(hundred))
}

func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// FormatINR 以印度位數分組格式化金額, ex: 100000 -> "Rs 1,00,000"
func FormatINR(d decimal.Decimal) string {
	s := d.Abs().String()
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var grouped string
	if len(intPart) <= 3 {
		grouped = intPart
	} else {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		grouped = strings.Join(append(groups, tail), ",")
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	if hasFrac {
		return "Rs " + sign + grouped + "." + frac
	}
	return "Rs " + sign + grouped
}
