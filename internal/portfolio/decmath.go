package portfolio

import (
	"math"

	"github.com/shopspring/decimal"
)

// 资金计算统一走 decimal，避免长链浮点误差影响判等。

func dec(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func toFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func mul(a, b float64) float64 {
	return toFloat(dec(a).Mul(dec(b)))
}

// gte 判断 a >= b（decimal 精度）。
func gte(a, b float64) bool {
	return dec(a).Cmp(dec(b)) >= 0
}

// gt 判断 a > b（decimal 精度）。
func gt(a, b float64) bool {
	return dec(a).Cmp(dec(b)) > 0
}
