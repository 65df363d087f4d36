// Package templates renders notification emails from liquid templates.
package templates

import (
	"fmt"
	"strings"

	"github.com/osteele/liquid"
	"github.com/shopspring/decimal"
)

// NewEngine returns a liquid engine with the filters notification templates use.
func NewEngine() *liquid.Engine {
	engine := liquid.NewEngine()

	// Amounts: {{ persona.totalDeuda | currency }}
	engine.RegisterFilter("currency", FormatCurrency)

	// Fallback text: {{ persona.direccion | or_default: "sin dirección" }}
	engine.RegisterFilter("or_default", func(value any, fallback string) any {
		if value == nil || fmt.Sprint(value) == "" {
			return fallback
		}
		return value
	})

	return engine
}

// FormatCurrency formats a number the way es-CR does: two decimals, comma
// as decimal mark and a non-breaking space between thousands (only from five
// integer digits up). Anything that is not a number renders as "N/A".
func FormatCurrency(value any) string {
	var d decimal.Decimal
	switch v := value.(type) {
	case float64:
		d = decimal.NewFromFloat(v)
	case float32:
		d = decimal.NewFromFloat32(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case int32:
		d = decimal.NewFromInt32(v)
	case decimal.Decimal:
		d = v
	default:
		return "N/A"
	}

	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	if len(intPart) >= 5 {
		var b strings.Builder
		for i, c := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				b.WriteString("\u00a0")
			}
			b.WriteRune(c)
		}
		intPart = b.String()
	}

	sign := ""
	if d.IsNegative() && fixed != "0.00" {
		sign = "-"
	}
	return sign + intPart + "," + frac
}
