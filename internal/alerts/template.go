package alerts

import (
	"strings"

	"github.com/shopspring/decimal"
)

// messageData carries the values substituted into a rule message.
type messageData struct {
	Field  string
	Date   string
	Value  decimal.Decimal
	Value2 decimal.NullDecimal
}

// Render substitutes {field}, {date}, {param}, {value}, {threshold} and, when
// the rule has a second condition with a resolved value, {param2},
// {value2} and {threshold2}.
func Render(rule Rule, d messageData) string {
	pairs := []string{
		"{field}", d.Field,
		"{date}", d.Date,
		"{param}", rule.Param,
		"{value}", d.Value.String(),
		"{threshold}", rule.Threshold.String(),
	}
	if rule.Param2 != "" && d.Value2.Valid {
		pairs = append(pairs,
			"{param2}", rule.Param2,
			"{value2}", d.Value2.Decimal.String(),
			"{threshold2}", rule.Threshold2.Decimal.String(),
		)
	}
	return strings.NewReplacer(pairs...).Replace(rule.Message)
}
