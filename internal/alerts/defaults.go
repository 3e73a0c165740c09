package alerts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/i474232898/agromet-sync/internal/weather"
)

// RuleSeeder is the storage needed to install the default rule set.
type RuleSeeder interface {
	CountRules(ctx context.Context) (int64, error)
	CreateRules(ctx context.Context, rules []Rule) error
}

func single(name string, typ RuleType, sub int, param, op, threshold, msg string) Rule {
	return Rule{
		Name:      name,
		Type:      typ,
		SubType:   sub,
		Param:     param,
		Operator:  op,
		Threshold: decimal.RequireFromString(threshold),
		Message:   msg,
		Enabled:   true,
	}
}

// DefaultRules returns the agronomic starter rules bound to fieldID.
func DefaultRules(fieldID, userID int64) []Rule {
	disease := single("Disease risk", TypePrecipitation, SubDiseaseRisk, "humidity", ">=", "90",
		"Field [{field}] expects high humidity ({value}%) with a high chance of rain ({value2}) at {date}; disease risk is elevated, consider preventive treatment.")
	disease.Param2 = "pop"
	disease.Operator2 = ">="
	disease.Threshold2 = decimal.NewNullDecimal(decimal.RequireFromString("0.5"))

	rules := []Rule{
		single("High temperature", TypeTemperature, SubHighTemperature, "tempMax", ">=", "35",
			"Field [{field}] expects high temperature at {date}, with a maximum of {value}°C. Protect crops from heat stress."),
		single("Frost", TypeTemperature, SubLowTemperature, "tempMin", "<=", "0",
			"Field [{field}] expects frost at {date}, with a minimum of {value}°C. Prepare frost protection."),
		single("Low humidity", TypeHumidity, SubLowHumidity, "humidity", "<=", "30",
			"Field [{field}] expects low humidity at {date} ({value}%). Consider misting or irrigation."),
		single("High VPD", TypeHumidity, SubHighVPD, ParamVPD, ">=", "1.5",
			"Field [{field}] expects a high vapour pressure deficit at {date} (VPD={value}kPa). Increase irrigation frequency."),
		single("Precipitation probability", TypePrecipitation, SubPrecipitationProbability, "pop", ">=", "0.5",
			"Field [{field}] has a {value} probability of precipitation at {date}. Plan field work accordingly."),
		single("Heavy rain", TypePrecipitation, SubHeavyRain, "rain1h", ">=", "2",
			"Field [{field}] expects heavy rain at {date}, about {value}mm per hour. Watch for waterlogging."),
		disease,
		single("Strong wind", TypeWind, SubStrongWind, "windGust", ">=", "8",
			"Field [{field}] expects strong wind at {date}, with gusts up to {value}m/s. Secure structures and prevent lodging."),
		single("Low light", TypeLight, SubLowLight, "cloudsAll", ">=", "80",
			"Field [{field}] expects heavy cloud cover at {date} ({value}%). Greenhouse crops may need supplemental light."),
		single("Short daylight", TypeLight, SubShortDaylight, ParamDayLength, "<=", "12",
			"Field [{field}] has short daylight at {date} ({value} hours), which may affect photoperiod-sensitive crops."),
		single("Low pressure", TypePressure, SubPressureDrop, "pressure", "<=", "1005",
			"Field [{field}] expects low pressure at {date} ({value}hPa). Severe weather is possible."),
		single("Low visibility", TypePressure, SubLowVisibility, "visibility", "<=", "2000",
			"Field [{field}] expects low visibility at {date} ({value}m). Take care during field operations."),
	}
	for i := range rules {
		rules[i].FieldID = fieldID
		rules[i].UserID = userID
	}
	return rules
}

// SeedDefaults installs DefaultRules for the first field when no rule exists.
// It returns the number of rules created.
func SeedDefaults(ctx context.Context, store RuleSeeder, fields weather.FieldSource, log zerolog.Logger) (int, error) {
	n, err := store.CountRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("count rules: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	list, err := fields.Fields(ctx)
	if err != nil {
		return 0, fmt.Errorf("list fields: %w", err)
	}
	if len(list) == 0 {
		log.Warn().Msg("no fields found; default alert rules not created")
		return 0, nil
	}

	rules := DefaultRules(list[0].ID, 0)
	if err := store.CreateRules(ctx, rules); err != nil {
		return 0, fmt.Errorf("create default rules: %w", err)
	}
	log.Info().Int("rules", len(rules)).Str("field", list[0].Name).Msg("default alert rules created")
	return len(rules), nil
}
