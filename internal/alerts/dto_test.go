package alerts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/agromet-sync/internal/weather"
)

func TestToAlertDTO(t *testing.T) {
	v := AlertView{
		Alert: Alert{
			ID:           4,
			RuleID:       2,
			ForecastDt:   1749708000,
			ParamValue:   decimal.RequireFromString("36.5"),
			Message:      "hot",
			ForecastDate: "2025-06-12 14:00:00",
			Coord:        weather.NewCoordinate(32.26, 110.09),
			CreatedAt:    time.Date(2025, 6, 10, 2, 30, 0, 0, time.UTC),
		},
		RuleName:    "High temperature",
		RuleType:    TypeTemperature,
		RuleSubType: SubHighTemperature,
	}

	raw, err := json.Marshal(ToAlertDTO(v))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 4, "ruleId": 2, "ruleName": "High temperature", "ruleType": 1, "ruleSubType": 1,
		"forecastDt": 1749708000, "paramValue": 36.5, "paramValue2": null, "message": "hot",
		"forecastDate": "2025-06-12 14:00:00", "latitude": 32.260000, "longitude": 110.090000,
		"createdAt": "2025-06-10T02:30:00Z"
	}`, string(raw))
}

func TestRuleDTO_Rule(t *testing.T) {
	var d RuleDTO
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "Disease risk", "type": 3, "subType": 3,
		"param": "humidity", "operator": ">=", "threshold": 90,
		"param2": "pop", "operator2": ">=", "threshold2": 0.5,
		"message": "{field} at risk", "fieldId": 1
	}`), &d))

	r, err := d.Rule()
	require.NoError(t, err)
	assert.True(t, r.Enabled)
	assert.Equal(t, "90", r.Threshold.String())
	second, ok, err := r.Second()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0.5", second.Threshold.String())

	d.Threshold2 = nil
	_, err = d.Rule()
	assert.ErrorIs(t, err, ErrRuleConfig)
}
