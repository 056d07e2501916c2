package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"number", `120`, 120},
		{"float", `3.5`, 3.5},
		{"numeric string", `"42"`, 42},
		{"empty string", `""`, 0},
		{"null", `null`, 0},
		{"garbage string", `"N/A"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Number
			require.NoError(t, json.Unmarshal([]byte(tt.in), &n))
			assert.Equal(t, tt.want, float64(n))
		})
	}
}

func TestTextUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"string", `"hello"`, "hello"},
		{"number", `12.5`, "12.5"},
		{"bool", `true`, "true"},
		{"null", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Text
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.Equal(t, tt.want, string(v))
		})
	}
}

func TestTextFloat(t *testing.T) {
	assert.Equal(t, 9.99, Text("9.99").Float())
	assert.Equal(t, 0.0, Text("N/A").Float())
	assert.Equal(t, 0.0, Text("").Float())
	assert.Equal(t, 5.0, Text(" 5 ").Float())
}

func TestReportDataDecodeMessyPayload(t *testing.T) {
	payload := `{
		"exposures": "250",
		"conversions": 10,
		"totals": {"exposures": 250, "conversions": 10, "totalsBySource": {"web": 7}},
		"totalsByPeriods": {"days": [{"date": "2026-08-01", "exposures": "50", "conversions": 2, "conversionRate": "4.000%"}]},
		"rows": [
			{"exposures": 50, "conversions": "2", "value": "N/A",
			 "conversionSetMetadata": {"actionCard": {"id": "AC1", "name": "Card"}}},
			{"exposures": null, "conversions": null}
		]
	}`

	var data ReportData
	require.NoError(t, json.Unmarshal([]byte(payload), &data))

	assert.Equal(t, 250.0, float64(data.Exposures))
	assert.Equal(t, 10.0, float64(data.Conversions))
	require.NotNil(t, data.Totals)
	assert.Equal(t, 7.0, float64(data.Totals.TotalsBySource["web"]))

	days := data.TotalsByPeriods.ByCadence("days")
	require.Len(t, days, 1)
	assert.Equal(t, "2026-08-01", days[0].Date)
	assert.Equal(t, 50.0, float64(days[0].Exposures))

	require.Len(t, data.Rows, 2)
	assert.Equal(t, "AC1", data.Rows[0].ActionCardID())
	assert.Equal(t, 0.0, data.Rows[0].Value.Float())
	assert.Equal(t, 0.0, float64(data.Rows[1].Exposures))
	assert.Equal(t, "", data.Rows[1].ActionCardID())
}

func TestPeriodTotalsByCadence(t *testing.T) {
	p := &PeriodTotals{Weeks: []PeriodRow{{Date: "2026-08-03"}}}
	assert.Len(t, p.ByCadence("weeks"), 1)
	assert.Nil(t, p.ByCadence("days"))
	assert.Nil(t, p.ByCadence("bogus"))

	var nilTotals *PeriodTotals
	assert.Nil(t, nilTotals.ByCadence("days"))
}
