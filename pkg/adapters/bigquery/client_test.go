package bigquery

import (
	"context"
	"testing"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/timewindow"
)

func TestNewWithoutProjectIsUnconfigured(t *testing.T) {
	client, err := New(context.Background(), Config{}, adapters.DefaultCallPolicy())
	require.NoError(t, err)
	assert.False(t, client.Configured())

	result := client.FetchMetric(context.Background(), adapters.FetchConfig{
		Query:       "SELECT 1 AS v",
		ValueColumn: "v",
	}, nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "project id")
}

func TestRenderQuery(t *testing.T) {
	now := time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)
	timeRange := &timewindow.Range{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}

	query := RenderQuery(
		"SELECT SUM(v) FROM t WHERE d >= '{{start}}' AND d < '{{end}}' AND snapshot = '{{today}}'",
		timeRange, now,
	)
	assert.Equal(t,
		"SELECT SUM(v) FROM t WHERE d >= '2026-08-01' AND d < '2026-09-01' AND snapshot = '2026-09-01'",
		query,
	)
}

func TestRenderQueryNilRangeUsesToday(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	query := RenderQuery("SELECT v FROM t WHERE d BETWEEN '{{start}}' AND '{{end}}'", nil, now)
	assert.Equal(t, "SELECT v FROM t WHERE d BETWEEN '2026-09-01' AND '2026-09-01'", query)
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		name    string
		value   bq.Value
		want    float64
		wantErr bool
	}{
		{name: "float", value: float64(12.5), want: 12.5},
		{name: "int", value: int64(7), want: 7},
		{name: "null", value: nil, wantErr: true},
		{name: "string", value: "12.5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toFloat(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
