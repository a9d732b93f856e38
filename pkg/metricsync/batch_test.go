package metricsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
	"github.com/jay-chalkstep/cadaince-sub001/internal/store"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/timewindow"
)

func TestSyncAllOrdersCalculatedAfterSources(t *testing.T) {
	mem := store.NewMemory()
	ds := hubspotSource(mem)
	window := string(timewindow.WindowMTD)

	// The calculated metric is created first so listing order alone would
	// sync it before its input; strategy ordering must override that.
	source := &models.Metric{
		Name:         "Deals Created",
		MetricType:   models.MetricTypeSingleWindow,
		DataSourceID: &ds.ID,
		TimeWindow:   &window,
		SyncEnabled:  true,
		Status:       models.StatusActive,
	}
	derived := mem.AddMetric(&models.Metric{
		Name:        "Deals Created x2",
		MetricType:  models.MetricTypeCalculated,
		Formula:     "A * 2",
		SyncEnabled: true,
		Status:      models.StatusActive,
	})
	mem.AddMetric(source)
	derived.FormulaReferences = models.FormulaReferences{
		{Variable: "A", Kind: models.RefKindMetric, RefID: source.ID, TimeWindow: window},
	}

	registry := adapters.Registry{adapters.ProviderHubSpot: &stubAdapter{
		provider: adapters.ProviderHubSpot,
		fetch:    fixedResult(10, 10),
	}}

	batch, err := newTestProcessor(mem, registry).SyncAll(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, 0, batch.Failed)

	latest, err := mem.LatestValue(context.Background(), derived.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, latest, "calculated metric must sync after its source")
	assert.Equal(t, 20.0, latest.Value)
}

func TestSyncAllSkipsManualAndRollup(t *testing.T) {
	mem := store.NewMemory()
	mem.AddMetric(&models.Metric{
		Name:        "Manual",
		MetricType:  models.MetricTypeManual,
		SourceType:  models.SourceTypeManual,
		SyncEnabled: true,
		Status:      models.StatusActive,
	})
	mem.AddMetric(&models.Metric{
		Name:        "Rollup",
		IsRollup:    true,
		SyncEnabled: true,
		Status:      models.StatusActive,
	})

	batch, err := newTestProcessor(mem, nil).SyncAll(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Total)
	assert.Empty(t, batch.Results)
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	mem := store.NewMemory()
	ds := hubspotSource(mem)
	window := string(timewindow.WindowDay)

	broken := mem.AddMetric(&models.Metric{
		Name:         "Broken",
		MetricType:   models.MetricTypeSingleWindow,
		DataSourceID: &ds.ID,
		TimeWindow:   &window,
		SyncEnabled:  true,
		Status:       models.StatusActive,
	})
	healthy := mem.AddMetric(&models.Metric{
		Name:         "Healthy",
		MetricType:   models.MetricTypeSingleWindow,
		DataSourceID: &ds.ID,
		TimeWindow:   &window,
		SyncEnabled:  true,
		Status:       models.StatusActive,
	})

	registry := adapters.Registry{adapters.ProviderHubSpot: &stubAdapter{
		provider: adapters.ProviderHubSpot,
		fetch: func(config adapters.FetchConfig, timeRange *timewindow.Range) adapters.SyncResult {
			return adapters.SyncResult{Success: true, Value: 7, RecordsProcessed: 7}
		},
	}}
	// Break only the first metric by removing its data source reference.
	broken.DataSourceID = nil

	batch, err := newTestProcessor(mem, registry).SyncAll(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)

	latest, err := mem.LatestValue(context.Background(), healthy.ID, &window)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 7.0, latest.Value)

	var brokenResult *Result
	for _, r := range batch.Results {
		if r.MetricID == broken.ID {
			brokenResult = r
		}
	}
	require.NotNil(t, brokenResult)
	assert.Contains(t, brokenResult.Error, "no data source")
}
