package formula

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/logger"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/timewindow"
)

// ReferenceStore is the slice of persistence the evaluator needs to resolve
// formula references.
type ReferenceStore interface {
	LatestValue(ctx context.Context, metricID uuid.UUID, window *string) (*models.MetricValue, error)
	GetDataSource(ctx context.Context, id uuid.UUID) (*models.DataSource, error)
}

// Evaluator resolves the variable references of a calculated metric and
// evaluates its formula. Metric references read the latest stored value;
// data-source references fetch live through the registered adapters.
type Evaluator struct {
	store    ReferenceStore
	registry adapters.Registry
	logger   *logger.Logger
	now      func() time.Time
}

// NewEvaluator creates a formula evaluator.
func NewEvaluator(store ReferenceStore, registry adapters.Registry, log *logger.Logger) *Evaluator {
	return &Evaluator{
		store:    store,
		registry: registry,
		logger:   log,
		now:      time.Now,
	}
}

// CalculateMetricValue resolves every variable in the metric's formula and
// evaluates it. All references must resolve: a single unresolved variable
// aborts the whole evaluation with a failure naming that variable, so a
// calculated metric never records a value computed from partial inputs.
func (e *Evaluator) CalculateMetricValue(ctx context.Context, metric *models.Metric) adapters.SyncResult {
	text := Normalize(metric.Formula)
	if err := Validate(text); err != nil {
		return adapters.Failure(err.Error())
	}

	refs := make(map[string]models.FormulaReference, len(metric.FormulaReferences))
	for _, ref := range metric.FormulaReferences {
		variable := Normalize(ref.Variable)
		if _, dup := refs[variable]; dup {
			return adapters.Failure(fmt.Sprintf("formula variable %s has more than one reference", variable))
		}
		refs[variable] = ref
	}

	vars := make(map[string]float64)
	records := 0
	for _, variable := range Variables(text) {
		ref, ok := refs[variable]
		if !ok {
			return adapters.Failure(fmt.Sprintf("formula variable %s has no reference", variable))
		}
		value, recs, err := e.resolve(ctx, variable, ref)
		if err != nil {
			return adapters.Failure(err.Error())
		}
		vars[variable] = value
		records += recs
	}

	value, err := Evaluate(text, vars)
	if err != nil {
		return adapters.Failure(err.Error())
	}

	e.logger.WithFields(map[string]interface{}{
		"metric_id": metric.ID.String(),
		"value":     value,
	}).Debug("Evaluated calculated metric formula")

	return adapters.SyncResult{Success: true, Value: value, RecordsProcessed: records}
}

func (e *Evaluator) resolve(ctx context.Context, variable string, ref models.FormulaReference) (float64, int, error) {
	switch ref.Kind {
	case models.RefKindMetric:
		return e.resolveMetric(ctx, variable, ref)
	case models.RefKindDataSource:
		return e.resolveDataSource(ctx, variable, ref)
	default:
		return 0, 0, fmt.Errorf("variable %s has unknown reference kind %q", variable, ref.Kind)
	}
}

func (e *Evaluator) resolveMetric(ctx context.Context, variable string, ref models.FormulaReference) (float64, int, error) {
	var window *string
	if ref.TimeWindow != "" {
		w := ref.TimeWindow
		window = &w
	}
	value, err := e.store.LatestValue(ctx, ref.RefID, window)
	if err != nil {
		return 0, 0, fmt.Errorf("variable %s: failed to read metric %s: %v", variable, ref.RefID, err)
	}
	if value == nil {
		return 0, 0, fmt.Errorf("variable %s: metric %s has no recorded value", variable, ref.RefID)
	}
	return value.Value, 0, nil
}

func (e *Evaluator) resolveDataSource(ctx context.Context, variable string, ref models.FormulaReference) (float64, int, error) {
	ds, err := e.store.GetDataSource(ctx, ref.RefID)
	if err != nil {
		return 0, 0, fmt.Errorf("variable %s: failed to load data source %s: %v", variable, ref.RefID, err)
	}

	var timeRange *timewindow.Range
	if ref.TimeWindow != "" {
		r, err := timewindow.Compute(timewindow.Window(ref.TimeWindow), e.now())
		if err != nil {
			return 0, 0, fmt.Errorf("variable %s: %v", variable, err)
		}
		timeRange = &r
	}

	adapter := e.registry.For(adapters.Provider(ds.Provider))
	if adapter == nil {
		return 0, 0, fmt.Errorf("variable %s: no adapter registered for provider %q", variable, ds.Provider)
	}
	if !adapter.Configured() {
		return 0, 0, fmt.Errorf("variable %s: adapter for provider %q is not configured", variable, ds.Provider)
	}

	result := adapter.FetchMetric(ctx, adapters.ConfigFromDataSource(ds), timeRange)
	if !result.Success {
		return 0, 0, fmt.Errorf("variable %s: %s", variable, result.Error)
	}
	return result.Value, result.RecordsProcessed, nil
}
