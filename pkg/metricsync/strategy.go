// Package metricsync implements the metric synchronization engine: strategy
// resolution, per-metric sync with audit logging, batch orchestration and
// rollup recomputation.
package metricsync

import (
	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
)

// Strategy is the resolved sync behavior of a metric. It is derived once per
// sync from the metric's configuration; handlers never re-inspect the raw
// metric_type/source_type fields.
type Strategy int

const (
	// StrategyManual metrics are fed by user entry only and cannot be synced.
	StrategyManual Strategy = iota
	// StrategyLegacyExternal metrics predate the windowed model and sync a
	// single untagged series through their source_type provider.
	StrategyLegacyExternal
	// StrategySingleWindow metrics query a data source over one time window.
	StrategySingleWindow
	// StrategyMultiWindow metrics query a data source once per configured
	// time window, maintaining one tagged series per window.
	StrategyMultiWindow
	// StrategyCalculated metrics evaluate a formula over other metrics and
	// data sources.
	StrategyCalculated
	// StrategyRollup metrics aggregate the latest values of their children.
	StrategyRollup
)

func (s Strategy) String() string {
	switch s {
	case StrategyLegacyExternal:
		return "legacy_external"
	case StrategySingleWindow:
		return "single_window"
	case StrategyMultiWindow:
		return "multi_window"
	case StrategyCalculated:
		return "calculated"
	case StrategyRollup:
		return "rollup"
	default:
		return "manual"
	}
}

// ResolveStrategy derives the sync strategy from a metric's configuration.
// Rollup takes precedence over everything else; a rollup metric is never
// synced from an external source even if it carries legacy source fields.
func ResolveStrategy(m *models.Metric) Strategy {
	if m.IsRollup {
		return StrategyRollup
	}
	switch m.MetricType {
	case models.MetricTypeSingleWindow:
		return StrategySingleWindow
	case models.MetricTypeMultiWindow:
		return StrategyMultiWindow
	case models.MetricTypeCalculated:
		return StrategyCalculated
	}
	if m.IsLegacyExternal() {
		return StrategyLegacyExternal
	}
	return StrategyManual
}
