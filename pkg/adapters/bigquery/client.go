// Package bigquery implements the analytical-warehouse source adapter on the
// Google BigQuery client. Query templates carry {{start}}, {{end}} and
// {{today}} placeholders which are substituted with ISO date strings before
// execution; the result must expose the configured value column as a scalar.
package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/timewindow"
)

const isoDate = "2006-01-02"

// Config contains BigQuery adapter configuration.
type Config struct {
	ProjectID       string `yaml:"project_id" env:"BIGQUERY_PROJECT_ID" default:""`
	CredentialsFile string `yaml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS" default:""`
}

// Client is the BigQuery source adapter.
type Client struct {
	config Config
	bq     *bq.Client
	policy adapters.CallPolicy
	now    func() time.Time
}

// New creates a BigQuery adapter. When the project is not configured the
// adapter is constructed anyway and reports Configured() == false so sync
// attempts fail with a configuration error instead of a nil dereference.
func New(ctx context.Context, config Config, policy adapters.CallPolicy) (*Client, error) {
	client := &Client{
		config: config,
		policy: policy,
		now:    time.Now,
	}
	if config.ProjectID == "" {
		return client, nil
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	bqClient, err := bq.NewClient(ctx, config.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	client.bq = bqClient
	return client, nil
}

// Provider returns the provider this adapter serves.
func (c *Client) Provider() adapters.Provider {
	return adapters.ProviderBigQuery
}

// Configured reports whether a project and client are present.
func (c *Client) Configured() bool {
	return c.config.ProjectID != "" && c.bq != nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

// FetchMetric substitutes the template placeholders, runs the query, and
// extracts the scalar value column from the first row.
func (c *Client) FetchMetric(ctx context.Context, config adapters.FetchConfig, timeRange *timewindow.Range) adapters.SyncResult {
	if !c.Configured() {
		return adapters.Failure("bigquery adapter is not configured: missing project id")
	}
	if config.Query == "" {
		return adapters.Failure("bigquery query template is empty")
	}
	if config.ValueColumn == "" {
		return adapters.Failure("bigquery query is missing a value column name")
	}

	query := RenderQuery(config.Query, timeRange, c.now())

	return c.policy.Do(ctx, func(ctx context.Context) adapters.SyncResult {
		return c.runQuery(ctx, query, config.ValueColumn)
	})
}

func (c *Client) runQuery(ctx context.Context, query, valueColumn string) adapters.SyncResult {
	q := c.bq.Query(query)
	it, err := q.Read(ctx)
	if err != nil {
		return adapters.Failure(fmt.Sprintf("bigquery query failed: %v", err))
	}

	var row map[string]bq.Value
	err = it.Next(&row)
	if err == iterator.Done {
		return adapters.Failure("bigquery query returned no rows")
	}
	if err != nil {
		return adapters.Failure(fmt.Sprintf("bigquery row read failed: %v", err))
	}

	raw, ok := row[valueColumn]
	if !ok {
		return adapters.Failure(fmt.Sprintf("bigquery result has no column %q", valueColumn))
	}
	value, err := toFloat(raw)
	if err != nil {
		return adapters.Failure(fmt.Sprintf("bigquery column %q: %v", valueColumn, err))
	}

	records := 1
	if total := it.TotalRows; total > 0 {
		records = int(total)
	}
	return adapters.SyncResult{Success: true, Value: value, RecordsProcessed: records}
}

// RenderQuery substitutes the {{start}}, {{end}} and {{today}} placeholders
// with ISO date strings. A nil time range leaves {{start}}/{{end}} bound to
// today, matching a point-in-time query.
func RenderQuery(template string, timeRange *timewindow.Range, now time.Time) string {
	today := now.Format(isoDate)
	start, end := today, today
	if timeRange != nil {
		start = timeRange.Start.Format(isoDate)
		end = timeRange.End.Format(isoDate)
	}

	query := strings.ReplaceAll(template, "{{start}}", start)
	query = strings.ReplaceAll(query, "{{end}}", end)
	query = strings.ReplaceAll(query, "{{today}}", today)
	return query
}

func toFloat(v bq.Value) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case int64:
		return float64(value), nil
	case nil:
		return 0, fmt.Errorf("value is NULL")
	default:
		return 0, fmt.Errorf("value has non-numeric type %T", v)
	}
}
