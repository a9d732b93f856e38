// Package hubspot implements the CRM source adapter against the HubSpot
// CRM v3 search API. The adapter translates a metric's time range into
// provider-native date filters, aggregates matched records, and captures
// every provider failure as a SyncResult error.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jay-chalkstep/cadaince-sub001/pkg/adapters"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/timewindow"
)

const (
	defaultBaseURL      = "https://api.hubapi.com"
	defaultDateProperty = "createdate"
	pageLimit           = 100

	// maxPages caps pagination for sum/avg/min/max aggregations so a
	// misconfigured query cannot walk an entire portal.
	maxPages = 20
)

// Config contains HubSpot adapter configuration.
type Config struct {
	AccessToken string `yaml:"access_token" env:"HUBSPOT_ACCESS_TOKEN" default:""`
	BaseURL     string `yaml:"base_url" env:"HUBSPOT_BASE_URL" default:"https://api.hubapi.com"`
}

// Client is the HubSpot source adapter.
type Client struct {
	config     Config
	httpClient *http.Client
	policy     adapters.CallPolicy
}

// New creates a HubSpot adapter. The client is explicitly constructed and
// injected into the sync processor; Configured reports whether a token is
// present.
func New(config Config, policy adapters.CallPolicy) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: policy.Timeout},
		policy:     policy,
	}
}

// Provider returns the provider this adapter serves.
func (c *Client) Provider() adapters.Provider {
	return adapters.ProviderHubSpot
}

// Configured reports whether an access token is present.
func (c *Client) Configured() bool {
	return c.config.AccessToken != ""
}

// FetchMetric executes the CRM object search and aggregates the result.
func (c *Client) FetchMetric(ctx context.Context, config adapters.FetchConfig, timeRange *timewindow.Range) adapters.SyncResult {
	if !c.Configured() {
		return adapters.Failure("hubspot adapter is not configured: missing access token")
	}
	if config.ObjectType == "" {
		return adapters.Failure("hubspot query is missing an object type")
	}
	if config.Aggregation != adapters.AggregationCount && config.Property == "" {
		return adapters.Failure(fmt.Sprintf("hubspot %s aggregation requires a property", config.Aggregation))
	}

	return c.policy.Do(ctx, func(ctx context.Context) adapters.SyncResult {
		return c.fetchOnce(ctx, config, timeRange)
	})
}

func (c *Client) fetchOnce(ctx context.Context, config adapters.FetchConfig, timeRange *timewindow.Range) adapters.SyncResult {
	var (
		values []float64
		after  string
	)

	for page := 0; page < maxPages; page++ {
		req := BuildSearchRequest(config, timeRange, after)
		resp, err := c.search(ctx, config.ObjectType, req)
		if err != nil {
			return adapters.Failure(fmt.Sprintf("hubspot search failed: %v", err))
		}

		if config.Aggregation == adapters.AggregationCount || config.Aggregation == "" {
			// Count aggregations only need the total from the first page.
			return adapters.SyncResult{Success: true, Value: float64(resp.Total), RecordsProcessed: resp.Total}
		}

		for _, record := range resp.Results {
			raw, ok := record.Properties[config.Property]
			if !ok || raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			values = append(values, v)
		}

		if resp.Paging == nil || resp.Paging.Next == nil || resp.Paging.Next.After == "" {
			break
		}
		after = resp.Paging.Next.After
	}

	value, err := aggregate(config.Aggregation, values)
	if err != nil {
		return adapters.Failure(err.Error())
	}
	return adapters.SyncResult{Success: true, Value: value, RecordsProcessed: len(values)}
}

func (c *Client) search(ctx context.Context, objectType string, searchReq *SearchRequest) (*SearchResponse, error) {
	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	url := fmt.Sprintf("%s/crm/v3/objects/%s/search", c.config.BaseURL, objectType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(data, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &searchResp, nil
}

// SearchRequest is the HubSpot CRM v3 search payload.
type SearchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups,omitempty"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit"`
	After        string        `json:"after,omitempty"`
}

// FilterGroup is an AND-combined set of property filters.
type FilterGroup struct {
	Filters []PropertyFilter `json:"filters"`
}

// PropertyFilter is one provider-native property condition.
type PropertyFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value,omitempty"`
}

// SearchResponse is the HubSpot CRM v3 search response.
type SearchResponse struct {
	Total   int            `json:"total"`
	Results []SearchRecord `json:"results"`
	Paging  *Paging        `json:"paging,omitempty"`
}

// SearchRecord is one matched CRM object.
type SearchRecord struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// Paging carries the cursor for the next result page.
type Paging struct {
	Next *PagingNext `json:"next,omitempty"`
}

type PagingNext struct {
	After string `json:"after"`
}

// BuildSearchRequest translates the fetch config and time range into a
// provider-native search payload. Date constraints become GTE/LT filters on
// the configured date property (createdate by default), expressed as epoch
// milliseconds the way the search API expects.
func BuildSearchRequest(config adapters.FetchConfig, timeRange *timewindow.Range, after string) *SearchRequest {
	var filters []PropertyFilter
	for _, f := range config.Filters {
		filters = append(filters, PropertyFilter{
			PropertyName: f.Property,
			Operator:     f.Operator,
			Value:        f.Value,
		})
	}

	if timeRange != nil {
		dateProperty := config.DateProperty
		if dateProperty == "" {
			dateProperty = defaultDateProperty
		}
		filters = append(filters,
			PropertyFilter{
				PropertyName: dateProperty,
				Operator:     "GTE",
				Value:        epochMillis(timeRange.Start),
			},
			PropertyFilter{
				PropertyName: dateProperty,
				Operator:     "LT",
				Value:        epochMillis(timeRange.End),
			},
		)
	}

	req := &SearchRequest{
		Limit: pageLimit,
		After: after,
	}
	if len(filters) > 0 {
		req.FilterGroups = []FilterGroup{{Filters: filters}}
	}
	if config.Property != "" {
		req.Properties = []string{config.Property}
	}
	return req
}

func aggregate(kind adapters.Aggregation, values []float64) (float64, error) {
	if len(values) == 0 {
		// No matched records with a parseable property value. Sum of an
		// empty set is zero; min/max/avg have no defined value.
		switch kind {
		case adapters.AggregationSum:
			return 0, nil
		default:
			return 0, fmt.Errorf("hubspot %s aggregation matched no records with a numeric property", kind)
		}
	}

	switch kind {
	case adapters.AggregationSum:
		return sum(values), nil
	case adapters.AggregationAvg:
		return sum(values) / float64(len(values)), nil
	case adapters.AggregationMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case adapters.AggregationMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	default:
		return 0, fmt.Errorf("unknown hubspot aggregation %q", kind)
	}
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func epochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
