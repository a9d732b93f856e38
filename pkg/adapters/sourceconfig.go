package adapters

import (
	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
)

// ConfigFromDataSource flattens a stored data source definition into the
// provider-agnostic fetch configuration adapters consume.
func ConfigFromDataSource(ds *models.DataSource) FetchConfig {
	config := FetchConfig{
		ObjectType:   ds.HubSpot.ObjectType,
		Property:     ds.HubSpot.Property,
		Aggregation:  Aggregation(ds.HubSpot.Aggregation),
		DateProperty: ds.HubSpot.DateProperty,
		Query:        ds.BigQuery.Query,
		ValueColumn:  ds.BigQuery.ValueColumn,
	}
	for _, f := range ds.HubSpot.Filters {
		config.Filters = append(config.Filters, Filter{
			Property: f.Property,
			Operator: f.Operator,
			Value:    f.Value,
		})
	}
	return config
}
