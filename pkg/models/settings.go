package models

import "time"

// ProviderSettings is the operator-editable configuration for one provider,
// read from the store (and cached) so selector overrides and price changes
// take effect without a deploy.
type ProviderSettings struct {
	Key       string              `db:"key"        json:"key"`
	PortalURL string              `db:"portal_url" json:"portal_url"`
	Price     int64               `db:"price"      json:"price"` // minor currency units
	Selectors map[string][]string `db:"selectors"  json:"selectors,omitempty"`
	UpdatedAt time.Time           `db:"updated_at" json:"updated_at"`
}

// PoolStats is a point-in-time snapshot of the browser pool.
type PoolStats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	InUse     int `json:"in_use"`
	Max       int `json:"max"`
}

// EngineStatus is what the ops surface reports for the dispatch engine.
type EngineStatus struct {
	Running       bool      `json:"running"`
	QueueDepth    int       `json:"queue_depth"`
	ActiveJobs    int       `json:"active_jobs"`
	MaxConcurrent int       `json:"max_concurrent"`
	Pool          PoolStats `json:"pool"`
}
