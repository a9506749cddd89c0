package storage

import (
	"encoding/json"
	"time"
)

// Run statuses.
const (
	RunComplete = "complete"
	RunEmpty    = "empty"
	RunErrored  = "errored"
)

// RunRecord is one persisted analysis cycle. The headline metrics are kept
// as columns for querying and export; Stats carries the full record as JSON.
type RunRecord struct {
	ID               int64
	StartedAt        time.Time
	HouseConsumption *float64
	PVPower          *float64
	GridPower        *float64
	BatterySoc       *float64
	BatteryState     string
	DeviationCount   int
	ActionCount      int
	Stats            json.RawMessage
	Status           string
	Error            *string
	CreatedAt        time.Time
}

// ActionRecord captures a proposed action for review and auditing.
type ActionRecord struct {
	ID               string
	RunID            *int64
	Category         string
	Priority         string
	Title            string
	Description      string
	Reason           string
	LearningKey      string
	RequiresApproval bool
	Status           string
	CreatedAt        time.Time
}
