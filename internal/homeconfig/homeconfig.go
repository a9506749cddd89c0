package homeconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// DataPoint describes one monitored value and how it feeds the pipeline.
type DataPoint struct {
	ObjectID    string `json:"objectId"`
	Role        string `json:"role"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	Enabled     bool   `json:"enabled"`
}

// PVSource is a photovoltaic feed with a compass orientation.
type PVSource struct {
	Name        string `json:"name"`
	Orientation string `json:"orientation"`
	ObjectID    string `json:"objectId"`
	Unit        string `json:"unit"`
}

// HistoryPoint names one series a history adapter should load.
type HistoryPoint struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// HistoryAdapter is one configured time-series backend.
type HistoryAdapter struct {
	Name     string         `json:"name"`
	Enabled  bool           `json:"enabled"`
	Instance string         `json:"instance"`
	Window   time.Duration  `json:"window"`
	Step     time.Duration  `json:"step"`
	Points   []HistoryPoint `json:"points"`
}

// HistoryConfig groups the configured history backends.
type HistoryConfig struct {
	Mode     string           `json:"mode"`
	Instance string           `json:"instance"`
	Adapters []HistoryAdapter `json:"adapters"`
}

// TelegramConfig selects notification recipients.
type TelegramConfig struct {
	Enabled    bool     `json:"enabled"`
	Instance   string   `json:"instance"`
	Recipients []string `json:"recipients"`
}

// GPTConfig gates the optional text enrichment.
type GPTConfig struct {
	Enabled      bool   `json:"enabled"`
	OpenAIAPIKey string `json:"openaiApiKey"`
	Model        string `json:"model"`
}

// SchedulerConfig controls the daily report window.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Time     string `json:"time"`
	Days     string `json:"days"`
	Timezone string `json:"timezone"`
}

// Config is the normalised installation configuration.
type Config struct {
	DataPoints []DataPoint     `json:"dataPoints"`
	PVSources  []PVSource      `json:"pvSources"`
	History    HistoryConfig   `json:"history"`
	Telegram   TelegramConfig  `json:"telegram"`
	GPT        GPTConfig       `json:"gpt"`
	Scheduler  SchedulerConfig `json:"scheduler"`
}

// EnabledDataPoints returns the data points participating in the pipeline.
func (c *Config) EnabledDataPoints() []DataPoint {
	out := make([]DataPoint, 0, len(c.DataPoints))
	for _, dp := range c.DataPoints {
		if dp.Enabled && dp.ObjectID != "" {
			out = append(out, dp)
		}
	}
	return out
}

// Load reads a raw installation document from disk.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read installation config: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse installation config: %w", err)
	}
	return raw, nil
}
