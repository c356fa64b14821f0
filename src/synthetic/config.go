package synthetic

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig controls the Empty Candle Detector's consecutive-synthetic-row
// caps. Per the resolved open question in the expanded spec, intraday
// defaults to unbounded (0) and daily-and-above defaults to 30.
type EnvConfig struct {
	CapIntraday      int `envconfig:"SYNTHETIC_CAP_INTRADAY" default:"0"`
	CapDailyAndAbove int `envconfig:"SYNTHETIC_CAP_DAILY_AND_ABOVE" default:"30"`
}

// GetConfig loads the Empty Candle Detector's configuration from the
// environment.
func GetConfig() EnvConfig {
	var config EnvConfig
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// ToConfig converts the loaded environment settings into the Detector's own
// Config shape.
func (e EnvConfig) ToConfig() Config {
	return Config{CapIntraday: e.CapIntraday, CapDailyAndAbove: e.CapDailyAndAbove}
}
