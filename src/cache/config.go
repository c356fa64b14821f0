package cache

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig controls the Candle Cache's entry-count bound and TTL.
type EnvConfig struct {
	MaxEntries int           `envconfig:"CANDLE_CACHE_MAX_ENTRIES" default:"1000"`
	TTL        time.Duration `envconfig:"CANDLE_CACHE_TTL" default:"60s"`
}

// GetConfig loads the Candle Cache's configuration from the environment.
func GetConfig() EnvConfig {
	var config EnvConfig
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
