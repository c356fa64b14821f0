package upstream

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig controls the Upstream Fetcher's base URL and global rate limit,
// per-package per the teacher's envconfig convention.
type EnvConfig struct {
	BaseURL                  string `envconfig:"UPBIT_BASE_URL" default:"https://api.upbit.com/v1"`
	RateLimitTokensPerMinute int    `envconfig:"UPBIT_RATE_LIMIT_TOKENS_PER_MINUTE" default:"600"`
}

// GetConfig loads the Upstream Fetcher's configuration from the environment.
func GetConfig() EnvConfig {
	var config EnvConfig
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// ToConfig converts the loaded environment settings into the Fetcher's own
// Config shape.
func (e EnvConfig) ToConfig() Config {
	return Config{BaseURL: e.BaseURL, RateLimitTokensPerMinute: e.RateLimitTokensPerMinute}
}
