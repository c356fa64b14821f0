package processor

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig controls the Chunk Processor's chunk size, per-chunk retry
// policy, and implicit per-request deadline, per §5/§6.
type EnvConfig struct {
	ChunkSize                          int `envconfig:"CANDLE_CHUNK_SIZE" default:"200"`
	ChunkRetryMax                      int `envconfig:"CHUNK_RETRY_MAX" default:"3"`
	ChunkRetryBaseDelayMs              int `envconfig:"CHUNK_RETRY_BASE_DELAY_MS" default:"1000"`
	PerRequestDeadlineMsPer1000Candles int `envconfig:"PER_REQUEST_DEADLINE_MS_PER_1000_CANDLES" default:"30000"`
}

// GetConfig loads the Chunk Processor's configuration from the environment.
func GetConfig() EnvConfig {
	var config EnvConfig
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// ToConfig converts the loaded environment settings into the Processor's own
// Config shape.
func (e EnvConfig) ToConfig() Config {
	return Config{
		ChunkSize:              e.ChunkSize,
		RetryMax:               e.ChunkRetryMax,
		RetryBaseDelay:         time.Duration(e.ChunkRetryBaseDelayMs) * time.Millisecond,
		DeadlinePer1000Candles: time.Duration(e.PerRequestDeadlineMsPer1000Candles) * time.Millisecond,
	}
}
