package miner

import "time"

// Config contains configuration for the miner service
type Config struct {
	MaxBatch          int           `json:"max_batch" yaml:"max_batch" mapstructure:"max_batch" default:"500"`                             // e.g., 500
	MaxBatchWait      time.Duration `json:"max_batch_wait" yaml:"max_batch_wait" mapstructure:"max_batch_wait" default:"25ms"`             // e.g., 25ms
	QueueSize         int           `json:"queue_size" yaml:"queue_size" mapstructure:"queue_size" default:"10000"`                        // buffered lines awaiting the batcher
	ValidateTemplates bool          `json:"validate_templates" yaml:"validate_templates" mapstructure:"validate_templates" default:"true"` // check generated templates against their line
	SeedTemplates     []string      `json:"seed_templates,omitempty" yaml:"seed_templates,omitempty" mapstructure:"seed_templates"`        // inserted before the first line
}

// DefaultConfig returns the miner configuration used when nothing else is configured
func DefaultConfig() *Config {
	return &Config{
		MaxBatch:          500,
		MaxBatchWait:      25 * time.Millisecond,
		QueueSize:         10000,
		ValidateTemplates: true,
	}
}
