package logtypes

import (
	"time"
)

// MaskReport represents which masking rules rewrote a message
type MaskReport struct {
	Applied bool     `json:"applied"`
	Rules   []string `json:"rules"`
	Count   int      `json:"count"`
}

// Line is one log line handed to the miner.
// ID is caller-assigned and unique per processed line; zero asks the miner to assign one.
type Line struct {
	ID        int               `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
	Message   string            `json:"message"`
	Truncated bool              `json:"truncated,omitempty"`
}

// Batch is a batch of lines
type Batch struct {
	Records []Line `json:"records"` // required; must not be empty
}
