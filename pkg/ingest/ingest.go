package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kumarabd/ingestion-plane/miner/pkg/logtypes"
)

var (
	ErrEmptyBatch    = errors.New("empty batch")
	ErrBatchTooLarge = errors.New("batch size exceeds maximum")
	ErrInvalidUTF8   = errors.New("invalid UTF-8 in log message")
)

// Config contains configuration for line intake
type Config struct {
	MaxMessageBytes int  `json:"max_message_bytes" yaml:"max_message_bytes" mapstructure:"max_message_bytes" default:"65536"` // lines are truncated past this size
	MaxBatchSize    int  `json:"max_batch_size" yaml:"max_batch_size" mapstructure:"max_batch_size" default:"1000"`           // 1000 lines per batch
	MaxLabels       int  `json:"max_labels" yaml:"max_labels" mapstructure:"max_labels" default:"100"`                        // 100 labels per line
	ValidateUTF8    bool `json:"validate_utf8" yaml:"validate_utf8" mapstructure:"validate_utf8" default:"true"`              // reject invalid UTF-8 instead of repairing it
}

// DefaultConfig returns the intake configuration used when nothing else is configured
func DefaultConfig() *Config {
	return &Config{
		MaxMessageBytes: 65536,
		MaxBatchSize:    1000,
		MaxLabels:       100,
		ValidateUTF8:    true,
	}
}

// Handler normalizes lines before they reach the miner
type Handler struct {
	config *Config
	masker *Masker
}

// NewHandler creates a new handler with configuration
func NewHandler(config *Config) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Handler{
		config: config,
		masker: NewMasker(),
	}
}

// GetConfig returns the handler configuration
func (h *Handler) GetConfig() *Config {
	return h.config
}

// GetMasker returns the masking rules used for heuristic templates
func (h *Handler) GetMasker() *Masker {
	return h.masker
}

// NormalizeLine validates UTF-8, caps size, canonicalizes whitespace and bounds labels
func (h *Handler) NormalizeLine(line logtypes.Line) (logtypes.Line, error) {
	if !utf8.ValidString(line.Message) {
		if h.config.ValidateUTF8 {
			return line, ErrInvalidUTF8
		}
		line.Message = strings.ToValidUTF8(line.Message, "")
	}

	line.Message, line.Truncated = NormalizeMessage(line.Message, h.config.MaxMessageBytes)
	if line.Timestamp.IsZero() {
		line.Timestamp = time.Now()
	}
	if h.config.MaxLabels > 0 && len(line.Labels) > h.config.MaxLabels {
		bounded := make(map[string]string, h.config.MaxLabels)
		for k, v := range line.Labels {
			if len(bounded) >= h.config.MaxLabels {
				break
			}
			bounded[k] = v
		}
		line.Labels = bounded
	}
	return line, nil
}

// NormalizeBatch normalizes every line of batch. Lines that cannot be normalized are
// dropped and counted in the returned skip count.
func (h *Handler) NormalizeBatch(batch *logtypes.Batch) (*logtypes.Batch, int, error) {
	if batch == nil || len(batch.Records) == 0 {
		return nil, 0, ErrEmptyBatch
	}
	if h.config.MaxBatchSize > 0 && len(batch.Records) > h.config.MaxBatchSize {
		return nil, 0, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(batch.Records), h.config.MaxBatchSize)
	}

	out := &logtypes.Batch{Records: make([]logtypes.Line, 0, len(batch.Records))}
	skipped := 0
	for _, line := range batch.Records {
		normalized, err := h.NormalizeLine(line)
		if err != nil {
			skipped++
			continue
		}
		out.Records = append(out.Records, normalized)
	}
	return out, skipped, nil
}
