package merge

// Config holds the admission thresholds of the merge engine. The values are
// empirically tuned; change them only with a corpus to validate against.
type Config struct {
	WildcardRatio       float64  `json:"wildcard_ratio" yaml:"wildcard_ratio" mapstructure:"wildcard_ratio" default:"0.5"`                    // merging is tried only at or below this ratio
	HighSimilarity      float64  `json:"high_similarity" yaml:"high_similarity" mapstructure:"high_similarity" default:"0.8"`                 // above: category guard, at or below: support guard
	MaxCategoryVariants int      `json:"max_category_variants" yaml:"max_category_variants" mapstructure:"max_category_variants" default:"5"` // columns with fewer variants may be category labels
	ShortTokenLen       int      `json:"short_token_len" yaml:"short_token_len" mapstructure:"short_token_len" default:"5"`                   // tokens shorter than this count as variable-looking
	NoisePatterns       []string `json:"noise_patterns" yaml:"noise_patterns" mapstructure:"noise_patterns"`                                  // regexes replaced by a wildcard during post-processing
}

// DefaultConfig returns the thresholds used when nothing else is configured
func DefaultConfig() *Config {
	return &Config{
		WildcardRatio:       0.5,
		HighSimilarity:      0.8,
		MaxCategoryVariants: 5,
		ShortTokenLen:       5,
	}
}
