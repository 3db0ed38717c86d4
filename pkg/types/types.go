package types

// Provenance represents the source of a template result
type Provenance int32

const (
	ProvenanceUnspecified Provenance = 0
	ProvenanceCache       Provenance = 1 // matched a live template in the trie
	ProvenanceHeuristic   Provenance = 2 // built by the masking heuristic
	ProvenanceGenerated   Provenance = 3 // produced by a pluggable generator
	ProvenanceFallback    Provenance = 4 // generator failed or did not validate, heuristic used instead
)

// String returns the lower-case name used in logs and JSON
func (p Provenance) String() string {
	switch p {
	case ProvenanceCache:
		return "cache"
	case ProvenanceHeuristic:
		return "heuristic"
	case ProvenanceGenerated:
		return "generated"
	case ProvenanceFallback:
		return "fallback"
	default:
		return "unspecified"
	}
}

// MarshalText implements encoding.TextMarshaler
func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// TemplateResult represents the template assignment for one input line
type TemplateResult struct {
	RecordIndex int32      `json:"record_index"`       // Index of the input record (0-based)
	LineID      int        `json:"line_id"`            // Identifier the line was attributed under
	TemplateID  string     `json:"template_id"`        // Stable identifier for the template (hash of canonical text)
	Template    string     `json:"template"`           // Canonical template text with {variables} placeholders
	Regex       string     `json:"regex"`              // Whole-line expression derived from the template
	Provenance  Provenance `json:"provenance"`         // Source of this result
	Merged      bool       `json:"merged"`             // true when admitting the line generalized existing templates
	Absorbed    []string   `json:"absorbed,omitempty"` // templates merged away while admitting the line
}

// MinerResult represents the complete miner response for a batch
type MinerResult struct {
	Results []TemplateResult `json:"results"` // 1:1 with input records
}

// Assignment is the template a line ended up attributed to
type Assignment struct {
	TemplateID string `json:"template_id"`
	Template   string `json:"template"` // placeholders rendered as the wildcard token
}
