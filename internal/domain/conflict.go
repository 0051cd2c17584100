package domain

const (
	ConflictMissingInfo   = "missing_info"
	ConflictContradictory = "contradictory"
	ConflictOutdated      = "outdated"
)

const (
	SeverityLow  = "low"
	SeverityMed  = "med"
	SeverityHigh = "high"
)

// Conflict is a detected inconsistency between retrieved sources.
type Conflict struct {
	Topic      string   `json:"topic"`
	Sources    []string `json:"sources"`
	Kind       string   `json:"kind"`
	Severity   string   `json:"severity"`
	Suggestion string   `json:"suggestion"`
}

// SeverityWeight feeds the conflict penalty factor of the confidence score.
func SeverityWeight(severity string) float64 {
	switch severity {
	case SeverityHigh:
		return 0.3
	case SeverityMed:
		return 0.15
	case SeverityLow:
		return 0.05
	default:
		return 0
	}
}

// QualityReport is the analyzer output for one retrieval set.
type QualityReport struct {
	Confidence    float64    `json:"confidence"`
	Conflicts     []Conflict `json:"conflicts"`
	Notes         []string   `json:"notes"`
	Coverage      float64    `json:"coverage"`
	MeanAuthority float64    `json:"mean_authority"`
}
