package entity

// RegexHit is one pattern match on a line.
type RegexHit struct {
	Pattern  string   `json:"pattern"`
	Category string   `json:"category"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Text     string   `json:"text"`
	Groups   []string `json:"groups,omitempty"`
	Weight   float64  `json:"weight"`
	Priority int      `json:"priority"`
}

type PositionFeatures struct {
	Box     BBox    `json:"box"`
	RelX    float64 `json:"rel_x"`
	RelY    float64 `json:"rel_y"`
	RelW    float64 `json:"rel_w"`
	RelH    float64 `json:"rel_h"`
	Rank    int     `json:"rank"`
	RelRank float64 `json:"rel_rank"`
	Page    int     `json:"page"`
}

type ContextFeatures struct {
	Before []string `json:"before,omitempty"`
	After  []string `json:"after,omitempty"`
}

type TextStats struct {
	Length      int     `json:"length"`
	Tokens      int     `json:"tokens"`
	DigitRatio  float64 `json:"digit_ratio"`
	UpperRatio  float64 `json:"upper_ratio"`
	AlphaRatio  float64 `json:"alpha_ratio"`
	HasCurrency bool    `json:"has_currency"`
}

// FeatureVector bundles every signal computed for one normalized line.
// Values is keyed by the extractor's schema; every schema key is present.
type FeatureVector struct {
	Line          int                `json:"line"`
	SchemaVersion string             `json:"schema_version"`
	Values        map[string]float64 `json:"values"`
	Regex         []RegexHit         `json:"regex,omitempty"`
	Position      PositionFeatures   `json:"position"`
	Context       ContextFeatures    `json:"context"`
	Stats         TextStats          `json:"stats"`
}
