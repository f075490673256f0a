package entity

// TextLine is a run of words sharing one baseline band, left to right.
type TextLine struct {
	Text     string  `json:"text"`
	Box      BBox    `json:"box"`
	Page     int     `json:"page"`
	Index    int     `json:"index"`
	Words    []Word  `json:"words"`
	FontSize float64 `json:"font_size,omitempty"`
	FontName string  `json:"font_name,omitempty"`
}

// NormalizedLine is a TextLine after canonicalization and optional merging.
type NormalizedLine struct {
	Text       string   `json:"text"`
	Original   string   `json:"original"`
	Box        BBox     `json:"box"`
	Page       int      `json:"page"`
	Index      int      `json:"index"`
	FontSize   float64  `json:"font_size,omitempty"`
	Operations []string `json:"operations,omitempty"`
	MergedFrom []int    `json:"merged_from,omitempty"`
	Provenance string   `json:"provenance,omitempty"`
}
