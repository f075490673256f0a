package entity

// Word is one positioned token as delivered by the PDF content extractor.
type Word struct {
	Text     string  `json:"text"`
	Box      BBox    `json:"box"`
	FontName string  `json:"font_name,omitempty"`
	FontSize float64 `json:"font_size,omitempty"`
	Page     int     `json:"page"`
}

// Page carries the page geometry needed for relative position features.
type Page struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Words  []Word  `json:"words"`
}

// Document is everything the extractor read from one PDF.
type Document struct {
	Path  string `json:"path"`
	Pages []Page `json:"pages"`
}

// Words flattens every page's words.
func (d Document) Words() []Word {
	var n int
	for _, p := range d.Pages {
		n += len(p.Words)
	}
	out := make([]Word, 0, n)
	for _, p := range d.Pages {
		out = append(out, p.Words...)
	}
	return out
}

// PageSize returns the dimensions of page number n, or zeros if unknown.
func (d Document) PageSize(n int) (float64, float64) {
	for _, p := range d.Pages {
		if p.Number == n {
			return p.Width, p.Height
		}
	}
	return 0, 0
}
