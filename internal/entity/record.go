package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// InvoiceRecord is the structured record derived from a successful extraction.
// It is what gets persisted and compared for duplicates.
type InvoiceRecord struct {
	ID            uuid.UUID        `json:"id"`
	InvoiceNumber string           `json:"invoice_number"`
	InvoiceDate   *time.Time       `json:"invoice_date,omitempty"`
	IssuerName    string           `json:"issuer_name"`
	IssuerStreet  string           `json:"issuer_street,omitempty"`
	PostalCode    string           `json:"postal_code,omitempty"`
	City          string           `json:"city,omitempty"`
	Country       string           `json:"country,omitempty"`
	NetTotal      *decimal.Decimal `json:"net_total,omitempty"`
	VatTotal      *decimal.Decimal `json:"vat_total,omitempty"`
	GrossTotal    *decimal.Decimal `json:"gross_total,omitempty"`
	Confidence    float64          `json:"confidence"`
	NeedsReview   bool             `json:"needs_review"`
	SourcePath    string           `json:"source_path,omitempty"`
	FileHash      string           `json:"file_hash,omitempty"`
	ModelVersion  string           `json:"model_version,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// DuplicateMatch is one stored record that matched a candidate.
type DuplicateMatch struct {
	Record    InvoiceRecord `json:"record"`
	Score     float64       `json:"score"`
	MatchedOn []string      `json:"matched_on"`
}

// DuplicateCheckResult is the outcome of comparing a record with stored ones.
type DuplicateCheckResult struct {
	HasDuplicates   bool                `json:"has_duplicates"`
	Matches         []DuplicateMatch    `json:"matches,omitempty"`
	SimilarityScore float64             `json:"similarity_score"`
	MatchType       constants.MatchType `json:"match_type"`
}
