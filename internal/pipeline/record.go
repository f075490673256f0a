package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// ToRecord derives the structured invoice record from a result. Typed values
// are only copied when their coercion succeeded.
func ToRecord(res *entity.ExtractionResult) entity.InvoiceRecord {
	now := time.Now().UTC()
	rec := entity.InvoiceRecord{
		ID:            uuid.New(),
		InvoiceNumber: res.Value(constants.InvoiceNumber),
		IssuerName:    res.Value(constants.IssuerName),
		IssuerStreet:  res.Value(constants.IssuerStreet),
		PostalCode:    res.Value(constants.IssuerPostalCode),
		City:          res.Value(constants.IssuerCity),
		Country:       res.Value(constants.IssuerCountry),
		Confidence:    res.OverallConfidence,
		NeedsReview:   !res.Success || res.NeedsReview(),
		SourcePath:    res.SourcePath,
		ModelVersion:  res.ModelVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if f, ok := res.Field(constants.InvoiceDate); ok && f.Resolved && f.Date != nil {
		d := *f.Date
		rec.InvoiceDate = &d
	}
	if f, ok := res.Field(constants.NetTotal); ok && f.Resolved && f.Amount != nil {
		a := *f.Amount
		rec.NetTotal = &a
	}
	if f, ok := res.Field(constants.VatTotal); ok && f.Resolved && f.Amount != nil {
		a := *f.Amount
		rec.VatTotal = &a
	}
	if f, ok := res.Field(constants.GrossTotal); ok && f.Resolved && f.Amount != nil {
		a := *f.Amount
		rec.GrossTotal = &a
	}
	return rec
}
