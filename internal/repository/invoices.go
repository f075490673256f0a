package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// InvoiceRepository stores one row per (issuer, invoice number).
type InvoiceRepository struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

// IssuerKey folds an issuer name for matching: lower case, single spaces.
func IssuerKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Save updates the row for the record's issuer and invoice number when one
// exists, otherwise inserts. It returns the reloaded row and whether it was an
// update. Records without an invoice number are always inserted.
//
// The write is a single INSERT ... ON CONFLICT DO UPDATE, so concurrent saves
// of one invoice converge on one row.
func (r *InvoiceRepository) Save(ctx context.Context, rec entity.InvoiceRecord) (entity.InvoiceRecord, bool, error) {
	key := IssuerKey(rec.IssuerName)
	number := strings.TrimSpace(rec.InvoiceNumber)
	now := time.Now().UTC()

	cols := []string{
		"issuer_key", "invoice_number", "invoice_date", "issuer_name", "issuer_street",
		"postal_code", "city", "country", "net_total", "vat_total", "gross_total",
		"confidence", "needs_review", "source_path", "file_hash", "model_version", "updated_at",
	}
	vals := []any{
		key, nullString(number), nullTime(rec.InvoiceDate), rec.IssuerName, rec.IssuerStreet,
		rec.PostalCode, rec.City, rec.Country, nullDecimal(rec.NetTotal), nullDecimal(rec.VatTotal), nullDecimal(rec.GrossTotal),
		rec.Confidence, rec.NeedsReview, rec.SourcePath, rec.FileHash, rec.ModelVersion, now,
	}

	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	ins := entsql.Dialect(r.dialect).Insert(InvoicesTable.Name).
		Columns(append([]string{"id", "created_at"}, cols...)...).
		Values(append([]any{id, now}, vals...)...)
	if number != "" {
		ins.OnConflict(
			entsql.ConflictColumns("issuer_key", "invoice_number"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, c := range cols {
					u.SetExcluded(c)
				}
			}),
		)
	}
	q, args := ins.Returning("id").Query()

	var stored uuid.UUID
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&stored); err != nil {
		r.logger.Error("repository.invoice.save_failed", "invoice_number", number, "error", err)
		return rec, false, fmt.Errorf("%w: save invoice: %v", common.ErrDatabase, err)
	}
	updated := stored != id

	saved, err := r.Get(ctx, stored)
	if err != nil {
		return rec, updated, err
	}
	r.logger.Info("repository.invoice.saved", "id", stored, "invoice_number", number, "updated", updated)
	return saved, updated, nil
}

func (r *InvoiceRepository) Get(ctx context.Context, id uuid.UUID) (entity.InvoiceRecord, error) {
	b := entsql.Dialect(r.dialect)
	q, args := b.Select(columnNames(InvoicesColumns)...).
		From(b.Table(InvoicesTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()
	rec, err := scanInvoice(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%w: invoice %s", common.ErrNotFound, id)
	}
	if err != nil {
		return rec, fmt.Errorf("%w: get invoice: %v", common.ErrDatabase, err)
	}
	return rec, nil
}

// List returns invoices dated within [from, to], either bound optional,
// ordered by invoice date.
func (r *InvoiceRepository) List(ctx context.Context, from, to *time.Time) ([]entity.InvoiceRecord, error) {
	b := entsql.Dialect(r.dialect)
	sel := b.Select(columnNames(InvoicesColumns)...).From(b.Table(InvoicesTable.Name))
	var preds []*entsql.Predicate
	if from != nil {
		preds = append(preds, entsql.GTE("invoice_date", from.UTC()))
	}
	if to != nil {
		preds = append(preds, entsql.LTE("invoice_date", to.UTC()))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	q, args := sel.OrderBy("invoice_date", "created_at").Query()
	return r.query(ctx, q, args)
}

// FindCandidates returns stored invoices that share the record's invoice
// number, or its issuer and date. It serves the duplicate detector.
func (r *InvoiceRepository) FindCandidates(ctx context.Context, rec entity.InvoiceRecord) ([]entity.InvoiceRecord, error) {
	var preds []*entsql.Predicate
	if n := strings.TrimSpace(rec.InvoiceNumber); n != "" {
		preds = append(preds, entsql.EqualFold("invoice_number", n))
	}
	if key := IssuerKey(rec.IssuerName); key != "" && rec.InvoiceDate != nil {
		y, m, d := rec.InvoiceDate.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		preds = append(preds, entsql.And(
			entsql.EQ("issuer_key", key),
			entsql.GTE("invoice_date", day),
			entsql.LT("invoice_date", day.AddDate(0, 0, 1)),
		))
	}
	if len(preds) == 0 {
		return nil, nil
	}
	b := entsql.Dialect(r.dialect)
	q, args := b.Select(columnNames(InvoicesColumns)...).
		From(b.Table(InvoicesTable.Name)).
		Where(entsql.Or(preds...)).
		OrderBy("created_at").
		Query()
	return r.query(ctx, q, args)
}

func (r *InvoiceRepository) query(ctx context.Context, q string, args []any) ([]entity.InvoiceRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		r.logger.Error("repository.invoice.query_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.InvoiceRecord
	for rows.Next() {
		rec, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan invoice: %v", common.ErrDatabase, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

// scanInvoice reads a row selected with every InvoicesColumns column.
func scanInvoice(row scanner) (entity.InvoiceRecord, error) {
	var (
		rec             entity.InvoiceRecord
		key             string
		number          sql.NullString
		date            sql.NullTime
		net, vat, gross sql.NullString
	)
	err := row.Scan(
		&rec.ID, &key, &number, &date, &rec.IssuerName, &rec.IssuerStreet,
		&rec.PostalCode, &rec.City, &rec.Country, &net, &vat, &gross,
		&rec.Confidence, &rec.NeedsReview, &rec.SourcePath, &rec.FileHash, &rec.ModelVersion,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.InvoiceNumber = number.String
	if date.Valid {
		d := date.Time.UTC()
		rec.InvoiceDate = &d
	}
	for _, p := range []struct {
		src sql.NullString
		dst **decimal.Decimal
	}{{net, &rec.NetTotal}, {vat, &rec.VatTotal}, {gross, &rec.GrossTotal}} {
		if !p.src.Valid {
			continue
		}
		d, err := decimal.NewFromString(p.src.String)
		if err != nil {
			return rec, fmt.Errorf("amount %q: %w", p.src.String, err)
		}
		*p.dst = &d
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
