package repository

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	InvoicesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "issuer_key", Type: field.TypeString},
		{Name: "invoice_number", Type: field.TypeString, Nullable: true},
		{Name: "invoice_date", Type: field.TypeTime, Nullable: true},
		{Name: "issuer_name", Type: field.TypeString, Default: ""},
		{Name: "issuer_street", Type: field.TypeString, Default: ""},
		{Name: "postal_code", Type: field.TypeString, Default: ""},
		{Name: "city", Type: field.TypeString, Default: ""},
		{Name: "country", Type: field.TypeString, Default: ""},
		{Name: "net_total", Type: field.TypeString, Nullable: true},
		{Name: "vat_total", Type: field.TypeString, Nullable: true},
		{Name: "gross_total", Type: field.TypeString, Nullable: true},
		{Name: "confidence", Type: field.TypeFloat64},
		{Name: "needs_review", Type: field.TypeBool, Default: false},
		{Name: "source_path", Type: field.TypeString, Default: ""},
		{Name: "file_hash", Type: field.TypeString, Default: ""},
		{Name: "model_version", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	InvoicesTable = &schema.Table{
		Name:       "invoices",
		Columns:    InvoicesColumns,
		PrimaryKey: []*schema.Column{InvoicesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "invoices_issuer_key_invoice_number",
				Unique:  true,
				Columns: []*schema.Column{InvoicesColumns[1], InvoicesColumns[2]},
			},
			{
				Name:    "invoices_invoice_date",
				Columns: []*schema.Column{InvoicesColumns[3]},
			},
		},
	}

	ExtractionRunsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "source_path", Type: field.TypeString},
		{Name: "file_hash", Type: field.TypeString, Default: ""},
		{Name: "status", Type: field.TypeString},
		{Name: "success", Type: field.TypeBool, Nullable: true},
		{Name: "document_id", Type: field.TypeString, Nullable: true},
		{Name: "model_version", Type: field.TypeString, Nullable: true},
		{Name: "feature_schema", Type: field.TypeString, Nullable: true},
		{Name: "overall_confidence", Type: field.TypeFloat64, Nullable: true},
		{Name: "warnings", Type: field.TypeJSON, Nullable: true},
		{Name: "errors", Type: field.TypeJSON, Nullable: true},
		{Name: "result", Type: field.TypeJSON, Nullable: true},
		{Name: "started_at", Type: field.TypeTime},
		{Name: "finished_at", Type: field.TypeTime, Nullable: true},
		{Name: "duration_ms", Type: field.TypeInt64, Nullable: true},
	}
	ExtractionRunsTable = &schema.Table{
		Name:       "extraction_runs",
		Columns:    ExtractionRunsColumns,
		PrimaryKey: []*schema.Column{ExtractionRunsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "extraction_runs_file_hash",
				Columns: []*schema.Column{ExtractionRunsColumns[2]},
			},
		},
	}

	Tables = []*schema.Table{InvoicesTable, ExtractionRunsTable}
)

func columnNames(cols []*schema.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
