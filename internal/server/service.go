// Package server exposes the extraction pipeline over gRPC.
package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
)

// Extractor runs the pipeline for one document.
type Extractor interface {
	Extract(ctx context.Context, path string, opts pipeline.Options) *entity.ExtractionResult
}

// DuplicateChecker compares a record with stored invoices.
type DuplicateChecker interface {
	Check(ctx context.Context, rec entity.InvoiceRecord) (entity.DuplicateCheckResult, error)
}

// InvoiceExporter renders stored invoices as XLSX.
type InvoiceExporter interface {
	ExportInvoicesXLSX(ctx context.Context, from, to *time.Time) ([]byte, error)
}

type ExtractRequest struct {
	Path                string   `json:"path"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	RequiredFields      []string `json:"required_fields"`
	OptionalFields      []string `json:"optional_fields"`
	Strict              bool     `json:"strict"`
	TimeoutMS           int64    `json:"timeout_ms"`
	CheckDuplicates     bool     `json:"check_duplicates"`
}

type ExtractResponse struct {
	Result    *entity.ExtractionResult     `json:"result"`
	Record    *entity.InvoiceRecord        `json:"record,omitempty"`
	Duplicate *entity.DuplicateCheckResult `json:"duplicate,omitempty"`
}

type CheckDuplicatesRequest struct {
	InvoiceNumber string `json:"invoice_number"`
	IssuerName    string `json:"issuer_name"`
	InvoiceDate   string `json:"invoice_date"` // YYYY-MM-DD
	GrossTotal    string `json:"gross_total"`
}

type ExportInvoicesRequest struct {
	FromDate string `json:"from_date"` // YYYY-MM-DD
	ToDate   string `json:"to_date"`
}

type ExportInvoicesResponse struct {
	Filename string `json:"filename"`
	XLSX     string `json:"xlsx_base64"`
	Size     int    `json:"size"`
}

type Config struct {
	// Root, when set, confines ExtractDocument to files below it.
	Root string
}

// ExtractionServer implements ExtractionService. The duplicate checker and
// exporter are optional; calls needing a missing one are Unimplemented.
type ExtractionServer struct {
	extractor Extractor
	checker   DuplicateChecker
	exporter  InvoiceExporter
	cfg       Config
	logger    *slog.Logger
}

func NewExtractionServer(ex Extractor, checker DuplicateChecker, exporter InvoiceExporter, cfg Config, logger *slog.Logger) *ExtractionServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionServer{extractor: ex, checker: checker, exporter: exporter, cfg: cfg, logger: logger}
}

func (s *ExtractionServer) ExtractDocument(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ExtractRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	path, err := s.resolvePath(req.Path)
	if err != nil {
		return nil, err
	}
	required, unknown := constants.ParseFieldTypes(req.RequiredFields)
	optional, unknownOpt := constants.ParseFieldTypes(req.OptionalFields)
	if unknown = append(unknown, unknownOpt...); len(unknown) > 0 {
		return nil, common.InvalidArgumentErrorf("unknown fields: %s", strings.Join(unknown, ", "))
	}
	if req.CheckDuplicates && s.checker == nil {
		return nil, common.UnimplementedError("duplicate checking is not configured")
	}

	opts := pipeline.Options{
		ConfidenceThreshold: req.ConfidenceThreshold,
		RequiredFields:      required,
		OptionalFields:      optional,
		Strict:              req.Strict,
		Timeout:             time.Duration(req.TimeoutMS) * time.Millisecond,
	}
	s.logger.Info("server.extract.start", "path", path, "request_id", common.RequestIDFromContext(ctx))

	res := s.extractor.Extract(ctx, path, opts)
	resp := ExtractResponse{Result: res}
	if res.Success {
		rec := pipeline.ToRecord(res)
		resp.Record = &rec
		if req.CheckDuplicates {
			dup, err := s.checker.Check(ctx, rec)
			if err != nil {
				s.logger.Error("server.extract.duplicates_failed", "path", path, "error", err)
				return nil, common.ToStatus(err)
			}
			resp.Duplicate = &dup
		}
	}
	return encode(resp)
}

func (s *ExtractionServer) CheckDuplicates(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.checker == nil {
		return nil, common.UnimplementedError("duplicate checking is not configured")
	}
	var req CheckDuplicatesRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	rec := entity.InvoiceRecord{
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		IssuerName:    strings.TrimSpace(req.IssuerName),
	}
	if rec.InvoiceNumber == "" && rec.IssuerName == "" {
		return nil, common.InvalidArgumentError("invoice_number or issuer_name is required")
	}
	if req.InvoiceDate != "" {
		d, err := time.Parse("2006-01-02", req.InvoiceDate)
		if err != nil {
			return nil, common.InvalidArgumentError("invoice_date must be YYYY-MM-DD")
		}
		rec.InvoiceDate = &d
	}
	if req.GrossTotal != "" {
		g, err := decimal.NewFromString(req.GrossTotal)
		if err != nil {
			return nil, common.InvalidArgumentError("gross_total must be a decimal")
		}
		rec.GrossTotal = &g
	}

	dup, err := s.checker.Check(ctx, rec)
	if err != nil {
		s.logger.Error("server.duplicates.failed", "invoice_number", rec.InvoiceNumber, "error", err)
		return nil, common.ToStatus(err)
	}
	return encode(dup)
}

// ExportInvoices returns stored invoices as a base64 XLSX workbook.
// If only from_date is given the window runs to today.
func (s *ExtractionServer) ExportInvoices(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.exporter == nil {
		return nil, common.UnimplementedError("export is not configured")
	}
	var req ExportInvoicesRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	from, err := parseDate(req.FromDate, "from_date")
	if err != nil {
		return nil, err
	}
	to, err := parseDate(req.ToDate, "to_date")
	if err != nil {
		return nil, err
	}

	b, err := s.exporter.ExportInvoicesXLSX(ctx, from, to)
	if err != nil {
		s.logger.Error("server.export.failed", "error", err)
		return nil, common.ToStatus(err)
	}
	name := "invoices.xlsx"
	if from != nil || to != nil {
		name = fmt.Sprintf("invoices_%s_%s.xlsx", dateOr(from, "begin"), dateOr(to, "today"))
	}
	return encode(ExportInvoicesResponse{Filename: name, XLSX: base64.StdEncoding.EncodeToString(b), Size: len(b)})
}

func (s *ExtractionServer) resolvePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", common.InvalidArgumentError("path is required")
	}
	if s.cfg.Root == "" {
		return p, nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.cfg.Root, p)
	}
	if !within(s.cfg.Root, p) {
		return "", common.InvalidArgumentErrorf("path %q is outside the document root", p)
	}
	p = filepath.Clean(p)

	// A symlink below the root may still point out of it. Paths that do not
	// resolve are left to the extractor to report.
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return p, nil
	}
	root, err := filepath.EvalSymlinks(s.cfg.Root)
	if err != nil {
		root = s.cfg.Root
	}
	if !within(root, resolved) {
		return "", common.InvalidArgumentErrorf("path %q resolves outside the document root", p)
	}
	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(p))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func parseDate(s, field string) (*time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, common.InvalidArgumentErrorf("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

func dateOr(t *time.Time, def string) string {
	if t == nil {
		return def
	}
	return t.Format("2006-01-02")
}

// decode maps a request struct onto v through its JSON form.
func decode(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return common.InvalidArgumentErrorf("request: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return common.InvalidArgumentErrorf("request: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	return out, nil
}
