package constants

import (
	"strings"
)

// FieldType is the closed label set the classifier scores every line against.
type FieldType string

const (
	InvoiceNumber    FieldType = "InvoiceNumber"
	InvoiceDate      FieldType = "InvoiceDate"
	IssuerName       FieldType = "IssuerName"
	IssuerStreet     FieldType = "IssuerStreet"
	IssuerPostalCode FieldType = "IssuerPostalCode"
	IssuerCity       FieldType = "IssuerCity"
	IssuerCountry    FieldType = "IssuerCountry"
	NetTotal         FieldType = "NetTotal"
	VatTotal         FieldType = "VatTotal"
	GrossTotal       FieldType = "GrossTotal"
	Other            FieldType = "Other"
)

// ValueKind decides how a field's text is coerced into a typed value.
type ValueKind int

const (
	KindText ValueKind = iota
	KindDate
	KindAmount
	KindPostal
)

func (k ValueKind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindAmount:
		return "amount"
	case KindPostal:
		return "postal"
	default:
		return "text"
	}
}

type fieldSpec struct {
	kind       ValueKind
	keywords   []string
	companions []FieldType
}

// Label order matters: it is the classifier's output order and the tie-break order.
var allFields = []FieldType{
	InvoiceNumber,
	InvoiceDate,
	IssuerName,
	IssuerStreet,
	IssuerPostalCode,
	IssuerCity,
	IssuerCountry,
	NetTotal,
	VatTotal,
	GrossTotal,
	Other,
}

var fieldSpecs = map[FieldType]fieldSpec{
	InvoiceNumber: {
		kind:     KindText,
		keywords: []string{"invoice no", "invoice number", "invoice #", "rechnungsnummer", "rechnung nr", "re-nr", "beleg nr"},
	},
	InvoiceDate: {
		kind:     KindDate,
		keywords: []string{"invoice date", "date", "datum", "rechnungsdatum"},
	},
	IssuerName: {
		kind:     KindText,
		keywords: []string{"gmbh", "ltd", "inc", "ag", "kg", "llc", "company"},
	},
	IssuerStreet: {
		kind:     KindText,
		keywords: []string{"str.", "strasse", "straße", "street", "road", "weg", "platz", "avenue"},
	},
	IssuerPostalCode: {
		kind:       KindPostal,
		keywords:   []string{"plz", "zip"},
		companions: []FieldType{IssuerCity},
	},
	IssuerCity: {
		kind: KindText,
	},
	IssuerCountry: {
		kind:     KindText,
		keywords: []string{"germany", "deutschland", "austria", "österreich", "switzerland", "schweiz", "united kingdom"},
	},
	NetTotal: {
		kind:     KindAmount,
		keywords: []string{"net", "netto", "subtotal", "zwischensumme", "nettobetrag"},
	},
	VatTotal: {
		kind:     KindAmount,
		keywords: []string{"vat", "mwst", "ust", "umsatzsteuer", "tax", "mehrwertsteuer"},
	},
	GrossTotal: {
		kind:     KindAmount,
		keywords: []string{"total", "gross", "brutto", "gesamt", "amount due", "rechnungsbetrag", "summe"},
	},
	Other: {
		kind: KindText,
	},
}

// AllFields returns every label including Other, in classifier order.
func AllFields() []FieldType {
	out := make([]FieldType, len(allFields))
	copy(out, allFields)
	return out
}

// ExtractableFields returns every label except Other.
func ExtractableFields() []FieldType {
	return AllFields()[:len(allFields)-1]
}

func AsStringSlice() []string {
	result := make([]string, len(allFields))
	for i, f := range allFields {
		result[i] = string(f)
	}
	return result
}

// Kind reports how values of f are coerced.
func (f FieldType) Kind() ValueKind {
	return fieldSpecs[f].kind
}

// Keywords are lowercase label hints that typically appear next to the value.
func (f FieldType) Keywords() []string {
	return fieldSpecs[f].keywords
}

// Companions are fields that are read from the same line as f.
func (f FieldType) Companions() []FieldType {
	return fieldSpecs[f].companions
}

func (f FieldType) Valid() bool {
	_, ok := fieldSpecs[f]
	return ok
}

// Index is f's position in AllFields, or -1.
func (f FieldType) Index() int {
	for i, x := range allFields {
		if x == f {
			return i
		}
	}
	return -1
}

// ParseFieldType maps a configured field name onto the closed label set.
func ParseFieldType(input string) (FieldType, bool) {
	if input == "" {
		return Other, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]FieldType{
		"invoice_number": InvoiceNumber,
		"number":         InvoiceNumber,
		"invoice_date":   InvoiceDate,
		"date":           InvoiceDate,
		"issuer":         IssuerName,
		"issuer_name":    IssuerName,
		"vendor":         IssuerName,
		"street":         IssuerStreet,
		"postal_code":    IssuerPostalCode,
		"zip":            IssuerPostalCode,
		"city":           IssuerCity,
		"country":        IssuerCountry,
		"net":            NetTotal,
		"net_total":      NetTotal,
		"vat":            VatTotal,
		"vat_total":      VatTotal,
		"tax":            VatTotal,
		"gross":          GrossTotal,
		"gross_total":    GrossTotal,
		"total":          GrossTotal,
	}

	if f, ok := synonyms[normalized]; ok {
		return f, true
	}

	for _, f := range allFields {
		if normalized == strings.ToLower(string(f)) {
			return f, true
		}
	}

	return Other, false
}

// ParseFieldTypes parses a list, returning the names that did not resolve.
func ParseFieldTypes(names []string) ([]FieldType, []string) {
	var out []FieldType
	var unknown []string
	for _, n := range names {
		f, ok := ParseFieldType(n)
		if !ok || f == Other {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, f)
	}
	return out, unknown
}
