package core

import "fmt"

// TargetField names a column of the fixed policy import schema.
type TargetField string

const (
	FieldPolicyNumber         TargetField = "policy_number"
	FieldPolicyType           TargetField = "policy_type"
	FieldInsurerName          TargetField = "insurer_name"
	FieldProductName          TargetField = "product_name"
	FieldProductCode          TargetField = "product_code"
	FieldPolicyholderName     TargetField = "policyholder_name"
	FieldInsuredName          TargetField = "insured_name"
	FieldStartDate            TargetField = "start_date"
	FieldExpiryDate           TargetField = "expiry_date"
	FieldPremium              TargetField = "premium"
	FieldCurrency             TargetField = "currency"
	FieldPaymentFrequency     TargetField = "payment_frequency"
	FieldCommissionPercentage TargetField = "commission_percentage"
	FieldNotes                TargetField = "notes"
)

// FieldKind is the expected data type of a target field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindDate
	KindDecimal
	KindEnum
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindDecimal:
		return "decimal"
	case KindEnum:
		return "enum"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// FieldSpec describes one target field.
type FieldSpec struct {
	Field    TargetField
	Label    string
	Kind     FieldKind
	Required bool
	Example  string // Value used in the downloadable template
}

// fieldSpecs lists the schema in canonical order. Template headers, mapping
// suggestions and validation errors all follow this order.
var fieldSpecs = []FieldSpec{
	{Field: FieldPolicyNumber, Label: "Policy Number", Kind: KindString, Required: true, Example: "POL-2024-0001"},
	{Field: FieldPolicyType, Label: "Policy Type", Kind: KindEnum, Example: "property"},
	{Field: FieldInsurerName, Label: "Insurer Name", Kind: KindString, Required: true, Example: "Acme Insurance"},
	{Field: FieldProductName, Label: "Product Name", Kind: KindString, Example: "Home Protect"},
	{Field: FieldProductCode, Label: "Product Code", Kind: KindString, Example: "HP-01"},
	{Field: FieldPolicyholderName, Label: "Policyholder Name", Kind: KindString, Required: true, Example: "Jane Novak"},
	{Field: FieldInsuredName, Label: "Insured Name", Kind: KindString, Example: "Jane Novak"},
	{Field: FieldStartDate, Label: "Start Date", Kind: KindDate, Required: true, Example: "2024-01-01"},
	{Field: FieldExpiryDate, Label: "Expiry Date", Kind: KindDate, Required: true, Example: "2025-01-01"},
	{Field: FieldPremium, Label: "Premium", Kind: KindDecimal, Required: true, Example: "1250.00"},
	{Field: FieldCurrency, Label: "Currency", Kind: KindString, Required: true, Example: "EUR"},
	{Field: FieldPaymentFrequency, Label: "Payment Frequency", Kind: KindEnum, Example: "annual"},
	{Field: FieldCommissionPercentage, Label: "Commission Percentage", Kind: KindDecimal, Example: "12.5"},
	{Field: FieldNotes, Label: "Notes", Kind: KindString, Example: "Imported from broker portfolio"},
}

var specByField = func() map[TargetField]FieldSpec {
	m := make(map[TargetField]FieldSpec, len(fieldSpecs))
	for _, s := range fieldSpecs {
		m[s.Field] = s
	}
	return m
}()

// FieldSpecs returns the schema in canonical order.
func FieldSpecs() []FieldSpec {
	out := make([]FieldSpec, len(fieldSpecs))
	copy(out, fieldSpecs)
	return out
}

// AllFields returns every target field in canonical order.
func AllFields() []TargetField {
	out := make([]TargetField, len(fieldSpecs))
	for i, s := range fieldSpecs {
		out[i] = s.Field
	}
	return out
}

// RequiredFields returns the required target fields in canonical order.
func RequiredFields() []TargetField {
	var out []TargetField
	for _, s := range fieldSpecs {
		if s.Required {
			out = append(out, s.Field)
		}
	}
	return out
}

// ParseTargetField returns the field named s.
func ParseTargetField(s string) (TargetField, bool) {
	_, ok := specByField[TargetField(s)]
	return TargetField(s), ok
}

// Spec returns the field's schema entry.
func (f TargetField) Spec() (FieldSpec, bool) {
	s, ok := specByField[f]
	return s, ok
}

// Label returns the human-readable name, or the raw name for unknown fields.
func (f TargetField) Label() string {
	if s, ok := specByField[f]; ok {
		return s.Label
	}
	return string(f)
}

func (f TargetField) Required() bool {
	return specByField[f].Required
}

func (f TargetField) Kind() FieldKind {
	return specByField[f].Kind
}

func (f TargetField) Valid() bool {
	_, ok := specByField[f]
	return ok
}
