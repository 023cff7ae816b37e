package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the only accepted date format.
const DateLayout = "2006-01-02"

// PolicyStatusDraft is the status of every imported policy.
const PolicyStatusDraft = "draft"

// Policy is a fully typed record handed to a PolicyCreator.
type Policy struct {
	PolicyNumber         string
	PolicyType           string
	InsurerName          string
	ProductName          string
	ProductCode          string
	PolicyholderName     string
	InsuredName          string
	StartDate            time.Time
	ExpiryDate           time.Time
	Premium              decimal.Decimal
	Currency             string
	PaymentFrequency     string
	CommissionPercentage decimal.NullDecimal
	Notes                string
	Status               string
	SourceRow            int
}

// Policy converts the record to a typed Policy. It fails when a value that
// passed the format checks still cannot be converted, such as 2024-02-30.
func (r CandidateRecord) Policy() (Policy, error) {
	v := func(f TargetField) string { return strings.TrimSpace(r.Values[f]) }

	p := Policy{
		PolicyNumber:     v(FieldPolicyNumber),
		PolicyType:       v(FieldPolicyType),
		InsurerName:      v(FieldInsurerName),
		ProductName:      v(FieldProductName),
		ProductCode:      v(FieldProductCode),
		PolicyholderName: v(FieldPolicyholderName),
		InsuredName:      v(FieldInsuredName),
		Currency:         strings.ToUpper(v(FieldCurrency)),
		PaymentFrequency: v(FieldPaymentFrequency),
		Notes:            v(FieldNotes),
		Status:           PolicyStatusDraft,
		SourceRow:        r.SourceRow,
	}

	var err error
	if p.StartDate, err = parseDate(FieldStartDate, v(FieldStartDate)); err != nil {
		return Policy{}, err
	}
	if p.ExpiryDate, err = parseDate(FieldExpiryDate, v(FieldExpiryDate)); err != nil {
		return Policy{}, err
	}
	if p.Premium, err = parseDecimal(FieldPremium, v(FieldPremium)); err != nil {
		return Policy{}, err
	}
	if raw := v(FieldCommissionPercentage); raw != "" {
		d, err := parseDecimal(FieldCommissionPercentage, raw)
		if err != nil {
			return Policy{}, err
		}
		p.CommissionPercentage = decimal.NewNullDecimal(d)
	}

	return p, nil
}

func parseDate(f TargetField, s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid date %q", f, s)
	}
	return t, nil
}

func parseDecimal(f TargetField, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: invalid number %q", f, s)
	}
	return d, nil
}
