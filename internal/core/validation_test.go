package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord(row int) CandidateRecord {
	values := make(map[TargetField]string)
	for _, f := range AllFields() {
		values[f] = ""
	}
	values[FieldPolicyNumber] = "POL1"
	values[FieldInsurerName] = "Acme"
	values[FieldPolicyholderName] = "X"
	values[FieldStartDate] = "2024-01-01"
	values[FieldExpiryDate] = "2025-01-01"
	values[FieldPremium] = "100"
	values[FieldCurrency] = "EUR"
	return CandidateRecord{Values: values, SourceRow: row}
}

func withValue(r CandidateRecord, f TargetField, v string) CandidateRecord {
	values := make(map[TargetField]string, len(r.Values))
	for k, val := range r.Values {
		values[k] = val
	}
	values[f] = v
	return CandidateRecord{Values: values, SourceRow: r.SourceRow}
}

func messages(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Message
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		record CandidateRecord
		want   []string
	}{
		{
			name:   "complete record",
			record: validRecord(2),
			want:   []string{},
		},
		{
			name:   "missing premium",
			record: withValue(validRecord(2), FieldPremium, ""),
			want:   []string{"Premium is required"},
		},
		{
			name:   "whitespace counts as empty",
			record: withValue(validRecord(2), FieldCurrency, "   "),
			want:   []string{"Currency is required"},
		},
		{
			name:   "slash date",
			record: withValue(validRecord(2), FieldStartDate, "01/01/2024"),
			want:   []string{"Start Date has invalid date format"},
		},
		{
			name:   "date with time",
			record: withValue(validRecord(2), FieldExpiryDate, "2025-01-01T00:00:00"),
			want:   []string{"Expiry Date has invalid date format"},
		},
		{
			name:   "padded iso date is accepted",
			record: withValue(validRecord(2), FieldStartDate, " 2024-01-01 "),
			want:   []string{},
		},
		{
			name:   "non-numeric premium",
			record: withValue(validRecord(2), FieldPremium, "abc"),
			want:   []string{"Premium must be a number"},
		},
		{
			name:   "decimal premium",
			record: withValue(validRecord(2), FieldPremium, "100.50"),
			want:   []string{},
		},
		{
			name:   "currency symbol rejected",
			record: withValue(validRecord(2), FieldPremium, "€100"),
			want:   []string{"Premium must be a number"},
		},
		{
			name:   "optional commission checked when present",
			record: withValue(validRecord(2), FieldCommissionPercentage, "ten"),
			want:   []string{"Commission Percentage must be a number"},
		},
		{
			name:   "optional fields may be empty",
			record: withValue(validRecord(2), FieldNotes, ""),
			want:   []string{},
		},
		{
			name:   "expiry before start is not checked",
			record: withValue(validRecord(2), FieldExpiryDate, "2020-01-01"),
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := messages(Validate(tt.record))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_CollectsAllErrorsInFieldOrder(t *testing.T) {
	r := CandidateRecord{Values: map[TargetField]string{
		FieldStartDate: "yesterday",
		FieldPremium:   "lots",
	}}

	errs := Validate(r)

	want := []ValidationError{
		{Field: FieldPolicyNumber, Message: "Policy Number is required"},
		{Field: FieldInsurerName, Message: "Insurer Name is required"},
		{Field: FieldPolicyholderName, Message: "Policyholder Name is required"},
		{Field: FieldStartDate, Message: "Start Date has invalid date format"},
		{Field: FieldExpiryDate, Message: "Expiry Date is required"},
		{Field: FieldPremium, Message: "Premium must be a number"},
		{Field: FieldCurrency, Message: "Currency is required"},
	}
	assert.Equal(t, want, errs)
}

func TestValidate_EveryRequiredFieldIsEnforced(t *testing.T) {
	for _, f := range RequiredFields() {
		t.Run(string(f), func(t *testing.T) {
			errs := Validate(withValue(validRecord(2), f, ""))
			require.Len(t, errs, 1)
			assert.Equal(t, f, errs[0].Field)
			assert.Equal(t, f.Label()+" is required", errs[0].Message)
		})
	}
}

func TestValidate_IsPure(t *testing.T) {
	r := withValue(validRecord(7), FieldPremium, "abc")
	before := r.Values[FieldPremium]

	first := Validate(r)
	second := Validate(r)

	assert.Equal(t, first, second)
	assert.Equal(t, before, r.Values[FieldPremium])
	assert.Equal(t, 7, r.SourceRow)
}

func TestPartition(t *testing.T) {
	records := []CandidateRecord{
		validRecord(2),
		withValue(validRecord(3), FieldPremium, ""),
		validRecord(4),
		withValue(validRecord(5), FieldStartDate, "01/01/2024"),
	}

	c := Partition(records)

	assert.Equal(t, len(records), c.Total())
	require.Len(t, c.Valid, 2)
	require.Len(t, c.Invalid, 2)
	assert.Equal(t, 2, c.Valid[0].SourceRow)
	assert.Equal(t, 4, c.Valid[1].SourceRow)
	assert.Equal(t, 3, c.Invalid[0].Record.SourceRow)
	assert.Equal(t, []string{"Premium is required"}, messages(c.Invalid[0].Errors))
	assert.Equal(t, 5, c.Invalid[1].Record.SourceRow)

	for _, inv := range c.Invalid {
		assert.NotEmpty(t, inv.Errors)
	}
}

func TestPartition_Empty(t *testing.T) {
	c := Partition(nil)
	assert.Zero(t, c.Total())
}

func TestIsNumber(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"100", true},
		{"100.50", true},
		{"-3", true},
		{" 42 ", true},
		{"1e3", true},
		{"abc", false},
		{"1,000", false},
		{"", false},
		{"$5", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsNumber(tt.in), "IsNumber(%q)", tt.in)
	}
}

func TestCandidateRecord_Policy(t *testing.T) {
	r := withValue(validRecord(3), FieldCurrency, "eur")
	r = withValue(r, FieldCommissionPercentage, "12.5")

	p, err := r.Policy()
	require.NoError(t, err)

	assert.Equal(t, "POL1", p.PolicyNumber)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, "2024-01-01", p.StartDate.Format(DateLayout))
	assert.Equal(t, "100", p.Premium.String())
	assert.True(t, p.CommissionPercentage.Valid)
	assert.Equal(t, "12.5", p.CommissionPercentage.Decimal.String())
	assert.Equal(t, PolicyStatusDraft, p.Status)
	assert.Equal(t, 3, p.SourceRow)
}

func TestCandidateRecord_PolicyRejectsImpossibleDate(t *testing.T) {
	r := withValue(validRecord(3), FieldStartDate, "2024-02-30")
	require.Empty(t, Validate(r))

	_, err := r.Policy()
	require.Error(t, err)
	assert.Equal(t, "VAL001", MapError(err).Code)
}
