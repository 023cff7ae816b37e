package core

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// TemplateSheetName is the sheet name of the spreadsheet template.
const TemplateSheetName = "Policies"

// templateRows returns the canonical header row and two example rows.
func templateRows() [][]string {
	header := make([]string, len(fieldSpecs))
	first := make([]string, len(fieldSpecs))
	second := make([]string, len(fieldSpecs))

	for i, s := range fieldSpecs {
		header[i] = string(s.Field)
		first[i] = s.Example
	}
	copy(second, first)

	set := func(f TargetField, v string) {
		for i, s := range fieldSpecs {
			if s.Field == f {
				second[i] = v
			}
		}
	}
	set(FieldPolicyNumber, "POL-2024-0002")
	set(FieldPolicyType, "motor")
	set(FieldInsurerName, "Northwind Mutual")
	set(FieldProductName, "Motor Comprehensive")
	set(FieldProductCode, "MC-10")
	set(FieldPolicyholderName, "Blue Harbor Ltd")
	set(FieldInsuredName, "")
	set(FieldStartDate, "2024-03-15")
	set(FieldExpiryDate, "2025-03-14")
	set(FieldPremium, "840.50")
	set(FieldPaymentFrequency, "quarterly")
	set(FieldCommissionPercentage, "")
	set(FieldNotes, "")

	return [][]string{header, first, second}
}

// TemplateCSV writes the import template as CSV.
func TemplateCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(templateRows()); err != nil {
		return fmt.Errorf("write csv template: %w", err)
	}
	return nil
}

// TemplateXLSX writes the import template as an .xlsx workbook. Every cell
// is stored as text so dates keep the YYYY-MM-DD form.
func TemplateXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", TemplateSheetName); err != nil {
		return fmt.Errorf("xlsx template: %w", err)
	}

	for r, row := range templateRows() {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("xlsx template: %w", err)
			}
			if err := f.SetCellStr(TemplateSheetName, cell, v); err != nil {
				return fmt.Errorf("xlsx template: %w", err)
			}
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx template: %w", err)
	}
	if err := f.SetRowStyle(TemplateSheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("xlsx template: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx template: %w", err)
	}
	return nil
}
