package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const bookCSV = "Policy No,Carrier,Client,Inception Date,Expiry,Gross Premium,CCY\n" +
	"POL1,Acme,Jane,2024-01-01,2025-01-01,100,EUR\n" +
	"POL2,Acme,John,2024-01-01,2025-01-01,abc,EUR\n" +
	"POL3,Acme,Mary,2024-01-01,2025-01-01,300,EUR\n"

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTemplateCmd(t *testing.T) {
	out, err := execute(t, "", "template")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "policy_number,"))

	path := filepath.Join(t.TempDir(), "template.xlsx")
	_, err = execute(t, "", "template", "-f", "xlsx", "-o", path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "policy_number", rows[0][0])

	_, err = execute(t, "", "template", "-f", "xlsx")
	assert.Error(t, err)
	_, err = execute(t, "", "template", "-f", "pdf")
	assert.Error(t, err)
}

func TestSuggestCmd(t *testing.T) {
	file := writeFile(t, "book.csv", bookCSV)
	mappingPath := filepath.Join(t.TempDir(), "mapping.yaml")

	out, err := execute(t, "", "suggest", file, "-o", mappingPath)
	require.NoError(t, err)
	assert.Contains(t, out, "policy_number")
	assert.Contains(t, out, "Policy No")
	assert.Contains(t, out, "mapping written to")

	m, err := core.LoadMappingFile(mappingPath)
	require.NoError(t, err)
	assert.Equal(t, "Carrier", m[core.FieldInsurerName])
	assert.Equal(t, "Gross Premium", m[core.FieldPremium])
}

func TestSuggestCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "", "suggest", filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestCheckCmd(t *testing.T) {
	file := writeFile(t, "book.csv", bookCSV)

	out, err := execute(t, "", "check", file)
	require.NoError(t, err)
	assert.Contains(t, out, "3 rows, 2 valid, 1 invalid")
	assert.Contains(t, out, "row 3:")

	_, err = execute(t, "", "check", file, "--strict")
	assert.ErrorIs(t, err, errInvalidRows)
}

func TestCheckCmd_MappingFile(t *testing.T) {
	file := writeFile(t, "book.csv", bookCSV)
	mappingPath := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, core.WriteMappingFile(mappingPath, core.ColumnMapping{
		core.FieldPolicyNumber: "Policy No",
	}))

	out, err := execute(t, "", "check", file, "--mapping", mappingPath)
	require.NoError(t, err)
	assert.Contains(t, out, "0 valid, 3 invalid")
	assert.Contains(t, out, "unmapped required fields:")
}

func TestCheckCmd_EmptyFile(t *testing.T) {
	file := writeFile(t, "empty.csv", "")
	_, err := execute(t, "", "check", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARSE001")
}

func TestRunCmd(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	file := writeFile(t, "book.csv", bookCSV)
	failed := filepath.Join(t.TempDir(), "failed.csv")

	out, err := execute(t, "", "run", file, "--store", "memory", "--yes", "--workers", "2", "--failed-out", failed)
	require.NoError(t, err)
	assert.Contains(t, out, "created 2 draft policies, 1 invalid, 0 failed")
	assert.Contains(t, out, "100%")

	data, err := os.ReadFile(failed)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "3,"))
}

func TestRunCmd_Declined(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	file := writeFile(t, "book.csv", bookCSV)

	out, err := execute(t, "n\n", "run", file, "--store", "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "Create 2 draft policies? [y/N]")
	assert.Contains(t, out, "aborted")
	assert.NotContains(t, out, "created")
}

func TestRunCmd_Confirmed(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	file := writeFile(t, "book.csv", bookCSV)

	out, err := execute(t, "yes\n", "run", file, "--store", "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "created 2 draft policies")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), &out, "ok?"), "%q", tt.input)
	}
}
