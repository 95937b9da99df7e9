package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetclean/internal/core"
)

func writeWorkbook(t *testing.T, rows ...[]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	name := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(name, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "contacts.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHeadersCommand(t *testing.T) {
	input := writeWorkbook(t,
		[]any{"Name", "Phone 1 - Value"},
		[]any{"Asha", "9876543210"},
	)

	out, err := execute(t, "headers", input)
	require.NoError(t, err)
	assert.JSONEq(t, `{"headers":["Name","Phone 1 - Value"]}`, out)
}

func TestHeadersCommand_EmptySheet(t *testing.T) {
	_, err := execute(t, "headers", writeWorkbook(t))
	assert.ErrorIs(t, err, core.ErrNoHeader)
}

func TestProcessCommand(t *testing.T) {
	input := writeWorkbook(t,
		[]any{"Name", "Phone 1 - Value", "City"},
		[]any{"Asha", "+91-9876543210", "Pune"},
		[]any{"Ravi", "", "Delhi"},
		[]any{"Asha K", "9876543210", "Mumbai"},
	)
	output := filepath.Join(t.TempDir(), "out.xlsx")

	out, err := execute(t, "process", input, "--field", "Name", "-o", output, "--sheet-name", "Clean")
	require.NoError(t, err)

	var res struct {
		Output string     `json:"output"`
		Stats  core.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, output, res.Output)
	assert.Equal(t, core.Stats{InputRows: 3, OutputRows: 2, DuplicateRows: 1, EmptyPhoneRows: 1}, res.Stats)

	f, err := excelize.OpenFile(output)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Clean")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Name", core.PhoneField},
		{"Asha K", "9876543210"},
		{"Ravi"},
	}, rows)
}

func TestProcessCommand_FieldsJSONAndDefaultOutput(t *testing.T) {
	input := writeWorkbook(t,
		[]any{"Last, First", "Phone 1 - Value"},
		[]any{"Rao, Asha", "9876543210"},
	)

	_, err := execute(t, "process", input, "--fields-json", `["Last, First"]`)
	require.NoError(t, err)

	output := filepath.Join(filepath.Dir(input), "contacts_processed.xlsx")
	_, err = os.Stat(output)
	require.NoError(t, err)

	f, err := excelize.OpenFile(output)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(core.DefaultSheetName)
	require.NoError(t, err)
	assert.Equal(t, []string{"Last, First", core.PhoneField}, rows[0])
}

func TestProcessCommand_InvalidFieldsJSON(t *testing.T) {
	input := writeWorkbook(t, []any{"Phone 1 - Value"})

	_, err := execute(t, "process", input, "--fields-json", "Name")
	assert.ErrorIs(t, err, core.ErrInvalidSelection)
}

func TestProcessCommand_UnreadableInputLeavesNoOutput(t *testing.T) {
	input := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(input, []byte("not a workbook"), 0o644))
	output := filepath.Join(t.TempDir(), "out.xlsx")

	_, err := execute(t, "process", input, "-o", output)
	assert.ErrorIs(t, err, core.ErrParse)

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}
