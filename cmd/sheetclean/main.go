// Command sheetclean runs the spreadsheet cleanup offline: it prints the
// header row of a workbook or writes the deduplicated workbook to disk.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetclean/internal/core"
	"github.com/JonMunkholm/sheetclean/internal/logging"
	"github.com/JonMunkholm/sheetclean/internal/sheet"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "sheetclean",
		Short:         "Select columns and deduplicate contact spreadsheets by phone number",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), logLevel, "text"))
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(newHeadersCmd(), newProcessCmd())
	return root
}

func newHeadersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "headers <input.xlsx>",
		Short: "Print the header row of the first sheet as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			headers, err := sheet.ReadHeaders(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return writeJSON(cmd.OutOrStdout(), map[string][]string{"headers": headers})
		},
	}
}

type processFlags struct {
	fields     []string
	fieldsJSON string
	output     string
	keepFalsy  bool
	sheetName  string
}

func newProcessCmd() *cobra.Command {
	var flags processFlags

	cmd := &cobra.Command{
		Use:   "process <input.xlsx>",
		Short: "Keep the selected columns plus the phone column and drop duplicate phones",
		Long: `process reads the first sheet of input.xlsx, keeps the selected columns,
normalizes "Phone 1 - Value" and keeps one row per phone value.

Columns are chosen with --field (repeatable, comma separated) or with
--fields-json for names that contain commas. Stats are printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringSliceVarP(&flags.fields, "field", "f", nil, "Column to keep (repeatable)")
	cmd.Flags().StringVar(&flags.fieldsJSON, "fields-json", "", `Columns to keep as a JSON array, e.g. '["Name","City"]'`)
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file (default: <input>_processed.xlsx)")
	cmd.Flags().BoolVar(&flags.keepFalsy, "keep-falsy", false, "Keep selected values that are 0, false or empty")
	cmd.Flags().StringVar(&flags.sheetName, "sheet-name", core.DefaultSheetName, "Sheet name of the output workbook")
	cmd.MarkFlagsMutuallyExclusive("field", "fields-json")

	return cmd
}

func runProcess(cmd *cobra.Command, input string, flags processFlags) (err error) {
	sel := core.Selection(flags.fields)
	if flags.fieldsJSON != "" {
		if sel, err = core.ParseSelection(flags.fieldsJSON); err != nil {
			return err
		}
	}
	if sel == nil {
		sel = core.Selection{}
	}

	in, err := os.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()

	records, err := sheet.ReadRecords(in)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}

	result := core.Transform(records, sel, core.TransformOptions{KeepFalsy: flags.keepFalsy})

	output := flags.output
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + "_processed" + core.OutputExt
	}

	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(output)
		}
	}()

	if err := sheet.Write(out, flags.sheetName, result.Rows); err != nil {
		return err
	}

	slog.Info("spreadsheet processed", "input", input, "output", output, "rows", result.Stats.OutputRows)

	return writeJSON(cmd.OutOrStdout(), struct {
		Output string     `json:"output"`
		Stats  core.Stats `json:"stats"`
	}{output, result.Stats})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
