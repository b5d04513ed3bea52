package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/aldas/go-canxl-regs"
	"github.com/aldas/go-canxl-regs/regmap"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	formatText    = "text"
	formatJSON    = "json"
	formatMsgpack = "msgpack"
	formatCSV     = "csv"
)

var severityColors = map[canxl.Severity]*color.Color{
	canxl.SeverityInfoVerbose:     color.New(color.Faint),
	canxl.SeverityInfoHighlighted: color.New(color.Bold),
	canxl.SeverityWarning:         color.New(color.FgYellow),
	canxl.SeverityError:           color.New(color.FgRed, color.Bold),
	canxl.SeverityRecommendation:  color.New(color.FgCyan),
	canxl.SeverityCalculation:     color.New(color.FgGreen),
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatMsgpack, formatCSV:
		return nil
	}
	return fmt.Errorf("unknown output format: `%v`", format)
}

// formatFinding returns finding as single line with severity colored.
func formatFinding(f canxl.Finding) string {
	line := f.String()
	if c, ok := severityColors[f.Severity]; ok {
		return c.Sprint(line)
	}
	return line
}

func writeFindings(w io.Writer, findings canxl.Findings) {
	for _, f := range findings {
		fmt.Fprintln(w, formatFinding(f))
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return headerStyle
			}
			return cellStyle
		})
}

// registerRows returns one table row per decoded field. Register columns are filled only for first field row.
func registerRows(report canxl.Report) [][]string {
	rows := make([][]string, 0, len(report.Registers)*4)
	for _, r := range report.Registers {
		regCols := []string{r.Name, fmt.Sprintf("0x%08X", r.Address), fmt.Sprintf("0x%08X", r.Value)}
		if len(r.Fields) == 0 {
			rows = append(rows, append(regCols, "", "", "", ""))
			continue
		}
		for i, f := range r.Fields {
			cols := []string{"", "", ""}
			if i == 0 {
				cols = regCols
			}
			rows = append(rows, append(cols, f.Name, f.Range.String(), strconv.FormatUint(uint64(f.Value), 10), f.Enum))
		}
	}
	return rows
}

func writeReport(w io.Writer, format string, report canxl.Report, binary bool) error {
	switch format {
	case formatJSON:
		return json.NewEncoder(w).Encode(report)
	case formatMsgpack:
		return msgpack.NewEncoder(w).Encode(report)
	case formatCSV:
		return writeReportCSV(w, report)
	}

	fmt.Fprintf(w, "# %v/%v: %d registers\n", report.Variant, report.Block, len(report.Registers))
	if binary {
		for _, r := range report.Registers {
			fmt.Fprint(w, regmap.FormatRegister(r))
		}
	} else {
		t := newTable("REGISTER", "ADDRESS", "VALUE", "FIELD", "BITS", "FIELD VALUE", "ENUM").
			Rows(registerRows(report)...)
		fmt.Fprintln(w, t.Render())
	}
	writeFindings(w, report.Findings)
	return nil
}

func writeReportCSV(w io.Writer, report canxl.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"variant", "block", "register", "address", "value", "field", "bits", "field_value", "enum"}); err != nil {
		return fmt.Errorf("csv failed to write header: %w", err)
	}
	for _, r := range report.Registers {
		for _, f := range r.Fields {
			row := []string{
				string(report.Variant), string(report.Block),
				r.Name, fmt.Sprintf("0x%08X", r.Address), fmt.Sprintf("0x%08X", r.Value),
				f.Name, f.Range.String(), strconv.FormatUint(uint64(f.Value), 10), f.Enum,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("csv failed to write row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
