package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Format is an export file format
type Format string

const (
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
)

// ParseFormat accepts json, csv, xlsx and excel
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Table is one sheet of a report
type Table struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

// Report is what gets exported: the JSON payload plus its tabular views
type Report struct {
	Name    string
	Payload interface{}
	Tables  []Table
}

// Exporter writes reports to a directory
type Exporter struct {
	dir string
	now func() time.Time
}

// NewExporter creates an exporter writing under dir
func NewExporter(dir string) *Exporter {
	if dir == "" {
		dir = "."
	}
	return &Exporter{dir: dir, now: time.Now}
}

// Export writes the report as <name>-<timestamp>.<ext> and returns the path.
// CSV exports write the first table only.
func (e *Exporter) Export(r *Report, format Format) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	name := fmt.Sprintf("%s-%s.%s", r.Name, e.now().UTC().Format("20060102T150405Z"), format)
	path := filepath.Join(e.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := Write(file, r, format); err != nil {
		return "", err
	}
	return path, nil
}

// Write renders the report to w
func Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, r.Name, r.Payload)
	case FormatCSV:
		if len(r.Tables) == 0 {
			return fmt.Errorf("report %s has no tabular view", r.Name)
		}
		return WriteCSV(w, r.Tables[0])
	case FormatExcel:
		return WriteExcel(w, r.Tables...)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// WriteJSON writes an indented envelope with the export time
func WriteJSON(w io.Writer, name string, payload interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	result := map[string]interface{}{
		"report":     name,
		"exportedAt": time.Now().UTC().Format(time.RFC3339),
		"data":       payload,
	}
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// WriteCSV writes one table with a header row
func WriteCSV(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.Headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, row := range t.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = CellString(v)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteExcel writes each table to its own sheet
func WriteExcel(w io.Writer, tables ...Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("nothing to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, t := range tables {
		sheet := sheetName(t.Name, i)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}

		for col, header := range t.Headers {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			f.SetCellValue(sheet, cell, header)
			f.SetCellStyle(sheet, cell, cell, headerStyle)
		}
		for r, row := range t.Rows {
			for col, v := range row {
				cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
				f.SetCellValue(sheet, cell, v)
			}
		}
		for col := range t.Headers {
			name, _ := excelize.ColumnNumberToName(col + 1)
			f.SetColWidth(sheet, name, name, 18)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

// sheetName trims to Excel's 31 character limit
func sheetName(name string, i int) string {
	if name == "" {
		name = fmt.Sprintf("Sheet%d", i+1)
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

// CellString renders one table cell the way CSV exports do
func CellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.2f", val)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}
