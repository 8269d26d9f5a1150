package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/service"
)

func sampleCounts() *service.TicketCountReport {
	return &service.TicketCountReport{
		Counts: []domain.ComputedTicketCounts{
			{EventTicketID: "banquet", Name: "Grand Banquet", TotalCapacity: 100, SoldCount: 4, AvailableCount: 96, UtilizationRate: 0.04, Revenue: 60000},
		},
		CachedFields: []domain.Discrepancy{
			{Kind: domain.DiscrepancyCachedCounts, EventTicketID: "banquet", Field: "soldCount"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"excel", FormatExcel, false},
		{"xlsx", FormatExcel, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v, want %v, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, TicketCountsReport(sampleCounts()), FormatJSON))

	var out struct {
		Report string                    `json:"report"`
		Data   service.TicketCountReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "ticket-counts", out.Report)
	require.Len(t, out.Data.Counts, 1)
	assert.Equal(t, domain.Money(60000), out.Data.Counts[0].Revenue)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, TicketCountsReport(sampleCounts()), FormatCSV))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Event Ticket ID,Name,"))
	assert.Equal(t, "banquet,Grand Banquet,100,4,0,0,96,0.04,600.00", lines[1])
}

func TestWriteExcel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, TicketCountsReport(sampleCounts()), FormatExcel))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Ticket Counts", "Cached Fields"}, f.GetSheetList())
	v, err := f.GetCellValue("Ticket Counts", "A2")
	require.NoError(t, err)
	assert.Equal(t, "banquet", v)
	v, err = f.GetCellValue("Cached Fields", "J2")
	require.NoError(t, err)
	assert.Equal(t, "soldCount", v)
}

func TestExporter_Export(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(filepath.Join(dir, "reports"))
	e.now = func() time.Time { return time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC) }

	path, err := e.Export(DuplicatesReport(&domain.DuplicateReport{
		Scanned:    2,
		Duplicates: []domain.DuplicateGroup{{Email: "a@example.com", Strict: true, RegistrationIDs: []string{"r1", "r2"}}},
	}), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reports", "duplicates-20250901T120000Z.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "duplicate,a@example.com,true,2,r1;r2,")
}

func TestWrite_CSVWithoutTables(t *testing.T) {
	err := Write(&bytes.Buffer{}, &Report{Name: "empty"}, FormatCSV)
	assert.Error(t, err)
}
