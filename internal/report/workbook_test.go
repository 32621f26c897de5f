package report

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/fluxmesh/throttlepipe/pipeline"
)

func TestWriteWorkbook_ProducesOverviewAndCycleSheets(t *testing.T) {
	results := []*pipeline.CycleResult{
		{
			PreSnapshot:          sampleSnapshot(),
			PostSnapshot:         sampleSnapshot(),
			ResolverIterations:   3,
			PropagatorIterations: 2,
			OverloadPaths: []pipeline.OverloadPath{
				{Service: "Processor", Schema: "S1", Ratio: 0.2, Chain: []string{"Source"}},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := WriteWorkbook(path, results); err != nil {
		t.Fatalf("WriteWorkbook returned error: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile returned error: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	wantSheets := []string{"Overview", "Cycle 1"}
	for _, want := range wantSheets {
		found := false
		for _, got := range sheets {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected sheet %q, got sheets %v", want, sheets)
		}
	}

	cell, err := f.GetCellValue("Cycle 1", "A4")
	if err != nil {
		t.Fatalf("GetCellValue returned error: %v", err)
	}
	if cell != "Processor" {
		t.Errorf("Cycle 1!A4 = %q, want %q", cell, "Processor")
	}
}
