package report

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/fluxmesh/throttlepipe/pipeline"
)

// WriteWorkbook renders a run's CycleResults as an Excel workbook, one
// "Cycle N" sheet per result plus a summary "Overview" sheet, grounded on
// Hola-to-network_logistics_problem's report-svc excel.go: a bold
// white-on-blue header style via f.NewStyle, cellAddr("A", row) addressing,
// one sheet per report section, DeleteSheet("Sheet1") before writing real
// sheets.
func WriteWorkbook(path string, results []*pipeline.CycleResult) error {
	f := excelize.NewFile()
	defer f.Close()
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("report: build header style: %w", err)
	}

	writeOverviewSheet(f, headerStyle, results)

	for i, res := range results {
		sheetName := fmt.Sprintf("Cycle %d", i+1)
		f.NewSheet(sheetName)
		writeCycleSheet(f, headerStyle, sheetName, res)
	}

	return f.SaveAs(path)
}

func writeOverviewSheet(f *excelize.File, headerStyle int, results []*pipeline.CycleResult) {
	sheetName := "Overview"
	f.NewSheet(sheetName)

	headers := []string{"Cycle", "Resolver Iterations", "Resolver Hit Cap", "Propagator Iterations", "Propagator Hit Cap", "Zero-Capacity Slots"}
	for i, h := range headers {
		f.SetCellValue(sheetName, cellAddr(string(rune('A'+i)), 1), h)
	}
	f.SetCellStyle(sheetName, "A1", "F1", headerStyle)

	for i, res := range results {
		row := i + 2
		f.SetCellValue(sheetName, cellAddr("A", row), i+1)
		f.SetCellValue(sheetName, cellAddr("B", row), res.ResolverIterations)
		f.SetCellValue(sheetName, cellAddr("C", row), res.ResolverHitCap)
		f.SetCellValue(sheetName, cellAddr("D", row), res.PropagatorIterations)
		f.SetCellValue(sheetName, cellAddr("E", row), res.PropagatorHitCap)
		f.SetCellValue(sheetName, cellAddr("F", row), len(res.ZeroCapacitySlots))
	}

	f.SetColWidth(sheetName, "A", "F", 18)
}

func writeCycleSheet(f *excelize.File, headerStyle int, sheetName string, res *pipeline.CycleResult) {
	row := 1
	f.SetCellValue(sheetName, cellAddr("A", row), "Post-Cycle Snapshot")
	f.MergeCell(sheetName, cellAddr("A", row), cellAddr("D", row))
	row += 2

	headers := []string{"Service", "Status", "Action", "Schema", "Incoming", "Allocated", "Current Capacity"}
	for i, h := range headers {
		f.SetCellValue(sheetName, cellAddr(string(rune('A'+i)), row), h)
	}
	f.SetCellStyle(sheetName, cellAddr("A", row), cellAddr("G", row), headerStyle)
	row++

	for _, svc := range res.PostSnapshot.Services {
		for _, schemaName := range sortedKeys(svc.CurrentCapacity) {
			f.SetCellValue(sheetName, cellAddr("A", row), svc.Name)
			f.SetCellValue(sheetName, cellAddr("B", row), svc.Status.String())
			f.SetCellValue(sheetName, cellAddr("C", row), svc.Action.String())
			f.SetCellValue(sheetName, cellAddr("D", row), schemaName)
			f.SetCellValue(sheetName, cellAddr("E", row), svc.Incoming[schemaName])
			f.SetCellValue(sheetName, cellAddr("F", row), svc.Allocated[schemaName])
			f.SetCellValue(sheetName, cellAddr("G", row), svc.CurrentCapacity[schemaName])
			row++
		}
	}
	row++

	if len(res.OverloadPaths) > 0 {
		f.SetCellValue(sheetName, cellAddr("A", row), "Overload Dependency Paths")
		f.SetCellStyle(sheetName, cellAddr("A", row), cellAddr("D", row), headerStyle)
		row++

		pathHeaders := []string{"Service", "Schema", "Ratio", "Upstream Chain"}
		for i, h := range pathHeaders {
			f.SetCellValue(sheetName, cellAddr(string(rune('A'+i)), row), h)
		}
		row++

		for _, p := range res.OverloadPaths {
			f.SetCellValue(sheetName, cellAddr("A", row), p.Service)
			f.SetCellValue(sheetName, cellAddr("B", row), p.Schema)
			f.SetCellValue(sheetName, cellAddr("C", row), p.Ratio)
			f.SetCellValue(sheetName, cellAddr("D", row), fmt.Sprintf("%v", p.Chain))
			row++
		}
	}

	f.SetColWidth(sheetName, "A", "G", 16)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
