// Package report renders run results for humans: CSV and XLSX summary
// tables plus indented JSON for command output.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/subliminal-labs/roleprobe/internal/model"
)

// summaryColumns defines the ordered summary table columns.
var summaryColumns = []string{
	"mode",
	"condition",
	"turns",
	"out_path",
	"samples",
	"skipped",
	"detected",
	"detect_pct",
	"mean_target_prob",
	"hallucination_rate",
}

// buildSummaryRow renders one cell as a table row. Rate columns are empty
// for cells with no data, and hallucination_rate is empty for restricted
// cells where it is undefined.
func buildSummaryRow(cell model.CellSummary) []string {
	row := []string{
		string(cell.Mode),
		string(cell.Condition),
		fmt.Sprintf("%d", cell.Turns),
		cell.OutPath,
		fmt.Sprintf("%d", cell.Count),
		fmt.Sprintf("%d", cell.Skipped),
		fmt.Sprintf("%d", cell.Detected),
		"",
		"",
		"",
	}
	if cell.NoData {
		return row
	}
	row[7] = fmt.Sprintf("%.2f", cell.DetectionRate*100)
	row[8] = fmt.Sprintf("%.6f", cell.MeanTargetProb)
	if cell.HallucinationRate != nil {
		row[9] = fmt.Sprintf("%.4f", *cell.HallucinationRate)
	}
	return row
}

// WriteCSV writes the per-cell summary table as CSV.
func WriteCSV(w io.Writer, cells []model.CellSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryColumns); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, cell := range cells {
		if err := cw.Write(buildSummaryRow(cell)); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// WriteCSVFile writes the summary table to a file.
func WriteCSVFile(path string, cells []model.CellSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "report: create csv file")
	}
	defer f.Close()
	return WriteCSV(f, cells)
}

// WriteXLSXFile writes a workbook with the summary table on one sheet and
// run metadata on another.
func WriteXLSXFile(path string, run *model.Run) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	header := sheet.AddRow()
	for _, col := range summaryColumns {
		header.AddCell().SetString(col)
	}
	if run.Result != nil {
		for _, cell := range run.Result.Cells {
			row := sheet.AddRow()
			for _, v := range buildSummaryRow(cell) {
				row.AddCell().SetString(v)
			}
		}
	}

	info, err := f.AddSheet("run")
	if err != nil {
		return eris.Wrap(err, "report: add run sheet")
	}
	addInfoRow(info, "run_id", run.ID)
	addInfoRow(info, "status", string(run.Status))
	addInfoRow(info, "concept", run.Config.Concept)
	addInfoRow(info, "model", run.Config.Model)
	addInfoRow(info, "seed", fmt.Sprintf("%d", run.Config.Seed))
	addInfoRow(info, "created_at", run.CreatedAt.Format(time.RFC3339))
	addInfoRow(info, "updated_at", run.UpdatedAt.Format(time.RFC3339))
	if run.Result != nil {
		addInfoRow(info, "records", fmt.Sprintf("%d", run.Result.Records))
		addInfoRow(info, "evaluated", fmt.Sprintf("%d", run.Result.Evaluated))
		addInfoRow(info, "skipped", fmt.Sprintf("%d", run.Result.Skipped))
		addInfoRow(info, "duration_ms", fmt.Sprintf("%d", run.Result.DurationMS))
	}

	return eris.Wrap(f.Save(path), "report: save xlsx")
}

func addInfoRow(sheet *xlsx.Sheet, key, value string) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetString(value)
}

// WriteJSON writes any result value as indented JSON, the house format for
// command output.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "report: encode json")
}
