package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"contact-insights-go/internal/types"
)

// PersonRows flattens persons into field rows for WriteSheet.
func PersonRows(persons []types.Person) [][]types.Field {
	rows := make([][]types.Field, len(persons))
	for i, p := range persons {
		rows[i] = p.Fields()
	}
	return rows
}

// WriteSheet stores rows as a header + data table on sheet of target.xlsx.
// Columns are the union of row keys in order of first appearance. In Append
// mode other sheets are kept and a sheet with the same name is replaced.
func (w *Writer) WriteSheet(target, sheet string, rows [][]types.Field, mode Mode) (string, error) {
	path, err := w.path(target + ".xlsx")
	if err != nil {
		return "", err
	}

	f, err := openWorkbook(path, sheet, mode)
	if err != nil {
		return "", err
	}
	defer f.Close()

	columns, index := columnsOf(rows)
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for r, row := range rows {
		values := make([]any, len(columns))
		for _, fld := range row {
			values[index[fld.Key]] = cellValue(fld.Value)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return "", err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return "", fmt.Errorf("write row %d: %w", r, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	w.metrics.CountReport("xlsx")
	return path, nil
}

func openWorkbook(path, sheet string, mode Mode) (*excelize.File, error) {
	if mode == Append {
		if _, err := os.Stat(path); err == nil {
			f, err := excelize.OpenFile(path)
			if err != nil {
				return nil, fmt.Errorf("open file: %w", err)
			}
			if err := replaceSheet(f, sheet); err != nil {
				return nil, errors.Join(err, f.Close())
			}
			return f, nil
		}
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, errors.Join(fmt.Errorf("name sheet %q: %w", sheet, err), f.Close())
	}
	return f, nil
}

// replaceSheet leaves f with an empty sheet called name.
func replaceSheet(f *excelize.File, name string) error {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx < 0 {
		_, err := f.NewSheet(name)
		return err
	}
	tmp := name + "~"
	if _, err := f.NewSheet(tmp); err != nil {
		return err
	}
	if err := f.DeleteSheet(name); err != nil {
		return err
	}
	return f.SetSheetName(tmp, name)
}

func columnsOf(rows [][]types.Field) ([]string, map[string]int) {
	var columns []string
	index := map[string]int{}
	for _, row := range rows {
		for _, fld := range row {
			if _, ok := index[fld.Key]; !ok {
				index[fld.Key] = len(columns)
				columns = append(columns, fld.Key)
			}
		}
	}
	return columns, index
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int64, float64:
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSpace(string(b))
	}
}
