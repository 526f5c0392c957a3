package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/derickschaefer/sonarboard/internal/model"
)

// ErrSerializerUnavailable is returned when no spreadsheet encoder can be used.
var ErrSerializerUnavailable = errors.New("spreadsheet serializer unavailable")

// TabularSerializer encodes a header-plus-rows table as a single-sheet
// binary spreadsheet.
type TabularSerializer interface {
	Serialize(sheet string, table [][]string) ([]byte, error)
}

// Sheet is one named table of a workbook.
type Sheet struct {
	Name  string
	Table [][]string
}

// SheetSerializer encodes several tables as one workbook, in order.
type SheetSerializer interface {
	SerializeSheets(sheets []Sheet) ([]byte, error)
}

// ─── Implementations ──────────────────────────────────────────────────────────

// ExcelSerializer writes .xlsx documents with excelize.
type ExcelSerializer struct {
	// ColWidth is applied to every column; 0 keeps the default width.
	ColWidth float64
}

// Serialize implements TabularSerializer.
func (x ExcelSerializer) Serialize(sheet string, table [][]string) ([]byte, error) {
	return x.SerializeSheets([]Sheet{{Name: sheet, Table: table}})
}

// SerializeSheets implements SheetSerializer. The first row of every sheet
// is styled as a header.
func (x ExcelSerializer) SerializeSheets(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, errors.New("workbook needs at least one sheet")
	}
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	for i, sh := range sheets {
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(0), sh.Name)
		} else {
			_, err = f.NewSheet(sh.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sh.Name, err)
		}
		if err := x.writeSheet(f, sh, bold); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sh.Name, err)
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encoding workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (x ExcelSerializer) writeSheet(f *excelize.File, sh Sheet, headerStyle int) error {
	for i := range sh.Table {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sh.Name, cell, &sh.Table[i]); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	if len(sh.Table) == 0 || len(sh.Table[0]) == 0 {
		return nil
	}

	last, err := excelize.ColumnNumberToName(len(sh.Table[0]))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sh.Name, "A1", last+"1", headerStyle); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if x.ColWidth > 0 {
		if err := f.SetColWidth(sh.Name, "A", last, x.ColWidth); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}
	return nil
}

// Unavailable is the serializer used when spreadsheet encoding is disabled.
type Unavailable struct{}

// Serialize always fails with ErrSerializerUnavailable.
func (Unavailable) Serialize(string, [][]string) ([]byte, error) {
	return nil, ErrSerializerUnavailable
}

// SerializeSheets always fails with ErrSerializerUnavailable.
func (Unavailable) SerializeSheets([]Sheet) ([]byte, error) {
	return nil, ErrSerializerUnavailable
}

// ─── Workbook ─────────────────────────────────────────────────────────────────

// SerializeWorkbook hands the export table to ser.
func SerializeWorkbook(ser TabularSerializer, rows []model.ExportRow) ([]byte, error) {
	if ser == nil {
		return nil, ErrSerializerUnavailable
	}
	b, err := ser.Serialize(sheetName, Table(rows))
	if err != nil {
		return nil, fmt.Errorf("serializing workbook: %w", err)
	}
	return b, nil
}

// ServerExporter renders the spreadsheet on the backend.
type ServerExporter interface {
	DownloadExport(ctx context.Context, component string, metricKeys []string) (*model.Artifact, error)
}

// Exporter builds workbook artifacts, falling back to the backend's
// /api/export/xls when local serialization fails.
type Exporter struct {
	Serializer TabularSerializer
	Server     ServerExporter
	MetricKeys []string
}

// Workbook returns the spreadsheet export of s. The bool result reports
// whether the artifact came from the server fallback.
func (e *Exporter) Workbook(ctx context.Context, s *model.MetricSnapshot) (*model.Artifact, bool, error) {
	if s == nil {
		return nil, false, ErrNoSnapshot
	}
	rows := BuildRows(s)
	b, err := SerializeWorkbook(e.Serializer, rows)
	if err == nil {
		return &model.Artifact{
			Name:     FileName(rows[0].Project, stamp(s), ExtXLSX),
			MIMEType: MIMEXLSX,
			Content:  b,
		}, false, nil
	}
	if e.Server == nil {
		return nil, false, err
	}

	slog.Warn("local workbook export failed, requesting server export", "error", err)
	a, serr := e.Server.DownloadExport(ctx, s.ProjectKey, e.MetricKeys)
	if serr != nil {
		return nil, true, fmt.Errorf("%v; server fallback: %w", err, serr)
	}
	return a, true, nil
}
