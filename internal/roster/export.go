package roster

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/inscribcordoba/attendance/internal/persistence"
)

const (
	reportTitle     = "Planilla Control de Asistencia y Calificación"
	reportSheet     = "Asistencia"
	labelPresent    = "Presente"
	labelAbsent     = "Ausente"
	exportDateStyle = "2/1/2006"
)

// Report is the attendance sheet projection of one course.
type Report struct {
	FileName string
	Sheet    string
	Title    string
	Header   []HeaderField
	Columns  []string
	Rows     [][]any
	Widths   []float64
}

// HeaderField is one labelled value of the report header block.
type HeaderField struct {
	Label string
	Value any
}

// BuildReport projects course and participants into the export layout.
func BuildReport(course persistence.Course, participants []persistence.Participant) Report {
	var start, end string
	if len(course.Dates) > 0 {
		start = formatDate(course.Dates[0])
		end = formatDate(course.Dates[len(course.Dates)-1])
	}

	r := Report{
		FileName: fmt.Sprintf("Asistencia - %s.xlsx", course.Name),
		Sheet:    reportSheet,
		Title:    reportTitle,
		Header: []HeaderField{
			{"NRO DE EVENTO:", course.EventNumber},
			{"CAPACITACION:", course.Name},
			{"DOCENTE/S:", course.Instructors},
			{"FECHA DE INICIO:", start},
			{"FECHA DE FIN:", end},
		},
		Columns: []string{"N°", "CUIL", "APELLIDO Y NOMBRE", "REPARTICION", "LOCALIDAD", "TELEFONO", "CARGO"},
		Widths:  []float64{4, 15, 30, 40, 15, 15, 40},
	}
	for _, d := range course.Dates {
		r.Columns = append(r.Columns, formatDate(d))
		r.Widths = append(r.Widths, 12)
	}
	r.Columns = append(r.Columns, "NOTA")
	r.Widths = append(r.Widths, 8)

	for i, p := range participants {
		row := []any{i + 1, p.IdentityNumber, p.Name, p.Affiliation, p.Locality, p.Phone, p.Role}
		for _, d := range course.Dates {
			if p.IsPresent(d) {
				row = append(row, labelPresent)
			} else {
				row = append(row, labelAbsent)
			}
		}
		row = append(row, p.Note)
		r.Rows = append(r.Rows, row)
	}
	return r
}

func formatDate(d persistence.Date) string {
	t := d.Time()
	if t.IsZero() {
		return string(d)
	}
	return t.Format(exportDateStyle)
}

// HeaderRow is the 1-based row index of the column header line.
func (r Report) HeaderRow() int {
	// title, blank, header fields, blank
	return 2 + len(r.Header) + 2
}

// WriteXLSX renders the report as an xlsx workbook.
func (r Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), r.Sheet); err != nil {
		return fmt.Errorf("roster: name sheet: %w", err)
	}

	if err := f.SetCellValue(r.Sheet, "A1", r.Title); err != nil {
		return err
	}
	if err := f.MergeCell(r.Sheet, "A1", "I1"); err != nil {
		return fmt.Errorf("roster: merge title: %w", err)
	}

	for i, field := range r.Header {
		row := 3 + i
		if err := f.SetCellValue(r.Sheet, fmt.Sprintf("A%d", row), field.Label); err != nil {
			return err
		}
		if err := f.SetCellValue(r.Sheet, fmt.Sprintf("C%d", row), field.Value); err != nil {
			return err
		}
	}

	headerRow := r.HeaderRow()
	if err := writeRow(f, r.Sheet, headerRow, stringsToAny(r.Columns)); err != nil {
		return err
	}
	for i, row := range r.Rows {
		if err := writeRow(f, r.Sheet, headerRow+1+i, row); err != nil {
			return err
		}
	}

	for i, width := range r.Widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(r.Sheet, col, col, width); err != nil {
			return fmt.Errorf("roster: set width %s: %w", col, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("roster: write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("roster: write row %d: %w", row, err)
	}
	return nil
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
