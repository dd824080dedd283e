// Package roster converts course rosters between spreadsheet or text form
// and the persisted course model.
package roster

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/inscribcordoba/attendance/internal/persistence"
)

var (
	// ErrMissingEventNumber is returned when C4 does not start with a number.
	ErrMissingEventNumber = errors.New("roster: missing event number")
	// ErrInvalidDate is returned when a session date cell cannot be read.
	ErrInvalidDate = errors.New("roster: invalid session date")
)

// Cell is the raw content of one spreadsheet cell.
type Cell struct {
	Text     string
	Number   float64
	IsNumber bool
}

// Empty reports whether the cell holds nothing.
func (c Cell) Empty() bool {
	return !c.IsNumber && strings.TrimSpace(c.Text) == ""
}

// Sheet gives read access to cells by A1 reference.
type Sheet interface {
	Cell(ref string) (Cell, error)
}

// Fixed layout of the course import sheet.
const (
	eventNumberCell = "C4"
	courseNameCell  = "C5"
	instructorsCell = "C6"
	dateRow         = 9
	firstDateColumn = 8  // H
	lastDateColumn  = 14 // N
	firstRosterRow  = 10
)

// ImportedCourse is the course read from an import sheet, before ids are assigned.
type ImportedCourse struct {
	EventNumber  int
	Name         string
	Instructors  string
	Dates        []persistence.Date
	Participants []ImportedParticipant
}

// ImportedParticipant is one roster row of an import sheet.
type ImportedParticipant struct {
	Row            int
	RawIdentity    string
	IdentityNumber string
	Name           string
	Affiliation    string
	Locality       string
	Phone          string
	Role           string
	// ValidIdentity is false when the CUIL column does not normalize to 11 digits.
	ValidIdentity bool
}

// ParseSheet reads the course header, session dates and roster rows.
func ParseSheet(sheet Sheet) (ImportedCourse, error) {
	var course ImportedCourse

	eventCell, err := sheet.Cell(eventNumberCell)
	if err != nil {
		return course, err
	}
	number, ok := leadingInt(eventCell)
	if !ok {
		return course, ErrMissingEventNumber
	}
	course.EventNumber = number

	if course.Name, err = text(sheet, courseNameCell); err != nil {
		return course, err
	}
	if course.Instructors, err = text(sheet, instructorsCell); err != nil {
		return course, err
	}

	for col := firstDateColumn; col <= lastDateColumn; col++ {
		ref, _ := excelize.CoordinatesToCellName(col, dateRow)
		cell, err := sheet.Cell(ref)
		if err != nil {
			return course, err
		}
		if cell.Empty() || strings.EqualFold(strings.TrimSpace(cell.Text), "NOTA") {
			break
		}
		date, isDate, err := cellDate(cell)
		if err != nil {
			return course, fmt.Errorf("%w: celda %s: %v", ErrInvalidDate, ref, err)
		}
		if !isDate {
			break
		}
		course.Dates = append(course.Dates, date)
	}

	for row := firstRosterRow; ; row++ {
		raw, err := text(sheet, fmt.Sprintf("B%d", row))
		if err != nil {
			return course, err
		}
		if raw == "" {
			break
		}
		p := ImportedParticipant{Row: row, RawIdentity: raw}
		p.IdentityNumber, p.ValidIdentity = NormalizeIdentity(raw)
		fields := []*string{&p.Name, &p.Affiliation, &p.Locality, &p.Phone, &p.Role}
		for i, column := range []string{"C", "D", "E", "F", "G"} {
			value, err := text(sheet, fmt.Sprintf("%s%d", column, row))
			if err != nil {
				return course, err
			}
			*fields[i] = value
		}
		course.Participants = append(course.Participants, p)
	}

	return course, nil
}

func text(sheet Sheet, ref string) (string, error) {
	cell, err := sheet.Cell(ref)
	if err != nil {
		return "", err
	}
	if cell.IsNumber && strings.TrimSpace(cell.Text) == "" {
		return strconv.FormatFloat(cell.Number, 'f', -1, 64), nil
	}
	return strings.TrimSpace(cell.Text), nil
}

// leadingInt reads an integer the way a lenient parser would: a numeric cell
// is truncated, a text cell contributes its leading digits.
func leadingInt(cell Cell) (int, bool) {
	if cell.IsNumber {
		n := int(math.Trunc(cell.Number))
		return n, n > 0
	}
	s := strings.TrimSpace(cell.Text)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Text dates that do not start with the year are read month first.
var textDateLayouts = []string{
	"2006-01-02",
	"2006/1/2",
	"1/2/2006",
	"1-2-2006",
}

// cellDate converts a date header cell. isDate is false for cells that are
// neither numeric nor contain a date separator.
func cellDate(cell Cell) (date persistence.Date, isDate bool, err error) {
	if cell.IsNumber {
		t, err := excelize.ExcelDateToTime(cell.Number, false)
		if err != nil {
			return "", true, err
		}
		return persistence.DateOf(t), true, nil
	}
	s := strings.TrimSpace(cell.Text)
	if !strings.ContainsAny(s, "/-") {
		return "", false, nil
	}
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}
	for _, layout := range textDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return persistence.DateOf(t), true, nil
		}
	}
	return "", true, fmt.Errorf("unrecognized date %q", cell.Text)
}

// Workbook is a Sheet backed by the first worksheet of an xlsx file.
type Workbook struct {
	file  *excelize.File
	sheet string
}

// OpenWorkbook reads an xlsx document from r.
func OpenWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("roster: open workbook: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, errors.New("roster: workbook has no sheets")
	}
	return &Workbook{file: f, sheet: sheets[0]}, nil
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// Cell returns the raw cell value. Numbers are reported unformatted so date
// serials survive.
func (w *Workbook) Cell(ref string) (Cell, error) {
	value, err := w.file.GetCellValue(w.sheet, ref, excelize.Options{RawCellValue: true})
	if err != nil {
		return Cell{}, fmt.Errorf("roster: read %s: %w", ref, err)
	}
	cellType, err := w.file.GetCellType(w.sheet, ref)
	if err != nil {
		return Cell{}, fmt.Errorf("roster: read %s: %w", ref, err)
	}
	switch cellType {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeDate, excelize.CellTypeError, excelize.CellTypeBool:
		return Cell{Text: value}, nil
	}
	if number, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return Cell{Number: number, IsNumber: true}, nil
	}
	return Cell{Text: value}, nil
}
