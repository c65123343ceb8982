package rosterdb

import (
	"context"
	"fmt"
	"sync"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/xuri/excelize/v2"
)

// XLSXStore keeps the roster in a local workbook with the same layout as the
// spreadsheet: header in row 1, one member per row. The file is saved after
// every update.
type XLSXStore struct {
	path  string
	sheet string

	mu sync.Mutex
}

// NewXLSXStore uses sheet, or the first worksheet when sheet is empty.
func NewXLSXStore(path, sheet string) *XLSXStore {
	return &XLSXStore{path: path, sheet: sheet}
}

func (s *XLSXStore) open() (*excelize.File, string, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open roster workbook: %w", err)
	}
	sheet := s.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	return f, sheet, nil
}

func (s *XLSXStore) Load(ctx context.Context) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, sheet, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	members, _, err := membersFromTable(rows)
	return members, err
}

func (s *XLSXStore) UpdateWatermark(ctx context.Context, row int, source activitydomain.Source, value activitydomain.Watermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	colName, err := WatermarkColumn(source)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, sheet, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: empty sheet", ErrColumnMissing)
	}
	if row < 2 || row > len(rows) {
		return fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	h, err := parseHeader(rows[0])
	if err != nil {
		return err
	}
	col, err := h.column(colName)
	if err != nil {
		return err
	}

	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("invalid cell: %w", err)
	}
	if err := f.SetCellStr(sheet, cell, string(value)); err != nil {
		return fmt.Errorf("failed to set %s: %w", cell, err)
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save roster workbook: %w", err)
	}
	return nil
}

// WriteXLSX creates a workbook at path holding members. It is used to seed a
// local roster and by tests.
func WriteXLSX(path, sheet string, members []Member) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Roster"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	cols := []string{ColName, ColRegNum, ColCFHandle, ColAtCoderHandle, ColVJudgeHandle, ColCodeChefHandle,
		ColLastCFID, ColLastAtID, ColLastVJID, ColLastChefID}
	if err := f.SetSheetRow(sheet, "A1", &cols); err != nil {
		return err
	}
	for i, m := range members {
		values := []string{
			m.Name, m.RegNum,
			m.Handle(activitydomain.SourceCodeforces), m.Handle(activitydomain.SourceAtCoder),
			m.Handle(activitydomain.SourceVJudge), m.Handle(activitydomain.SourceCodeChef),
			string(m.Watermark(activitydomain.SourceCodeforces)), string(m.Watermark(activitydomain.SourceAtCoder)),
			string(m.Watermark(activitydomain.SourceVJudge)), string(m.Watermark(activitydomain.SourceCodeChef)),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
