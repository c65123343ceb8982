package rosterdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
)

// Sentinel errors for the roster stores.
var (
	// ErrColumnMissing indicates the roster header lacks a required column.
	ErrColumnMissing = errors.New("roster column missing")

	// ErrRowNotFound indicates an update targeted a row that does not exist.
	ErrRowNotFound = errors.New("roster row not found")

	// ErrNoCredentials indicates no service account key was configured.
	ErrNoCredentials = errors.New("no roster credentials found")
)

// Roster column names.
const (
	ColName           = "name"
	ColRegNum         = "reg_num"
	ColCFHandle       = "cf_handle"
	ColAtCoderHandle  = "atcoder_handle"
	ColVJudgeHandle   = "vjudge_handle"
	ColCodeChefHandle = "codechef_handle"
	ColLastCFID       = "last_cf_id"
	ColLastAtID       = "last_at_id"
	ColLastVJID       = "last_vj_id"
	ColLastChefID     = "last_chef_id"
)

var handleColumns = map[activitydomain.Source]string{
	activitydomain.SourceCodeforces: ColCFHandle,
	activitydomain.SourceAtCoder:    ColAtCoderHandle,
	activitydomain.SourceVJudge:     ColVJudgeHandle,
	activitydomain.SourceCodeChef:   ColCodeChefHandle,
}

var watermarkColumns = map[activitydomain.Source]string{
	activitydomain.SourceCodeforces: ColLastCFID,
	activitydomain.SourceAtCoder:    ColLastAtID,
	activitydomain.SourceVJudge:     ColLastVJID,
	activitydomain.SourceCodeChef:   ColLastChefID,
}

// WatermarkColumn returns the column holding source's watermark.
func WatermarkColumn(source activitydomain.Source) (string, error) {
	col, ok := watermarkColumns[source]
	if !ok {
		return "", fmt.Errorf("unknown source %q", source)
	}
	return col, nil
}

// Member is one roster entry. Row addresses the entry for watermark updates:
// the 1-based sheet row for spreadsheet stores, the primary key for Postgres.
type Member struct {
	Row        int
	Name       string
	RegNum     string
	Handles    map[activitydomain.Source]string
	Watermarks map[activitydomain.Source]activitydomain.Watermark
}

// Handle returns the member's handle on source.
func (m Member) Handle(source activitydomain.Source) string {
	return m.Handles[source]
}

// Watermark returns the stored watermark for source.
func (m Member) Watermark(source activitydomain.Source) activitydomain.Watermark {
	return m.Watermarks[source]
}

// Store reads the roster once per run and performs single-cell watermark
// updates.
type Store interface {
	// Load returns every member in roster order.
	Load(ctx context.Context) ([]Member, error)

	// UpdateWatermark persists one watermark for the member at row.
	UpdateWatermark(ctx context.Context, row int, source activitydomain.Source, value activitydomain.Watermark) error
}

// header maps lower-cased column names to 0-based indexes.
type header map[string]int

func parseHeader(cells []string) (header, error) {
	h := make(header, len(cells))
	for i, c := range cells {
		name := strings.ToLower(strings.TrimSpace(c))
		if name == "" {
			continue
		}
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	for _, col := range []string{ColName, ColLastCFID, ColLastAtID, ColLastVJID, ColLastChefID} {
		if _, ok := h[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrColumnMissing, col)
		}
	}
	return h, nil
}

// column returns the 1-based column number of name.
func (h header) column(name string) (int, error) {
	i, ok := h[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrColumnMissing, name)
	}
	return i + 1, nil
}

func (h header) cell(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// membersFromTable converts a header row plus data rows into members. Row
// numbers start at 2 since row 1 is the header. Blank rows are skipped.
func membersFromTable(rows [][]string) ([]Member, header, error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: empty sheet", ErrColumnMissing)
	}
	h, err := parseHeader(rows[0])
	if err != nil {
		return nil, nil, err
	}

	members := make([]Member, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		m := Member{
			Row:        i + 2,
			Name:       h.cell(row, ColName),
			RegNum:     h.cell(row, ColRegNum),
			Handles:    make(map[activitydomain.Source]string, len(handleColumns)),
			Watermarks: make(map[activitydomain.Source]activitydomain.Watermark, len(watermarkColumns)),
		}
		for source, col := range handleColumns {
			m.Handles[source] = h.cell(row, col)
		}
		for source, col := range watermarkColumns {
			m.Watermarks[source] = activitydomain.Watermark(h.cell(row, col))
		}
		members = append(members, m)
	}
	return members, h, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
