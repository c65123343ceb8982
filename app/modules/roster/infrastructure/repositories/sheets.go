package rosterdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability/attr"
	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// SpreadsheetID extracts the document id from a Google Sheets URL. A bare id
// is returned unchanged.
func SpreadsheetID(sheetURL string) (string, error) {
	sheetURL = strings.TrimSpace(sheetURL)
	if m := spreadsheetIDPattern.FindStringSubmatch(sheetURL); m != nil {
		return m[1], nil
	}
	if sheetURL != "" && !strings.ContainsAny(sheetURL, "/:?") {
		return sheetURL, nil
	}
	return "", fmt.Errorf("cannot find spreadsheet id in %q", sheetURL)
}

// SheetsStore keeps the roster in one worksheet of a Google spreadsheet,
// addressed through the Sheets v4 values API.
type SheetsStore struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger

	mu     sync.Mutex
	header header
}

// NewSheetsStore authenticates with a service account key, read from
// cfg.CredentialsFile when it exists and from cfg.CredentialsJSON otherwise.
func NewSheetsStore(ctx context.Context, cfg config.RosterConfig, logger *slog.Logger) (*SheetsStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	key, err := credentials(cfg, logger)
	if err != nil {
		return nil, err
	}
	creds, err := google.CredentialsFromJSON(ctx, key, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	id, err := SpreadsheetID(cfg.SheetURL)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithCredentials(creds)}
	if cfg.SheetsEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.SheetsEndpoint))
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return NewSheetsStoreWithService(srv, id, cfg.SheetName, logger), nil
}

// NewSheetsStoreWithService uses srv as is; it must already carry credentials.
func NewSheetsStoreWithService(srv *sheets.Service, spreadsheetID, sheetName string, logger *slog.Logger) *SheetsStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetsStore{
		values:        srv.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}
}

func credentials(cfg config.RosterConfig, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CredentialsFile != "" {
		key, err := os.ReadFile(cfg.CredentialsFile)
		switch {
		case err == nil:
			logger.Info("Using credentials file", attr.String("path", cfg.CredentialsFile))
			return key, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
	}
	if cfg.CredentialsJSON != "" {
		logger.Info("Using credentials from environment")
		return []byte(cfg.CredentialsJSON), nil
	}
	return nil, ErrNoCredentials
}

// Load reads the whole worksheet.
func (s *SheetsStore) Load(ctx context.Context) ([]Member, error) {
	vr, err := s.get(ctx, s.a1(""))
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}
	members, h, err := membersFromTable(stringRows(vr.Values))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.header = h
	s.mu.Unlock()
	return members, nil
}

// UpdateWatermark writes one cell.
func (s *SheetsStore) UpdateWatermark(ctx context.Context, row int, source activitydomain.Source, value activitydomain.Watermark) error {
	if row < 2 {
		return fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	colName, err := WatermarkColumn(source)
	if err != nil {
		return err
	}
	h, err := s.headerRow(ctx)
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

	rng := s.a1(cell)
	_, err = s.values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Range:          rng,
		MajorDimension: "ROWS",
		Values:         [][]any{{string(value)}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", cell, err)
	}
	return nil
}

func (s *SheetsStore) headerRow(ctx context.Context) (header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header != nil {
		return s.header, nil
	}

	vr, err := s.get(ctx, s.a1("1:1"))
	if err != nil {
		return nil, fmt.Errorf("failed to read roster header: %w", err)
	}
	rows := stringRows(vr.Values)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty header", ErrColumnMissing)
	}
	h, err := parseHeader(rows[0])
	if err != nil {
		return nil, err
	}
	s.header = h
	return h, nil
}

func (s *SheetsStore) get(ctx context.Context, rng string) (*sheets.ValueRange, error) {
	return s.values.Get(s.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		MajorDimension("ROWS").
		Context(ctx).
		Do()
}

// a1 qualifies a range with the worksheet name. An empty rng selects the
// whole sheet.
func (s *SheetsStore) a1(rng string) string {
	sheet := "'" + strings.ReplaceAll(s.sheetName, "'", "''") + "'"
	if rng == "" {
		return sheet
	}
	return sheet + "!" + rng
}

// stringRows renders unformatted cell values. Numbers come back as JSON
// floats, so integral values are printed without an exponent.
func stringRows(values [][]any) [][]string {
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			switch v := v.(type) {
			case nil:
			case string:
				rows[i][j] = v
			case float64:
				rows[i][j] = strconv.FormatFloat(v, 'f', -1, 64)
			case bool:
				rows[i][j] = strconv.FormatBool(v)
			default:
				rows[i][j] = fmt.Sprint(v)
			}
		}
	}
	return rows
}
