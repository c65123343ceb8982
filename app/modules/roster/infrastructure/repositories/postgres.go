package rosterdb

import (
	"context"
	"fmt"
	"time"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/uptrace/bun"
)

// MemberRecord is the roster_members row.
type MemberRecord struct {
	bun.BaseModel `bun:"table:roster_members,alias:rm"`

	ID             int64     `bun:"id,pk,autoincrement"`
	Name           string    `bun:"name,notnull"`
	RegNum         string    `bun:"reg_num,notnull"`
	CFHandle       string    `bun:"cf_handle,notnull"`
	AtCoderHandle  string    `bun:"atcoder_handle,notnull"`
	VJudgeHandle   string    `bun:"vjudge_handle,notnull"`
	CodeChefHandle string    `bun:"codechef_handle,notnull"`
	LastCFID       string    `bun:"last_cf_id,notnull"`
	LastAtID       string    `bun:"last_at_id,notnull"`
	LastVJID       string    `bun:"last_vj_id,notnull"`
	LastChefID     string    `bun:"last_chef_id,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *MemberRecord) toMember() Member {
	return Member{
		Row:    int(r.ID),
		Name:   r.Name,
		RegNum: r.RegNum,
		Handles: map[activitydomain.Source]string{
			activitydomain.SourceCodeforces: r.CFHandle,
			activitydomain.SourceAtCoder:    r.AtCoderHandle,
			activitydomain.SourceVJudge:     r.VJudgeHandle,
			activitydomain.SourceCodeChef:   r.CodeChefHandle,
		},
		Watermarks: map[activitydomain.Source]activitydomain.Watermark{
			activitydomain.SourceCodeforces: activitydomain.Watermark(r.LastCFID),
			activitydomain.SourceAtCoder:    activitydomain.Watermark(r.LastAtID),
			activitydomain.SourceVJudge:     activitydomain.Watermark(r.LastVJID),
			activitydomain.SourceCodeChef:   activitydomain.Watermark(r.LastChefID),
		},
	}
}

func recordFromMember(m Member) *MemberRecord {
	return &MemberRecord{
		Name:           m.Name,
		RegNum:         m.RegNum,
		CFHandle:       m.Handle(activitydomain.SourceCodeforces),
		AtCoderHandle:  m.Handle(activitydomain.SourceAtCoder),
		VJudgeHandle:   m.Handle(activitydomain.SourceVJudge),
		CodeChefHandle: m.Handle(activitydomain.SourceCodeChef),
		LastCFID:       string(m.Watermark(activitydomain.SourceCodeforces)),
		LastAtID:       string(m.Watermark(activitydomain.SourceAtCoder)),
		LastVJID:       string(m.Watermark(activitydomain.SourceVJudge)),
		LastChefID:     string(m.Watermark(activitydomain.SourceCodeChef)),
	}
}

// PostgresStore keeps the roster in the roster_members table. Roster order is
// insertion order.
type PostgresStore struct {
	db bun.IDB
}

func NewPostgresStore(db bun.IDB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context) ([]Member, error) {
	var records []MemberRecord
	if err := s.db.NewSelect().Model(&records).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	members := make([]Member, len(records))
	for i := range records {
		members[i] = records[i].toMember()
	}
	return members, nil
}

func (s *PostgresStore) UpdateWatermark(ctx context.Context, row int, source activitydomain.Source, value activitydomain.Watermark) error {
	col, err := WatermarkColumn(source)
	if err != nil {
		return err
	}
	res, err := s.db.NewUpdate().
		Model((*MemberRecord)(nil)).
		Set("? = ?", bun.Ident(col), string(value)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", row).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", col, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	return nil
}

// Import appends members in order and returns how many were written. Row
// numbers of the input are ignored.
func (s *PostgresStore) Import(ctx context.Context, members []Member) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	records := make([]*MemberRecord, len(members))
	for i, m := range members {
		records[i] = recordFromMember(m)
	}
	if _, err := s.db.NewInsert().Model(&records).Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to import roster: %w", err)
	}
	return len(records), nil
}
