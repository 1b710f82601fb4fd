package syncstate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ledger-sync/internal/database"
	sync_feature "ledger-sync/internal/features/sync"

	"go.uber.org/zap"
)

// Table describes where one MIS table keeps its sync markers.
type Table struct {
	Name             string
	IDColumn         string
	StatusColumn     string
	ExternalIDColumn string
	PushedByColumn   string
	PushedDateColumn string
	// LabelExpr is a SQL expression shown to operators when listing rows.
	LabelExpr string
	// TextStatus is set when the status column is a string column.
	TextStatus bool
}

// Store reads and writes the sync markers of a Table.
type Store struct {
	db    *database.MisDB
	table Table
	log   *zap.Logger
}

func NewStore(db *database.MisDB, table Table, log *zap.Logger) *Store {
	return &Store{
		db:    db,
		table: table,
		log:   log.Named("syncstate").With(zap.String("table", table.Name)),
	}
}

func (s *Store) DB() *database.MisDB { return s.db }

// Row holds the marker columns of one source row as scanned.
type Row struct {
	ID         string
	Status     sql.NullString
	ExternalID sql.NullString
	PushedBy   sql.NullString
	PushedDate sql.NullTime
	Label      sql.NullString
}

// Columns lists the marker columns in the order Dest expects them,
// qualified with alias when one is given.
func (s *Store) Columns(alias string) string {
	q := func(c string) string {
		if alias == "" {
			return c
		}
		return alias + "." + c
	}
	t := s.table
	return strings.Join([]string{
		q(t.IDColumn), q(t.StatusColumn), q(t.ExternalIDColumn), q(t.PushedByColumn), q(t.PushedDateColumn),
	}, ", ")
}

func (r *Row) Dest() []any {
	return []any{&r.ID, &r.Status, &r.ExternalID, &r.PushedBy, &r.PushedDate}
}

// Record converts a scanned row. Unrecognised status values are logged and
// treated as not synced.
func (s *Store) Record(row *Row, source any) *sync_feature.Record {
	rec := &sync_feature.Record{
		SyncableRecord: s.syncable(row),
		Source:         source,
	}
	if row.Status.Valid {
		rec.RawStatus = row.Status.String
	}
	if row.PushedDate.Valid {
		rec.RawPushedDate = row.PushedDate.Time
	}
	return rec
}

func (s *Store) syncable(row *Row) sync_feature.SyncableRecord {
	var raw any
	if row.Status.Valid {
		raw = row.Status.String
	}
	status, ok := sync_feature.ParseStatus(raw)
	if !ok {
		s.log.Warn("Unrecognised sync status, treating as not synced",
			zap.String("id", row.ID), zap.String("status", row.Status.String))
	}

	rec := sync_feature.SyncableRecord{
		ID:           row.ID,
		Status:       status,
		ExternalID:   strings.TrimSpace(row.ExternalID.String),
		LastPushedBy: row.PushedBy.String,
		Label:        row.Label.String,
	}
	if row.PushedDate.Valid {
		t := row.PushedDate.Time
		rec.LastPushedAt = &t
	}
	return rec
}

func (s *Store) statusValue(status sync_feature.SyncStatus) any {
	if s.table.TextStatus {
		return strconv.Itoa(int(status))
	}
	return int(status)
}

// Claim sets IN_PROGRESS if the row still carries the status and push date
// observed in rec. It reports false when another caller got there first.
func (s *Store) Claim(ctx context.Context, rec *sync_feature.Record, actor string, now time.Time, force bool) (bool, error) {
	t := s.table
	now = now.Truncate(time.Second)
	query := fmt.Sprintf("UPDATE %s SET %s = ?, %s = ?, %s = ? WHERE %s = ?",
		t.Name, t.StatusColumn, t.PushedByColumn, t.PushedDateColumn, t.IDColumn)
	args := []any{s.statusValue(sync_feature.StatusInProgress), actor, now, rec.ID}

	if !force {
		if rec.RawStatus == nil {
			query += fmt.Sprintf(" AND %s IS NULL", t.StatusColumn)
		} else {
			query += fmt.Sprintf(" AND %s = ?", t.StatusColumn)
			args = append(args, rec.RawStatus)
		}
		if rec.RawPushedDate == nil {
			query += fmt.Sprintf(" AND %s IS NULL", t.PushedDateColumn)
		} else {
			query += fmt.Sprintf(" AND %s = ?", t.PushedDateColumn)
			args = append(args, rec.RawPushedDate)
		}
	}

	res, err := s.db.DB.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("claim %s %s: %w", t.Name, rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if force {
		return true, nil
	}
	return n == 1, nil
}

func (s *Store) MarkSynced(ctx context.Context, id, externalID, actor string, now time.Time) error {
	t := s.table
	query := fmt.Sprintf("UPDATE %s SET %s = ?, %s = ?, %s = ?, %s = ? WHERE %s = ?",
		t.Name, t.StatusColumn, t.ExternalIDColumn, t.PushedByColumn, t.PushedDateColumn, t.IDColumn)
	_, err := s.db.DB.ExecContext(ctx, s.db.Rebind(query),
		s.statusValue(sync_feature.StatusSynced), externalID, actor, now.Truncate(time.Second), id)
	if err != nil {
		return fmt.Errorf("mark %s %s synced: %w", t.Name, id, err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id, actor string, now time.Time) error {
	t := s.table
	query := fmt.Sprintf("UPDATE %s SET %s = ?, %s = ?, %s = ? WHERE %s = ?",
		t.Name, t.StatusColumn, t.PushedByColumn, t.PushedDateColumn, t.IDColumn)
	_, err := s.db.DB.ExecContext(ctx, s.db.Rebind(query),
		s.statusValue(sync_feature.StatusFailed), actor, now.Truncate(time.Second), id)
	if err != nil {
		return fmt.Errorf("mark %s %s failed: %w", t.Name, id, err)
	}
	return nil
}

// unsyncedPredicate matches NULL, zero and every legacy value outside 1..3.
func (s *Store) unsyncedPredicate() string {
	t := s.table
	if t.TextStatus {
		return fmt.Sprintf("(%s IS NULL OR %s NOT IN ('1', '2', '3'))", t.StatusColumn, t.StatusColumn)
	}
	return fmt.Sprintf("(%s IS NULL OR %s NOT IN (1, 2, 3))", t.StatusColumn, t.StatusColumn)
}

// ListUnsynced pages through not-synced rows in id order so offsets stay stable.
func (s *Store) ListUnsynced(ctx context.Context, limit, offset int) ([]sync_feature.SyncableRecord, error) {
	t := s.table
	label := t.LabelExpr
	if label == "" {
		label = "NULL"
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s ORDER BY %s LIMIT ? OFFSET ?",
		s.Columns(""), label, t.Name, s.unsyncedPredicate(), t.IDColumn)

	rows, err := s.db.DB.QueryContext(ctx, s.db.Rebind(query), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list unsynced %s: %w", t.Name, err)
	}
	defer rows.Close()

	out := []sync_feature.SyncableRecord{}
	for rows.Next() {
		var row Row
		if err := rows.Scan(append(row.Dest(), &row.Label)...); err != nil {
			return nil, err
		}
		out = append(out, s.syncable(&row))
	}
	return out, rows.Err()
}

func (s *Store) CountByStatus(ctx context.Context) (sync_feature.StatusCounts, error) {
	t := s.table
	hasExternal := fmt.Sprintf("CASE WHEN %s IS NULL OR %s = '' THEN 0 ELSE 1 END", t.ExternalIDColumn, t.ExternalIDColumn)
	query := fmt.Sprintf("SELECT %s, %s, COUNT(*) FROM %s GROUP BY %s, %s",
		t.StatusColumn, hasExternal, t.Name, t.StatusColumn, hasExternal)

	var counts sync_feature.StatusCounts
	rows, err := s.db.DB.QueryContext(ctx, query)
	if err != nil {
		return counts, fmt.Errorf("count %s by status: %w", t.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			raw      sql.NullString
			external int
			n        int64
		)
		if err := rows.Scan(&raw, &external, &n); err != nil {
			return counts, err
		}
		var value any
		if raw.Valid {
			value = raw.String
		}
		status, _ := sync_feature.ParseStatus(value)
		counts.Total += n
		switch status {
		case sync_feature.StatusSynced:
			counts.Synced += n
			if external == 0 {
				counts.Inconsistent += n
			}
		case sync_feature.StatusFailed:
			counts.Failed += n
		case sync_feature.StatusInProgress:
			counts.InProgress += n
		default:
			counts.NotSynced += n
		}
	}
	return counts, rows.Err()
}
