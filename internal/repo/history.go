package repo

import (
	"context"
	"database/sql"
	"strings"

	"workbasket/internal/domain"
)

func (r Repo) InsertHistoryEventTx(ctx context.Context, tx *sql.Tx, e domain.AuditEvent) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO workbasket_history_events(id,type,created,user_id,workbasket_id,workbasket_key,domain,workbasket_type,owner,details)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Type, formatTime(e.Created), e.UserID, e.WorkbasketID, nullable(e.WorkbasketKey), nullable(e.Domain),
		nullable(e.WorkbasketType), nullable(e.Owner), nullable(e.Details))
	return err
}

type HistoryFilters struct {
	WorkbasketID string
	Type         string
	UserID       string
	// AfterSeq returns only events written after this sequence number.
	AfterSeq int64
	Limit    int
}

// HistoryEntry pairs an event with its insertion sequence.
type HistoryEntry struct {
	Seq   int64
	Event domain.AuditEvent
}

// ListHistory returns events in insertion order.
func (r Repo) ListHistory(ctx context.Context, f HistoryFilters) ([]HistoryEntry, error) {
	return r.ListHistoryTx(ctx, nil, f)
}

func (r Repo) ListHistoryTx(ctx context.Context, tx *sql.Tx, f HistoryFilters) ([]HistoryEntry, error) {
	clauses := []string{"seq > ?"}
	args := []any{f.AfterSeq}
	if f.WorkbasketID != "" {
		clauses = append(clauses, "workbasket_id=?")
		args = append(args, f.WorkbasketID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	query := `SELECT seq,id,type,created,user_id,workbasket_id,COALESCE(workbasket_key,''),COALESCE(domain,''),
COALESCE(workbasket_type,''),COALESCE(owner,''),COALESCE(details,'')
FROM workbasket_history_events WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY seq`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var created string
		e := &h.Event
		if err := rows.Scan(&h.Seq, &e.ID, &e.Type, &created, &e.UserID, &e.WorkbasketID, &e.WorkbasketKey, &e.Domain,
			&e.WorkbasketType, &e.Owner, &e.Details); err != nil {
			return nil, err
		}
		if e.Created, err = parseTime(created); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
