package repo

import (
	"context"
	"database/sql"

	"workbasket/internal/domain"
)

func (r Repo) InsertDistributionTargetTx(ctx context.Context, tx *sql.Tx, sourceID, targetID string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO distribution_targets(source_id,target_id) VALUES (?,?)`, sourceID, targetID)
	return err
}

func (r Repo) CountDistributionTargetTx(ctx context.Context, tx *sql.Tx, sourceID, targetID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(1) FROM distribution_targets WHERE source_id=? AND target_id=?`, sourceID, targetID).Scan(&n)
	return n, err
}

// DeleteDistributionTargetTx returns the number of removed edges (0 or 1).
func (r Repo) DeleteDistributionTargetTx(ctx context.Context, tx *sql.Tx, sourceID, targetID string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM distribution_targets WHERE source_id=? AND target_id=?`, sourceID, targetID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) DeleteDistributionTargetsBySourceTx(ctx context.Context, tx *sql.Tx, sourceID string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM distribution_targets WHERE source_id=?`, sourceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) DeleteDistributionTargetsByTargetTx(ctx context.Context, tx *sql.Tx, targetID string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM distribution_targets WHERE target_id=?`, targetID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) ListTargetIDsTx(ctx context.Context, tx *sql.Tx, sourceID string) ([]string, error) {
	return r.listIDs(ctx, tx, `SELECT target_id FROM distribution_targets WHERE source_id=? ORDER BY target_id`, sourceID)
}

func (r Repo) ListSourceIDsTx(ctx context.Context, tx *sql.Tx, targetID string) ([]string, error) {
	return r.listIDs(ctx, tx, `SELECT source_id FROM distribution_targets WHERE target_id=? ORDER BY source_id`, targetID)
}

// ListDistributionTargetsTx returns the workbaskets one hop downstream of source.
func (r Repo) ListDistributionTargetsTx(ctx context.Context, tx *sql.Tx, sourceID string) ([]domain.Workbasket, error) {
	return r.listWorkbasketsWhere(ctx, tx, `id IN (SELECT target_id FROM distribution_targets WHERE source_id=?)`, sourceID)
}

// ListDistributionSourcesTx returns the workbaskets one hop upstream of target.
func (r Repo) ListDistributionSourcesTx(ctx context.Context, tx *sql.Tx, targetID string) ([]domain.Workbasket, error) {
	return r.listWorkbasketsWhere(ctx, tx, `id IN (SELECT source_id FROM distribution_targets WHERE target_id=?)`, targetID)
}

func (r Repo) listWorkbasketsWhere(ctx context.Context, tx *sql.Tx, where string, args ...any) ([]domain.Workbasket, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+workbasketColumns+` FROM workbaskets WHERE `+where+` ORDER BY domain, key`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workbasket
	for rows.Next() {
		w, err := scanWorkbasket(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) listIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}
