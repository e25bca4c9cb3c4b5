package repo

import (
	"context"
	"database/sql"
	"strings"

	"workbasket/internal/domain"
)

const accessItemSelect = `SELECT a.id,a.workbasket_id,COALESCE(w.key,''),a.access_id,COALESCE(a.access_name,''),a.permissions
FROM workbasket_access_items a LEFT JOIN workbaskets w ON w.id=a.workbasket_id`

func scanAccessItem(row scanner) (domain.AccessItem, error) {
	var it domain.AccessItem
	var perms int64
	err := row.Scan(&it.ID, &it.WorkbasketID, &it.WorkbasketKey, &it.AccessID, &it.AccessName, &perms)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	it.Permissions = domain.Permission(perms)
	return it, err
}

func (r Repo) listAccessItems(ctx context.Context, tx *sql.Tx, where string, args ...any) ([]domain.AccessItem, error) {
	rows, err := r.q(tx).QueryContext(ctx, accessItemSelect+" WHERE "+where+" ORDER BY a.workbasket_id, a.access_id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AccessItem
	for rows.Next() {
		it, err := scanAccessItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

func (r Repo) InsertAccessItemTx(ctx context.Context, tx *sql.Tx, it domain.AccessItem) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO workbasket_access_items(id,workbasket_id,access_id,access_name,permissions) VALUES (?,?,?,?,?)`,
		it.ID, it.WorkbasketID, it.AccessID, nullable(it.AccessName), int64(it.Permissions))
	return err
}

// UpdateAccessItemTx rewrites the access name and permissions of an item.
func (r Repo) UpdateAccessItemTx(ctx context.Context, tx *sql.Tx, it domain.AccessItem) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE workbasket_access_items SET access_name=?, permissions=? WHERE id=?`,
		nullable(it.AccessName), int64(it.Permissions), it.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteAccessItemTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM workbasket_access_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteAccessItemsForWorkbasketTx(ctx context.Context, tx *sql.Tx, workbasketID string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM workbasket_access_items WHERE workbasket_id=?`, workbasketID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) DeleteAccessItemsForAccessIDTx(ctx context.Context, tx *sql.Tx, accessID string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM workbasket_access_items WHERE access_id=?`, accessID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) GetAccessItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.AccessItem, error) {
	return scanAccessItem(r.q(tx).QueryRowContext(ctx, accessItemSelect+" WHERE a.id=?", id))
}

func (r Repo) AccessItemExistsTx(ctx context.Context, tx *sql.Tx, workbasketID, accessID string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(1) FROM workbasket_access_items WHERE workbasket_id=? AND access_id=?`,
		workbasketID, accessID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) ListAccessItemsByWorkbasketTx(ctx context.Context, tx *sql.Tx, workbasketID string) ([]domain.AccessItem, error) {
	return r.listAccessItems(ctx, tx, "a.workbasket_id=?", workbasketID)
}

func (r Repo) ListAccessItemsByAccessIDTx(ctx context.Context, tx *sql.Tx, accessID string) ([]domain.AccessItem, error) {
	return r.listAccessItems(ctx, tx, "a.access_id=?", accessID)
}

// ListGrantsTx returns the items held by any of the access ids, optionally
// restricted to one workbasket.
func (r Repo) ListGrantsTx(ctx context.Context, tx *sql.Tx, workbasketID string, accessIDs []string) ([]domain.AccessItem, error) {
	if len(accessIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(accessIDs)), ",")
	where := "a.access_id IN (" + placeholders + ")"
	args := make([]any, 0, len(accessIDs)+1)
	for _, id := range accessIDs {
		args = append(args, id)
	}
	if workbasketID != "" {
		where += " AND a.workbasket_id=?"
		args = append(args, workbasketID)
	}
	return r.listAccessItems(ctx, tx, where, args...)
}
