package repo

import (
	"context"
	"database/sql"
	"strings"

	"workbasket/internal/domain"
)

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(id,workbasket_id,name,state,created) VALUES (?,?,?,?,?)`,
		t.ID, t.WorkbasketID, nullable(t.Name), t.State, formatTime(t.Created))
	return err
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	var t domain.Task
	var created string
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,workbasket_id,COALESCE(name,''),state,created FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.WorkbasketID, &t.Name, &t.State, &created)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Created, err = parseTime(created)
	return t, err
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountTasksTx counts the tasks of a workbasket. With no states given every
// task counts; otherwise only tasks whose state is not in exclude.
func (r Repo) CountTasksTx(ctx context.Context, tx *sql.Tx, workbasketID string, exclude ...string) (int, error) {
	query := `SELECT COUNT(1) FROM tasks WHERE workbasket_id=?`
	args := []any{workbasketID}
	if len(exclude) > 0 {
		query += ` AND state NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(exclude)), ",") + `)`
		for _, s := range exclude {
			args = append(args, s)
		}
	}
	var n int
	err := r.q(tx).QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r Repo) CountTasksByStateTx(ctx context.Context, tx *sql.Tx, workbasketID string) (map[string]int, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT state, COUNT(1) FROM tasks WHERE workbasket_id=? GROUP BY state`, workbasketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		res[state] = n
	}
	return res, rows.Err()
}
