package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"workbasket/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const workbasketColumns = `id,key,domain,name,COALESCE(description,''),COALESCE(owner,''),type,
COALESCE(org_level_1,''),COALESCE(org_level_2,''),COALESCE(org_level_3,''),COALESCE(org_level_4,''),
COALESCE(custom_1,''),COALESCE(custom_2,''),COALESCE(custom_3,''),COALESCE(custom_4,''),
COALESCE(custom_5,''),COALESCE(custom_6,''),COALESCE(custom_7,''),COALESCE(custom_8,''),
created,modified,marked_for_deletion`

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkbasket(row scanner) (domain.Workbasket, error) {
	var w domain.Workbasket
	var created, modified string
	var marked int
	err := row.Scan(&w.ID, &w.Key, &w.Domain, &w.Name, &w.Description, &w.Owner, &w.Type,
		&w.OrgLevel1, &w.OrgLevel2, &w.OrgLevel3, &w.OrgLevel4,
		&w.Custom1, &w.Custom2, &w.Custom3, &w.Custom4, &w.Custom5, &w.Custom6, &w.Custom7, &w.Custom8,
		&created, &modified, &marked)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if w.Created, err = parseTime(created); err != nil {
		return w, err
	}
	if w.Modified, err = parseTime(modified); err != nil {
		return w, err
	}
	w.MarkedForDeletion = marked != 0
	return w, nil
}

func (r Repo) InsertWorkbasketTx(ctx context.Context, tx *sql.Tx, w domain.Workbasket) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO workbaskets(id,key,domain,name,description,owner,type,
org_level_1,org_level_2,org_level_3,org_level_4,custom_1,custom_2,custom_3,custom_4,custom_5,custom_6,custom_7,custom_8,
created,modified,marked_for_deletion) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.Key, w.Domain, w.Name, nullable(w.Description), nullable(w.Owner), w.Type,
		nullable(w.OrgLevel1), nullable(w.OrgLevel2), nullable(w.OrgLevel3), nullable(w.OrgLevel4),
		nullable(w.Custom1), nullable(w.Custom2), nullable(w.Custom3), nullable(w.Custom4),
		nullable(w.Custom5), nullable(w.Custom6), nullable(w.Custom7), nullable(w.Custom8),
		formatTime(w.Created), formatTime(w.Modified), boolInt(w.MarkedForDeletion))
	return err
}

// UpdateWorkbasketTx rewrites every mutable column. Key and domain are never touched.
func (r Repo) UpdateWorkbasketTx(ctx context.Context, tx *sql.Tx, w domain.Workbasket) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE workbaskets SET name=?, description=?, owner=?, type=?,
org_level_1=?, org_level_2=?, org_level_3=?, org_level_4=?,
custom_1=?, custom_2=?, custom_3=?, custom_4=?, custom_5=?, custom_6=?, custom_7=?, custom_8=?,
modified=?, marked_for_deletion=? WHERE id=?`,
		w.Name, nullable(w.Description), nullable(w.Owner), w.Type,
		nullable(w.OrgLevel1), nullable(w.OrgLevel2), nullable(w.OrgLevel3), nullable(w.OrgLevel4),
		nullable(w.Custom1), nullable(w.Custom2), nullable(w.Custom3), nullable(w.Custom4),
		nullable(w.Custom5), nullable(w.Custom6), nullable(w.Custom7), nullable(w.Custom8),
		formatTime(w.Modified), boolInt(w.MarkedForDeletion), w.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchWorkbasketTx stamps the modified timestamp only.
func (r Repo) TouchWorkbasketTx(ctx context.Context, tx *sql.Tx, id string, modified time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE workbaskets SET modified=? WHERE id=?`, formatTime(modified), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteWorkbasketTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM workbaskets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetWorkbasket(ctx context.Context, id string) (domain.Workbasket, error) {
	return r.GetWorkbasketTx(ctx, nil, id)
}

func (r Repo) GetWorkbasketTx(ctx context.Context, tx *sql.Tx, id string) (domain.Workbasket, error) {
	return scanWorkbasket(r.q(tx).QueryRowContext(ctx, `SELECT `+workbasketColumns+` FROM workbaskets WHERE id=?`, id))
}

func (r Repo) GetWorkbasketByKeyTx(ctx context.Context, tx *sql.Tx, key, dom string) (domain.Workbasket, error) {
	return scanWorkbasket(r.q(tx).QueryRowContext(ctx, `SELECT `+workbasketColumns+` FROM workbaskets WHERE key=? AND domain=?`, key, dom))
}

// WorkbasketExistsTx reports whether a row with the id exists.
func (r Repo) WorkbasketExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	if err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(1) FROM workbaskets WHERE id=?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

type WorkbasketFilters struct {
	Domain            string
	Type              string
	Owner             string
	KeyLike           string
	MarkedForDeletion *bool
	Limit             int
}

func (r Repo) ListWorkbasketsTx(ctx context.Context, tx *sql.Tx, f WorkbasketFilters) ([]domain.Workbasket, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Domain != "" {
		clauses = append(clauses, "domain=?")
		args = append(args, f.Domain)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Owner != "" {
		clauses = append(clauses, "owner=?")
		args = append(args, f.Owner)
	}
	if f.KeyLike != "" {
		clauses = append(clauses, "key LIKE ?")
		args = append(args, "%"+f.KeyLike+"%")
	}
	if f.MarkedForDeletion != nil {
		clauses = append(clauses, "marked_for_deletion=?")
		args = append(args, boolInt(*f.MarkedForDeletion))
	}
	query := `SELECT ` + workbasketColumns + ` FROM workbaskets`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY domain, key"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
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
