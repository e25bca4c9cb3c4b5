package engine

import (
	"context"

	"workbasket/internal/domain"
	"workbasket/internal/repo"
)

// HistoryFilter narrows History.
type HistoryFilter struct {
	WorkbasketID string
	Type         string
	UserID       string
	AfterSeq     int64
	Limit        int
}

// History returns recorded events in the order they were written. Only
// administrators and monitors may read it.
func (e Engine) History(ctx context.Context, f HistoryFilter) ([]repo.HistoryEntry, error) {
	var out []repo.HistoryEntry
	err := e.run(ctx, "history", func(s *scope) error {
		if err := e.Auth.RequireRole(ctx, domain.RoleBusinessAdmin, domain.RoleAdmin, domain.RoleMonitor); err != nil {
			return err
		}
		var err error
		out, err = e.Repo.ListHistoryTx(ctx, s.tx, repo.HistoryFilters{
			WorkbasketID: f.WorkbasketID,
			Type:         f.Type,
			UserID:       f.UserID,
			AfterSeq:     f.AfterSeq,
			Limit:        f.Limit,
		})
		return err
	})
	return out, err
}
