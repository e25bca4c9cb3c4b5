package engine

import (
	"context"
	"errors"
	"strings"

	"workbasket/internal/apperr"
	"workbasket/internal/changes"
	"workbasket/internal/domain"
	"workbasket/internal/repo"
)

// NewWorkbasket returns an unsaved workbasket for CreateWorkbasket.
func (e Engine) NewWorkbasket(key, dom string) domain.Workbasket {
	return domain.NewWorkbasket(key, dom)
}

func (e Engine) validateWorkbasket(wb domain.Workbasket) error {
	if strings.TrimSpace(wb.Key) == "" {
		return apperr.Invalidf("workbasket key is required")
	}
	if strings.TrimSpace(wb.Domain) == "" {
		return apperr.Invalidf("workbasket domain is required")
	}
	if !e.Config.HasDomain(wb.Domain) {
		return apperr.Invalidf("domain %s is not configured", wb.Domain)
	}
	if strings.TrimSpace(wb.Name) == "" {
		return apperr.Invalidf("workbasket name is required")
	}
	if wb.Type == "" {
		return apperr.Invalidf("workbasket type is required")
	}
	if !domain.ValidWorkbasketType(wb.Type) {
		return apperr.Invalidf("workbasket type %s is not one of %s", wb.Type, strings.Join(domain.WorkbasketTypes, ","))
	}
	return nil
}

// CreateWorkbasket persists a new workbasket. The id is generated when empty
// and created/modified are stamped with the current time.
func (e Engine) CreateWorkbasket(ctx context.Context, wb domain.Workbasket) (domain.Workbasket, error) {
	err := e.run(ctx, "create_workbasket", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		if err := e.validateWorkbasket(wb); err != nil {
			return err
		}
		if _, err := e.Repo.GetWorkbasketByKeyTx(ctx, s.tx, wb.Key, wb.Domain); err == nil {
			return apperr.WorkbasketAlreadyExists(wb.Key, wb.Domain)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if wb.ID == "" {
			wb.ID = newID(PrefixWorkbasket)
		} else if exists, err := e.Repo.WorkbasketExistsTx(ctx, s.tx, wb.ID); err != nil {
			return err
		} else if exists {
			return &apperr.AlreadyExistsError{Msg: "workbasket " + wb.ID + " already exists"}
		}
		now := e.now()
		wb.Created = now
		wb.Modified = now
		wb.MarkedForDeletion = false
		if err := e.Repo.InsertWorkbasketTx(ctx, s.tx, wb); err != nil {
			return wrap("insert workbasket", err)
		}
		if !s.auditing() {
			return nil
		}
		details, err := changes.Diff(domain.Workbasket{}, wb)
		if err != nil {
			return err
		}
		return s.emit(ctx, domain.EventWorkbasketCreated, wb, details)
	})
	if err != nil {
		return domain.Workbasket{}, err
	}
	return wb, nil
}

// UpdateWorkbasket replaces the mutable fields of a workbasket. The caller
// must pass the Modified value it read; a mismatch is a ConcurrencyError.
// Key and domain cannot change: the workbasket is looked up by them, so a
// changed pair is reported as not found.
func (e Engine) UpdateWorkbasket(ctx context.Context, wb domain.Workbasket) (domain.Workbasket, error) {
	err := e.run(ctx, "update_workbasket", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		old, err := e.Repo.GetWorkbasketByKeyTx(ctx, s.tx, wb.Key, wb.Domain)
		if err != nil {
			return mapNotFound(err, func() error { return apperr.WorkbasketNotFoundByKey(wb.Key, wb.Domain) })
		}
		if wb.ID == "" {
			wb.ID = old.ID
		} else if wb.ID != old.ID {
			return apperr.WorkbasketNotFoundByKey(wb.Key, wb.Domain)
		}
		if err := e.validateWorkbasket(wb); err != nil {
			return err
		}
		if !old.Modified.Equal(wb.Modified) {
			return &apperr.ConcurrencyError{ID: old.ID}
		}
		wb.Created = old.Created
		wb.MarkedForDeletion = old.MarkedForDeletion
		wb.Modified = e.now()
		if err := e.Repo.UpdateWorkbasketTx(ctx, s.tx, wb); err != nil {
			return mapNotFound(err, func() error { return apperr.WorkbasketNotFound(wb.ID) })
		}
		if !s.auditing() {
			return nil
		}
		details, err := changes.Diff(old, wb)
		if err != nil {
			return err
		}
		return s.emit(ctx, domain.EventWorkbasketUpdated, wb, details)
	})
	if err != nil {
		return domain.Workbasket{}, err
	}
	return wb, nil
}

// DeleteWorkbasket removes a workbasket that no task references. When only
// tasks in a terminal state remain it is marked for deletion instead and
// false is returned.
func (e Engine) DeleteWorkbasket(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := e.run(ctx, "delete_workbasket", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		var err error
		deleted, err = s.deleteWorkbasket(ctx, id)
		return err
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// DeleteWorkbaskets deletes each id in its own transaction and returns the
// failures keyed by id. A workbasket that was only marked for deletion is
// not a failure. The returned error is set only when the whole batch was
// refused.
func (e Engine) DeleteWorkbaskets(ctx context.Context, ids []string) (map[string]error, error) {
	if err := e.requireAdmin(ctx); err != nil {
		e.Metrics.Operation(ctx, "delete_workbaskets", err, 0)
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperr.Invalidf("at least one workbasket id is required")
	}
	failed := map[string]error{}
	for _, id := range ids {
		if _, err := e.DeleteWorkbasket(ctx, id); err != nil {
			failed[id] = err
		}
	}
	return failed, nil
}

func (s *scope) deleteWorkbasket(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, apperr.Invalidf("workbasket id is required")
	}
	wb, err := s.workbasket(ctx, id)
	if err != nil {
		return false, err
	}
	r := s.e.Repo
	open, err := r.CountTasksTx(ctx, s.tx, id, domain.TerminalTaskStates...)
	if err != nil {
		return false, err
	}
	if open > 0 {
		return false, &apperr.InUseError{ID: id, Tasks: open}
	}
	all, err := r.CountTasksTx(ctx, s.tx, id)
	if err != nil {
		return false, err
	}
	if all > 0 {
		if wb.MarkedForDeletion {
			return false, nil
		}
		wb.MarkedForDeletion = true
		wb.Modified = s.e.now()
		if err := r.UpdateWorkbasketTx(ctx, s.tx, wb); err != nil {
			return false, err
		}
		return false, s.emit(ctx, domain.EventWorkbasketMarkedForDeletion, wb, "")
	}
	if _, err := r.DeleteDistributionTargetsBySourceTx(ctx, s.tx, id); err != nil {
		return false, err
	}
	if _, err := r.DeleteDistributionTargetsByTargetTx(ctx, s.tx, id); err != nil {
		return false, err
	}
	if _, err := r.DeleteAccessItemsForWorkbasketTx(ctx, s.tx, id); err != nil {
		return false, err
	}
	if err := r.DeleteWorkbasketTx(ctx, s.tx, id); err != nil {
		return false, mapNotFound(err, func() error { return apperr.WorkbasketNotFound(id) })
	}
	if !s.auditing() {
		return true, nil
	}
	details, err := changes.Diff(wb, domain.Workbasket{})
	if err != nil {
		return false, err
	}
	return true, s.emit(ctx, domain.EventWorkbasketDeleted, wb, details)
}

// Workbasket returns one workbasket the caller may read.
func (e Engine) Workbasket(ctx context.Context, id string) (domain.Workbasket, error) {
	return e.getWorkbasket(ctx, domain.RefByID(id))
}

// WorkbasketByKey returns one workbasket the caller may read.
func (e Engine) WorkbasketByKey(ctx context.Context, key, dom string) (domain.Workbasket, error) {
	return e.getWorkbasket(ctx, domain.RefByKey(key, dom))
}

func (e Engine) getWorkbasket(ctx context.Context, ref domain.WorkbasketRef) (domain.Workbasket, error) {
	var wb domain.Workbasket
	err := e.run(ctx, "get_workbasket", func(s *scope) error {
		var err error
		wb, err = e.Auth.CheckWorkbasket(ctx, s.tx, ref, domain.PermRead)
		return err
	})
	return wb, err
}

// WorkbasketForUpdate reads a workbasket for a caller allowed to update it.
// It is gated like UpdateWorkbasket, so no READ grant is needed.
func (e Engine) WorkbasketForUpdate(ctx context.Context, key, dom string) (domain.Workbasket, error) {
	var wb domain.Workbasket
	err := e.run(ctx, "get_workbasket_for_update", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		var err error
		wb, err = e.Repo.GetWorkbasketByKeyTx(ctx, s.tx, key, dom)
		if err != nil {
			return mapNotFound(err, func() error { return apperr.WorkbasketNotFoundByKey(key, dom) })
		}
		return nil
	})
	return wb, err
}

// WorkbasketFilter narrows ListWorkbaskets.
type WorkbasketFilter struct {
	Domain            string
	Type              string
	Owner             string
	KeyLike           string
	MarkedForDeletion *bool
	Limit             int
}

// ListWorkbaskets returns the workbaskets the caller holds READ on, or every
// match for callers whose role bypasses the read check.
func (e Engine) ListWorkbaskets(ctx context.Context, f WorkbasketFilter) ([]domain.WorkbasketSummary, error) {
	var out []domain.WorkbasketSummary
	err := e.run(ctx, "list_workbaskets", func(s *scope) error {
		all, err := e.Repo.ListWorkbasketsTx(ctx, s.tx, repo.WorkbasketFilters{
			Domain:            f.Domain,
			Type:              f.Type,
			Owner:             f.Owner,
			KeyLike:           f.KeyLike,
			MarkedForDeletion: f.MarkedForDeletion,
		})
		if err != nil {
			return err
		}
		grants, err := e.Auth.Grants(ctx, s.tx)
		if err != nil {
			return err
		}
		for _, wb := range all {
			if !e.Auth.CanSee(ctx, grants, wb) {
				continue
			}
			out = append(out, wb.Summary())
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// CleanupResult reports what CleanupMarkedWorkbaskets did.
type CleanupResult struct {
	Deleted   []string
	Remaining []string
}

// CleanupMarkedWorkbaskets retries deletion of every workbasket marked for
// deletion. Workbaskets still referenced by tasks stay marked.
func (e Engine) CleanupMarkedWorkbaskets(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	if err := e.requireAdmin(ctx); err != nil {
		e.Metrics.Operation(ctx, "cleanup_workbaskets", err, 0)
		return res, err
	}
	marked := true
	var ids []string
	err := e.run(ctx, "list_marked_workbaskets", func(s *scope) error {
		list, err := e.Repo.ListWorkbasketsTx(ctx, s.tx, repo.WorkbasketFilters{MarkedForDeletion: &marked})
		for _, wb := range list {
			ids = append(ids, wb.ID)
		}
		return err
	})
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		deleted, err := e.DeleteWorkbasket(ctx, id)
		switch {
		case deleted:
			res.Deleted = append(res.Deleted, id)
		case err == nil, apperr.Is(err, apperr.KindInUse):
			res.Remaining = append(res.Remaining, id)
		case apperr.Is(err, apperr.KindNotFound):
			// removed since it was listed
		default:
			return res, err
		}
	}
	return res, nil
}
