package engine

import (
	"context"
	"sort"
	"strings"

	"workbasket/internal/apperr"
	"workbasket/internal/changes"
	"workbasket/internal/domain"
)

// NewAccessItem returns an unsaved grant of no permissions.
func (e Engine) NewAccessItem(workbasketID, accessID string) domain.AccessItem {
	return domain.AccessItem{WorkbasketID: workbasketID, AccessID: accessID}
}

func (e Engine) normalizeItem(it domain.AccessItem) (domain.AccessItem, error) {
	it.AccessID = e.Config.NormalizeAccessID(it.AccessID)
	if it.AccessID == "" {
		return it, apperr.Invalidf("access id is required")
	}
	if strings.TrimSpace(it.WorkbasketID) == "" {
		return it, apperr.Invalidf("workbasket id is required")
	}
	return it, nil
}

// CreateAccessItem grants it.Permissions on one workbasket to one access id.
func (e Engine) CreateAccessItem(ctx context.Context, it domain.AccessItem) (domain.AccessItem, error) {
	err := e.run(ctx, "create_access_item", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		var err error
		if it, err = e.normalizeItem(it); err != nil {
			return err
		}
		wb, err := s.workbasket(ctx, it.WorkbasketID)
		if err != nil {
			return err
		}
		if exists, err := e.Repo.AccessItemExistsTx(ctx, s.tx, it.WorkbasketID, it.AccessID); err != nil {
			return err
		} else if exists {
			return apperr.AccessItemAlreadyExists(it.AccessID, it.WorkbasketID)
		}
		if it.ID == "" {
			it.ID = newID(PrefixAccessItem)
		}
		it.WorkbasketKey = wb.Key
		if err := e.Repo.InsertAccessItemTx(ctx, s.tx, it); err != nil {
			return wrap("insert access item", err)
		}
		if !s.auditing() {
			return nil
		}
		details, err := changes.Diff(domain.AccessItem{}, it)
		if err != nil {
			return err
		}
		return s.emit(ctx, domain.EventAccessItemCreated, wb, details)
	})
	if err != nil {
		return domain.AccessItem{}, err
	}
	return it, nil
}

// UpdateAccessItem changes the permissions and access name of an existing
// item. Its id, workbasket and access id cannot change.
func (e Engine) UpdateAccessItem(ctx context.Context, it domain.AccessItem) (domain.AccessItem, error) {
	err := e.run(ctx, "update_access_item", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		old, err := e.Repo.GetAccessItemTx(ctx, s.tx, it.ID)
		if err != nil {
			return mapNotFound(err, func() error { return apperr.AccessItemNotFound(it.ID) })
		}
		if it.WorkbasketID != "" && it.WorkbasketID != old.WorkbasketID {
			return apperr.Invalidf("access item %s belongs to workbasket %s", old.ID, old.WorkbasketID)
		}
		if it.AccessID != "" && e.Config.NormalizeAccessID(it.AccessID) != old.AccessID {
			return apperr.Invalidf("access id of access item %s cannot change", old.ID)
		}
		it.WorkbasketID = old.WorkbasketID
		it.WorkbasketKey = old.WorkbasketKey
		it.AccessID = old.AccessID
		if err := e.Repo.UpdateAccessItemTx(ctx, s.tx, it); err != nil {
			return mapNotFound(err, func() error { return apperr.AccessItemNotFound(it.ID) })
		}
		if !s.auditing() {
			return nil
		}
		wb, err := s.workbasket(ctx, it.WorkbasketID)
		if err != nil {
			return err
		}
		details, err := changes.Diff(old, it)
		if err != nil {
			return err
		}
		return s.emit(ctx, domain.EventAccessItemUpdated, wb, details)
	})
	if err != nil {
		return domain.AccessItem{}, err
	}
	return it, nil
}

// DeleteAccessItem removes one grant.
func (e Engine) DeleteAccessItem(ctx context.Context, id string) error {
	return e.run(ctx, "delete_access_item", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		old, err := e.Repo.GetAccessItemTx(ctx, s.tx, id)
		if err != nil {
			return mapNotFound(err, func() error { return apperr.AccessItemNotFound(id) })
		}
		if err := e.Repo.DeleteAccessItemTx(ctx, s.tx, id); err != nil {
			return mapNotFound(err, func() error { return apperr.AccessItemNotFound(id) })
		}
		if !s.auditing() {
			return nil
		}
		wb, err := s.workbasket(ctx, old.WorkbasketID)
		if err != nil {
			return err
		}
		details, err := changes.Diff(old, domain.AccessItem{})
		if err != nil {
			return err
		}
		return s.emit(ctx, domain.EventAccessItemDeleted, wb, details)
	})
}

// SetAccessItems replaces every grant on a workbasket with items. The whole
// replacement is recorded as one history event.
func (e Engine) SetAccessItems(ctx context.Context, workbasketID string, items []domain.AccessItem) ([]domain.AccessItem, error) {
	var applied []domain.AccessItem
	err := e.run(ctx, "set_access_items", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		wb, err := s.workbasket(ctx, workbasketID)
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, it := range items {
			if it.WorkbasketID == "" {
				it.WorkbasketID = wb.ID
			}
			if it.WorkbasketID != wb.ID {
				return apperr.Invalidf("access item for %s targets workbasket %s, not %s", it.AccessID, it.WorkbasketID, wb.ID)
			}
			if it, err = e.normalizeItem(it); err != nil {
				return err
			}
			if seen[it.AccessID] {
				return apperr.AccessItemAlreadyExists(it.AccessID, wb.ID)
			}
			seen[it.AccessID] = true
			if it.ID == "" {
				it.ID = newID(PrefixAccessItem)
			}
			it.WorkbasketKey = wb.Key
			applied = append(applied, it)
		}
		var previous []domain.AccessItem
		if s.auditing() {
			if previous, err = e.Repo.ListAccessItemsByWorkbasketTx(ctx, s.tx, wb.ID); err != nil {
				return err
			}
		}
		if _, err := e.Repo.DeleteAccessItemsForWorkbasketTx(ctx, s.tx, wb.ID); err != nil {
			return err
		}
		for _, it := range applied {
			if err := e.Repo.InsertAccessItemTx(ctx, s.tx, it); err != nil {
				return wrap("insert access item", err)
			}
		}
		if !s.auditing() {
			return nil
		}
		details, err := changes.DiffSets("accessItems", grantStrings(previous), grantStrings(applied))
		if err != nil {
			return err
		}
		return s.emit(ctx, domain.EventAccessItemsUpdated, wb, details)
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// grantStrings renders items as "accessId:PERM,PERM" for set comparison.
func grantStrings(items []domain.AccessItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.AccessID+":"+it.Permissions.String())
	}
	return out
}

// AccessItems lists the grants on one workbasket.
func (e Engine) AccessItems(ctx context.Context, workbasketID string) ([]domain.AccessItem, error) {
	var out []domain.AccessItem
	err := e.run(ctx, "list_access_items", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		if _, err := s.workbasket(ctx, workbasketID); err != nil {
			return err
		}
		var err error
		out, err = e.Repo.ListAccessItemsByWorkbasketTx(ctx, s.tx, workbasketID)
		return err
	})
	return out, err
}

// AccessItemsForAccessID lists every grant held by one access id.
func (e Engine) AccessItemsForAccessID(ctx context.Context, accessID string) ([]domain.AccessItem, error) {
	var out []domain.AccessItem
	err := e.run(ctx, "list_access_items_for_access_id", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		var err error
		out, err = e.Repo.ListAccessItemsByAccessIDTx(ctx, s.tx, e.Config.NormalizeAccessID(accessID))
		return err
	})
	return out, err
}

// DeleteAccessItemsForAccessID revokes every grant of one access id. One
// history event is written per affected workbasket.
func (e Engine) DeleteAccessItemsForAccessID(ctx context.Context, accessID string) (int, error) {
	var removed int
	err := e.run(ctx, "delete_access_items_for_access_id", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		accessID = e.Config.NormalizeAccessID(accessID)
		if accessID == "" {
			return apperr.Invalidf("access id is required")
		}
		items, err := e.Repo.ListAccessItemsByAccessIDTx(ctx, s.tx, accessID)
		if err != nil {
			return err
		}
		n, err := e.Repo.DeleteAccessItemsForAccessIDTx(ctx, s.tx, accessID)
		if err != nil {
			return err
		}
		removed = int(n)
		if !s.auditing() {
			return nil
		}
		byWorkbasket := map[string][]domain.AccessItem{}
		for _, it := range items {
			byWorkbasket[it.WorkbasketID] = append(byWorkbasket[it.WorkbasketID], it)
		}
		ids := make([]string, 0, len(byWorkbasket))
		for id := range byWorkbasket {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			wb, err := s.workbasket(ctx, id)
			if err != nil {
				return err
			}
			details, err := changes.DiffSets("accessItems", grantStrings(byWorkbasket[id]), nil)
			if err != nil {
				return err
			}
			if err := s.emit(ctx, domain.EventAccessItemDeletedForAccess, wb, details); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// PermissionsForWorkbasket returns the union of the caller's grants on a
// workbasket.
func (e Engine) PermissionsForWorkbasket(ctx context.Context, workbasketID string) (domain.Permission, error) {
	var perms domain.Permission
	err := e.run(ctx, "permissions_for_workbasket", func(s *scope) error {
		if _, err := s.workbasket(ctx, workbasketID); err != nil {
			return err
		}
		var err error
		perms, err = e.Auth.Permissions(ctx, s.tx, workbasketID)
		return err
	})
	return perms, err
}
