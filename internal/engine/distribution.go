package engine

import (
	"context"

	"workbasket/internal/apperr"
	"workbasket/internal/changes"
	"workbasket/internal/domain"
)

// DistributionTargets lists the workbaskets sourceID may route work to.
// Only direct edges are returned.
func (e Engine) DistributionTargets(ctx context.Context, sourceID string) ([]domain.WorkbasketSummary, error) {
	return e.neighbours(ctx, "distribution_targets", sourceID, true)
}

// DistributionSources lists the workbaskets that may route work to targetID.
func (e Engine) DistributionSources(ctx context.Context, targetID string) ([]domain.WorkbasketSummary, error) {
	return e.neighbours(ctx, "distribution_sources", targetID, false)
}

func (e Engine) neighbours(ctx context.Context, op, id string, outgoing bool) ([]domain.WorkbasketSummary, error) {
	var out []domain.WorkbasketSummary
	err := e.run(ctx, op, func(s *scope) error {
		var err error
		if e.Auth.InRole(ctx, domain.RoleBusinessAdmin, domain.RoleAdmin) {
			_, err = e.Auth.Resolve(ctx, s.tx, domain.RefByID(id))
		} else {
			_, err = e.Auth.CheckWorkbasket(ctx, s.tx, domain.RefByID(id), domain.PermRead)
		}
		if err != nil {
			return err
		}
		var list []domain.Workbasket
		if outgoing {
			list, err = e.Repo.ListDistributionTargetsTx(ctx, s.tx, id)
		} else {
			list, err = e.Repo.ListDistributionSourcesTx(ctx, s.tx, id)
		}
		if err != nil {
			return err
		}
		for _, wb := range list {
			out = append(out, wb.Summary())
		}
		return nil
	})
	return out, err
}

// AddDistributionTarget adds the edge sourceID -> targetID. Adding an
// existing edge is a no-op and emits nothing.
func (e Engine) AddDistributionTarget(ctx context.Context, sourceID, targetID string) error {
	return e.run(ctx, "add_distribution_target", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		source, err := s.workbasket(ctx, sourceID)
		if err != nil {
			return err
		}
		if _, err := s.workbasket(ctx, targetID); err != nil {
			return err
		}
		n, err := e.Repo.CountDistributionTargetTx(ctx, s.tx, sourceID, targetID)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := e.Repo.InsertDistributionTargetTx(ctx, s.tx, sourceID, targetID); err != nil {
			return wrap("insert distribution target", err)
		}
		source.Modified = e.now()
		if err := e.Repo.TouchWorkbasketTx(ctx, s.tx, sourceID, source.Modified); err != nil {
			return err
		}
		if !s.auditing() {
			return nil
		}
		details, err := changes.Single("distributionTarget", "", targetID)
		if err != nil {
			return err
		}
		return s.emit(ctx, domain.EventDistributionTargetAdded, source, details)
	})
}

// RemoveDistributionTarget deletes the edge sourceID -> targetID if present.
// A missing source is not an error.
func (e Engine) RemoveDistributionTarget(ctx context.Context, sourceID, targetID string) error {
	return e.run(ctx, "remove_distribution_target", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		n, err := e.Repo.DeleteDistributionTargetTx(ctx, s.tx, sourceID, targetID)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		source, err := s.workbasket(ctx, sourceID)
		switch {
		case apperr.Is(err, apperr.KindNotFound):
			source = domain.Workbasket{ID: sourceID}
		case err != nil:
			return err
		default:
			source.Modified = e.now()
			if err := e.Repo.TouchWorkbasketTx(ctx, s.tx, sourceID, source.Modified); err != nil {
				return err
			}
		}
		if !s.auditing() {
			return nil
		}
		details, err := changes.Single("distributionTarget", targetID, "")
		if err != nil {
			return err
		}
		return s.emit(ctx, domain.EventDistributionTargetRemoved, source, details)
	})
}

// SetDistributionTargets replaces every outgoing edge of sourceID. One
// history event carries the old and new target sets; replacing with an
// empty set clears the edges without an event.
func (e Engine) SetDistributionTargets(ctx context.Context, sourceID string, targetIDs []string) error {
	return e.run(ctx, "set_distribution_targets", func(s *scope) error {
		if err := e.requireAdmin(ctx); err != nil {
			return err
		}
		source, err := s.workbasket(ctx, sourceID)
		if err != nil {
			return err
		}
		var previous []string
		if s.auditing() {
			if previous, err = e.Repo.ListTargetIDsTx(ctx, s.tx, sourceID); err != nil {
				return err
			}
		}
		if _, err := e.Repo.DeleteDistributionTargetsBySourceTx(ctx, s.tx, sourceID); err != nil {
			return err
		}
		seen := map[string]bool{}
		var applied []string
		for _, targetID := range targetIDs {
			if seen[targetID] {
				continue
			}
			seen[targetID] = true
			if _, err := s.workbasket(ctx, targetID); err != nil {
				return err
			}
			if err := e.Repo.InsertDistributionTargetTx(ctx, s.tx, sourceID, targetID); err != nil {
				return wrap("insert distribution target", err)
			}
			applied = append(applied, targetID)
		}
		source.Modified = e.now()
		if err := e.Repo.TouchWorkbasketTx(ctx, s.tx, sourceID, source.Modified); err != nil {
			return err
		}
		if !s.auditing() || len(applied) == 0 {
			return nil
		}
		details, err := changes.DiffSets("distributionTargets", previous, applied)
		if err != nil {
			return err
		}
		return s.emit(ctx, domain.EventDistributionTargetsUpdated, source, details)
	})
}
