package engine

import (
	"context"
	"strings"

	"workbasket/internal/apperr"
	"workbasket/internal/domain"
)

// AddTask records a task reference on a workbasket. The caller needs APPEND
// on the workbasket; a workbasket marked for deletion accepts no new tasks.
func (e Engine) AddTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	err := e.run(ctx, "add_task", func(s *scope) error {
		wb, err := e.Auth.CheckWorkbasket(ctx, s.tx, domain.RefByID(t.WorkbasketID), domain.PermAppend)
		if err != nil {
			return err
		}
		if wb.MarkedForDeletion {
			return apperr.Invalidf("workbasket %s is marked for deletion", wb.ID)
		}
		if t.State == "" {
			t.State = domain.TaskReady
		}
		t.State = strings.ToUpper(t.State)
		if !domain.ValidTaskState(t.State) {
			return apperr.Invalidf("unknown task state %s", t.State)
		}
		if t.ID == "" {
			t.ID = newID(PrefixTask)
		}
		t.Created = e.now()
		return wrap("insert task", e.Repo.InsertTaskTx(ctx, s.tx, t))
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask removes a task in a terminal state. When it was the last task
// of a workbasket marked for deletion, that workbasket is deleted in the
// same transaction and true is returned.
func (e Engine) DeleteTask(ctx context.Context, id string) (bool, error) {
	var workbasketDeleted bool
	err := e.run(ctx, "delete_task", func(s *scope) error {
		if err := e.Auth.RequireRole(ctx, domain.RoleAdmin); err != nil {
			return err
		}
		t, err := e.Repo.GetTaskTx(ctx, s.tx, id)
		if err != nil {
			return mapNotFound(err, func() error { return apperr.TaskNotFound(id) })
		}
		if !domain.IsTerminalTaskState(t.State) {
			return apperr.Invalidf("task %s is in state %s; only %s tasks can be deleted", t.ID, t.State, strings.Join(domain.TerminalTaskStates, ","))
		}
		if err := e.Repo.DeleteTaskTx(ctx, s.tx, id); err != nil {
			return mapNotFound(err, func() error { return apperr.TaskNotFound(id) })
		}
		wb, err := s.workbasket(ctx, t.WorkbasketID)
		if err != nil {
			return err
		}
		if !wb.MarkedForDeletion {
			return nil
		}
		remaining, err := e.Repo.CountTasksTx(ctx, s.tx, wb.ID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		workbasketDeleted, err = s.deleteWorkbasket(ctx, wb.ID)
		return err
	})
	if err != nil {
		return false, err
	}
	return workbasketDeleted, nil
}

// TaskCounts returns the number of tasks per state on a readable workbasket.
func (e Engine) TaskCounts(ctx context.Context, workbasketID string) (map[string]int, error) {
	var counts map[string]int
	err := e.run(ctx, "task_counts", func(s *scope) error {
		if _, err := e.Auth.CheckWorkbasket(ctx, s.tx, domain.RefByID(workbasketID), domain.PermRead); err != nil {
			return err
		}
		var err error
		counts, err = e.Repo.CountTasksByStateTx(ctx, s.tx, workbasketID)
		return err
	})
	return counts, err
}
