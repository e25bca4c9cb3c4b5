package events

import (
	"context"
	"database/sql"
	"fmt"

	"workbasket/internal/domain"
	"workbasket/internal/repo"
)

// Sink receives history events inside the transaction of the mutation
// they describe.
type Sink interface {
	Enabled() bool
	Append(ctx context.Context, tx *sql.Tx, evt domain.AuditEvent) error
}

// Writer stores events in the workbasket_history_events table.
type Writer struct {
	Repo repo.Repo
}

func (w Writer) Enabled() bool { return true }

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evt domain.AuditEvent) error {
	if evt.ID == "" || evt.Type == "" {
		return fmt.Errorf("history event requires id and type")
	}
	if err := w.Repo.InsertHistoryEventTx(ctx, tx, evt); err != nil {
		return fmt.Errorf("append %s: %w", evt.Type, err)
	}
	return nil
}

// Disabled drops every event.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Append(context.Context, *sql.Tx, domain.AuditEvent) error { return nil }
