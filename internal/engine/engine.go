package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"workbasket/internal/apperr"
	"workbasket/internal/config"
	"workbasket/internal/domain"
	"workbasket/internal/engine/auth"
	"workbasket/internal/events"
	"workbasket/internal/metrics"
	"workbasket/internal/repo"
)

// ID prefixes.
const (
	PrefixWorkbasket   = "WBI:"
	PrefixAccessItem   = "WAI:"
	PrefixHistoryEvent = "WBH:"
	PrefixTask         = "TKI:"
)

// Engine is the public surface over workbaskets, their access items and
// their distribution targets. Every exported operation runs in one
// transaction.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Auth      auth.Checker
	Events    events.Sink
	Publisher events.Publisher
	Config    config.Config
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg config.Config) Engine {
	r := repo.Repo{DB: db}
	var sink events.Sink = events.Writer{Repo: r}
	if !cfg.History.Enabled {
		sink = events.Disabled{}
	}
	return Engine{
		DB:        db,
		Repo:      r,
		Auth:      auth.Checker{Repo: r, Config: cfg},
		Events:    sink,
		Publisher: events.NopPublisher{},
		Config:    cfg,
		Logger:    slog.Default(),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func newID(prefix string) string {
	return prefix + uuid.NewString()
}

// scope is the state of one operation's transaction.
type scope struct {
	e       Engine
	tx      *sql.Tx
	pending []domain.AuditEvent
}

// run executes fn in a transaction, records the outcome and hands the
// events written by fn to the publisher once the commit succeeded.
func (e Engine) run(ctx context.Context, op string, fn func(s *scope) error) error {
	start := time.Now()
	err := e.runTx(ctx, op, fn)
	e.Metrics.Operation(ctx, op, err, time.Since(start))
	return err
}

func (e Engine) runTx(ctx context.Context, op string, fn func(s *scope) error) error {
	log := e.logger().With("op", op, "user", auth.Principal(ctx).UserID())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s := &scope{e: e, tx: tx}
	if err := fn(s); err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			log.ErrorContext(ctx, "operation failed", "err", err)
		} else {
			log.DebugContext(ctx, "operation rejected", "kind", apperr.KindOf(err).String(), "err", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		log.ErrorContext(ctx, "commit failed", "err", err)
		return err
	}
	if len(s.pending) > 0 && e.Publisher != nil {
		if err := e.Publisher.Publish(ctx, s.pending...); err != nil {
			log.WarnContext(ctx, "publish history events", "count", len(s.pending), "err", err)
		}
	}
	for _, evt := range s.pending {
		log.InfoContext(ctx, evt.Type, "workbasket_id", evt.WorkbasketID, "event_id", evt.ID)
	}
	return nil
}

// emit writes one history event for wb inside the scope's transaction.
func (s *scope) emit(ctx context.Context, evtType string, wb domain.Workbasket, details string) error {
	if s.e.Events == nil || !s.e.Events.Enabled() {
		return nil
	}
	evt := domain.AuditEvent{
		ID:             newID(PrefixHistoryEvent),
		Type:           evtType,
		Created:        s.e.now(),
		UserID:         auth.Principal(ctx).UserID(),
		WorkbasketID:   wb.ID,
		WorkbasketKey:  wb.Key,
		Domain:         wb.Domain,
		WorkbasketType: wb.Type,
		Owner:          wb.Owner,
		Details:        details,
	}
	if err := s.e.Events.Append(ctx, s.tx, evt); err != nil {
		return err
	}
	s.pending = append(s.pending, evt)
	return nil
}

func (s *scope) auditing() bool {
	return s.e.Events != nil && s.e.Events.Enabled()
}

// requireAdmin is the role gate on every mutation.
func (e Engine) requireAdmin(ctx context.Context) error {
	return e.Auth.RequireRole(ctx, domain.RoleBusinessAdmin, domain.RoleAdmin)
}

// mapNotFound converts a repo miss into the typed error made by notFound.
func mapNotFound(err error, notFound func() error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound()
	}
	return err
}

func (s *scope) workbasket(ctx context.Context, id string) (domain.Workbasket, error) {
	wb, err := s.e.Repo.GetWorkbasketTx(ctx, s.tx, id)
	if err != nil {
		return wb, mapNotFound(err, func() error { return apperr.WorkbasketNotFound(id) })
	}
	return wb, nil
}

func wrap(op string, err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
