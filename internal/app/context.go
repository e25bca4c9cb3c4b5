package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"workbasket/internal/config"
	"workbasket/internal/db"
	"workbasket/internal/engine"
	"workbasket/internal/events"
	"workbasket/internal/identity"
	"workbasket/internal/metrics"
	"workbasket/internal/migrate"
)

// Options select the workspace and the ambient collaborators of the engine.
type Options struct {
	Workspace string
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

// Workspace is an engine opened on a workspace database. Close releases the
// database and the history publisher.
type Workspace struct {
	Engine  engine.Engine
	Config  *config.Config
	closers []func() error
}

// Open loads workbasket.yml (falling back to the defaults), opens and
// migrates the database and builds the engine. Committed history events are
// also published to Redis and to webhooks when those are configured.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	w := &Workspace{Config: cfg, closers: []func() error{conn.Close}}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		w.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, *cfg)
	if opts.Logger != nil {
		e.Logger = opts.Logger
	}
	e.Metrics = opts.Metrics
	var pubs events.Fanout
	if addr := strings.TrimSpace(cfg.History.Redis.Addr); addr != "" {
		pub, err := events.NewRedisPublisher(&redis.Options{Addr: addr}, cfg.History.Redis.Channel)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.closers = append(w.closers, pub.Close)
		pubs = append(pubs, pub)
	}
	if hooks := events.NewWebhookPublisher(cfg.History.Webhooks); hooks.Len() > 0 {
		pubs = append(pubs, hooks)
	}
	switch len(pubs) {
	case 0:
	case 1:
		e.Publisher = pubs[0]
	default:
		e.Publisher = pubs
	}
	w.Engine = e
	return w, nil
}

// Publisher returns the Redis publisher when one is configured.
func (w *Workspace) Publisher() (*events.RedisPublisher, bool) {
	switch p := w.Engine.Publisher.(type) {
	case *events.RedisPublisher:
		return p, true
	case events.Fanout:
		for _, inner := range p {
			if pub, ok := inner.(*events.RedisPublisher); ok {
				return pub, true
			}
		}
	}
	return nil, false
}

func (w *Workspace) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	return errors.Join(errs...)
}

// Caller describes who runs a command: explicit ids, or a bearer token that
// takes precedence over them.
type Caller struct {
	User      string
	Groups    []string
	Token     string
	JWTSecret string
}

// WithCaller resolves the caller against the workspace config and attaches
// the principal to ctx. An empty caller leaves ctx anonymous.
func (w *Workspace) WithCaller(ctx context.Context, c Caller) (context.Context, error) {
	resolver := identity.Resolver{Config: *w.Config}
	switch {
	case strings.TrimSpace(c.Token) != "":
		p, err := resolver.FromToken(c.Token, c.JWTSecret)
		if err != nil {
			return ctx, fmt.Errorf("bearer token: %w", err)
		}
		return identity.WithPrincipal(ctx, p), nil
	case strings.TrimSpace(c.User) != "":
		return identity.WithPrincipal(ctx, resolver.Resolve(c.User, c.Groups...)), nil
	default:
		return ctx, nil
	}
}
