package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbasket/internal/config"
	"workbasket/internal/db"
	"workbasket/internal/domain"
	"workbasket/internal/migrate"
	"workbasket/internal/repo"
)

func TestWriterAppendsInsideTransaction(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	r := repo.Repo{DB: conn}
	w := Writer{Repo: r}
	require.True(t, w.Enabled())

	evt := domain.AuditEvent{ID: "WBH:1", Type: domain.EventWorkbasketCreated, Created: time.Now().UTC(), UserID: "admin", WorkbasketID: "WBI:1"}

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, tx, evt))
	require.NoError(t, tx.Rollback())
	got, err := r.ListHistory(ctx, repo.HistoryFilters{})
	require.NoError(t, err)
	assert.Empty(t, got)

	tx, err = conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, tx, evt))
	require.NoError(t, tx.Commit())
	got, err = r.ListHistory(ctx, repo.HistoryFilters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "WBH:1", got[0].Event.ID)

	assert.Error(t, w.Append(ctx, nil, domain.AuditEvent{}))
}

func TestDisabledSink(t *testing.T) {
	var s Sink = Disabled{}
	assert.False(t, s.Enabled())
	assert.NoError(t, s.Append(context.Background(), nil, domain.AuditEvent{}))
}

func TestRedisPublisherRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	pub, err := NewRedisPublisher(&redis.Options{Addr: mr.Addr()}, "workbasket:history")
	require.NoError(t, err)
	defer pub.Close()
	ctx := context.Background()
	require.NoError(t, pub.Ping(ctx))

	sub, err := pub.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	evt := domain.AuditEvent{ID: "WBH:1", Type: domain.EventDistributionTargetAdded, UserID: "admin", WorkbasketID: "WBI:1", Details: `{"changes":[]}`}
	require.NoError(t, pub.Publish(ctx, evt))

	select {
	case got := <-sub.Events():
		assert.Equal(t, evt.ID, got.ID)
		assert.Equal(t, evt.Type, got.Type)
		assert.Equal(t, evt.Details, got.Details)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNewRedisPublisherRequiresChannel(t *testing.T) {
	_, err := NewRedisPublisher(&redis.Options{Addr: "localhost:0"}, "")
	assert.Error(t, err)
}

func TestWebhookPublisherFiltersAndSigns(t *testing.T) {
	var got []domain.AuditEvent
	var secrets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt domain.AuditEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got = append(got, evt)
		secrets = append(secrets, r.Header.Get("X-Workbasket-Secret"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	off := false
	pub := NewWebhookPublisher([]config.Webhook{
		{URL: srv.URL, Events: []string{domain.EventWorkbasketDeleted}, Secret: "s3cret"},
		{URL: srv.URL, Enabled: &off},
		{URL: ""},
	})
	require.Equal(t, 1, pub.Len())

	err := pub.Publish(context.Background(),
		domain.AuditEvent{ID: "WBH:1", Type: domain.EventWorkbasketCreated},
		domain.AuditEvent{ID: "WBH:2", Type: domain.EventWorkbasketDeleted},
	)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "WBH:2", got[0].ID)
	assert.Equal(t, []string{"s3cret"}, secrets)
}

func TestWebhookPublisherReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var calls int
	fan := Fanout{
		NewWebhookPublisher([]config.Webhook{{URL: srv.URL}}),
		publisherFunc(func(context.Context, ...domain.AuditEvent) error { calls++; return nil }),
	}
	err := fan.Publish(context.Background(), domain.AuditEvent{ID: "WBH:1", Type: domain.EventWorkbasketCreated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, 1, calls)
}

type publisherFunc func(context.Context, ...domain.AuditEvent) error

func (f publisherFunc) Publish(ctx context.Context, evts ...domain.AuditEvent) error {
	return f(ctx, evts...)
}
