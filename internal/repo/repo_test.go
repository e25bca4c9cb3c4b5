package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbasket/internal/db"
	"workbasket/internal/domain"
	"workbasket/internal/migrate"
	"workbasket/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	return repo.Repo{DB: conn}
}

func seedWorkbasket(t *testing.T, r repo.Repo, id, key string) domain.Workbasket {
	t.Helper()
	now := time.Date(2024, 3, 1, 10, 0, 0, 123456789, time.UTC)
	w := domain.Workbasket{ID: id, Key: key, Domain: "DOMAIN_A", Name: key, Type: domain.TypeGroup, Created: now, Modified: now}
	require.NoError(t, r.InsertWorkbasketTx(context.Background(), nil, w))
	return w
}

func TestWorkbasketRoundTripKeepsTimestamps(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	w := seedWorkbasket(t, r, "WBI:1", "K1")

	got, err := r.GetWorkbasket(ctx, "WBI:1")
	require.NoError(t, err)
	assert.True(t, got.Modified.Equal(w.Modified))
	assert.Equal(t, "", got.Description)

	byKey, err := r.GetWorkbasketByKeyTx(ctx, nil, "K1", "DOMAIN_A")
	require.NoError(t, err)
	assert.Equal(t, "WBI:1", byKey.ID)

	_, err = r.GetWorkbasketByKeyTx(ctx, nil, "K1", "DOMAIN_B")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	got.Description = "updated"
	got.MarkedForDeletion = true
	require.NoError(t, r.UpdateWorkbasketTx(ctx, nil, got))
	got, err = r.GetWorkbasket(ctx, "WBI:1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)
	assert.True(t, got.MarkedForDeletion)

	assert.ErrorIs(t, r.UpdateWorkbasketTx(ctx, nil, domain.Workbasket{ID: "WBI:missing", Name: "x", Type: domain.TypeGroup}), repo.ErrNotFound)
}

func TestDuplicateKeyDomainRejected(t *testing.T) {
	r := newRepo(t)
	seedWorkbasket(t, r, "WBI:1", "K1")
	now := time.Now().UTC()
	err := r.InsertWorkbasketTx(context.Background(), nil, domain.Workbasket{ID: "WBI:2", Key: "K1", Domain: "DOMAIN_A", Name: "n", Type: domain.TypeGroup, Created: now, Modified: now})
	assert.Error(t, err)
}

func TestAccessItemsJoinWorkbasketKey(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedWorkbasket(t, r, "WBI:1", "K1")
	seedWorkbasket(t, r, "WBI:2", "K2")
	require.NoError(t, r.InsertAccessItemTx(ctx, nil, domain.AccessItem{ID: "WAI:1", WorkbasketID: "WBI:1", AccessID: "user-1", Permissions: domain.Perms(domain.PermRead)}))
	require.NoError(t, r.InsertAccessItemTx(ctx, nil, domain.AccessItem{ID: "WAI:2", WorkbasketID: "WBI:1", AccessID: "group-1", Permissions: domain.Perms(domain.PermAppend)}))
	require.NoError(t, r.InsertAccessItemTx(ctx, nil, domain.AccessItem{ID: "WAI:3", WorkbasketID: "WBI:2", AccessID: "user-1", Permissions: domain.Perms(domain.PermOpen)}))

	items, err := r.ListAccessItemsByWorkbasketTx(ctx, nil, "WBI:1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "K1", items[0].WorkbasketKey)

	grants, err := r.ListGrantsTx(ctx, nil, "WBI:1", []string{"user-1", "group-1"})
	require.NoError(t, err)
	assert.Len(t, grants, 2)

	exists, err := r.AccessItemExistsTx(ctx, nil, "WBI:2", "user-1")
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := r.DeleteAccessItemsForAccessIDTx(ctx, nil, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDistributionEdges(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedWorkbasket(t, r, "WBI:1", "K1")
	seedWorkbasket(t, r, "WBI:2", "K2")
	require.NoError(t, r.InsertDistributionTargetTx(ctx, nil, "WBI:1", "WBI:2"))
	require.NoError(t, r.InsertDistributionTargetTx(ctx, nil, "WBI:1", "WBI:1"))

	n, err := r.CountDistributionTargetTx(ctx, nil, "WBI:1", "WBI:2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	targets, err := r.ListDistributionTargetsTx(ctx, nil, "WBI:1")
	require.NoError(t, err)
	assert.Len(t, targets, 2)

	sources, err := r.ListSourceIDsTx(ctx, nil, "WBI:2")
	require.NoError(t, err)
	assert.Equal(t, []string{"WBI:1"}, sources)

	removed, err := r.DeleteDistributionTargetTx(ctx, nil, "WBI:1", "WBI:2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	removed, err = r.DeleteDistributionTargetTx(ctx, nil, "WBI:1", "WBI:2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestCountTasksExcludingTerminal(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seedWorkbasket(t, r, "WBI:1", "K1")
	now := time.Now().UTC()
	require.NoError(t, r.InsertTaskTx(ctx, nil, domain.Task{ID: "TKI:1", WorkbasketID: "WBI:1", State: domain.TaskReady, Created: now}))
	require.NoError(t, r.InsertTaskTx(ctx, nil, domain.Task{ID: "TKI:2", WorkbasketID: "WBI:1", State: domain.TaskCompleted, Created: now}))

	open, err := r.CountTasksTx(ctx, nil, "WBI:1", domain.TerminalTaskStates...)
	require.NoError(t, err)
	assert.Equal(t, 1, open)
	all, err := r.CountTasksTx(ctx, nil, "WBI:1")
	require.NoError(t, err)
	assert.Equal(t, 2, all)

	byState, err := r.CountTasksByStateTx(ctx, nil, "WBI:1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{domain.TaskReady: 1, domain.TaskCompleted: 1}, byState)
}

func TestHistoryAfterSeq(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"WBH:1", "WBH:2", "WBH:3"} {
		require.NoError(t, r.InsertHistoryEventTx(ctx, nil, domain.AuditEvent{ID: id, Type: domain.EventWorkbasketCreated, Created: now, UserID: "u", WorkbasketID: "WBI:1"}))
	}
	all, err := r.ListHistory(ctx, repo.HistoryFilters{WorkbasketID: "WBI:1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	rest, err := r.ListHistory(ctx, repo.HistoryFilters{AfterSeq: all[0].Seq})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.Equal(t, "WBH:2", rest[0].Event.ID)
}
