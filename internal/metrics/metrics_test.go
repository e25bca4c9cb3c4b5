package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbasket/internal/apperr"
)

func TestOperationCountsByOutcome(t *testing.T) {
	rec, reader, err := NewManual()
	require.NoError(t, err)
	ctx := context.Background()

	rec.Operation(ctx, "create_workbasket", nil, time.Millisecond)
	rec.Operation(ctx, "create_workbasket", nil, time.Millisecond)
	rec.Operation(ctx, "create_workbasket", &apperr.NotAuthorizedError{UserID: "u"}, time.Millisecond)
	rec.Operation(ctx, "delete_workbasket", &apperr.InUseError{ID: "WBI:1", Tasks: 1}, time.Millisecond)

	counts, err := Collect(ctx, reader)
	require.NoError(t, err)
	assert.Equal(t, []Count{
		{Name: denialsName, Operation: "create_workbasket", Outcome: "not_authorized", Value: 1},
		{Name: operationsName, Operation: "create_workbasket", Outcome: "not_authorized", Value: 1},
		{Name: operationsName, Operation: "create_workbasket", Outcome: "ok", Value: 2},
		{Name: operationsName, Operation: "delete_workbasket", Outcome: "in_use", Value: 1},
	}, counts)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() { rec.Operation(context.Background(), "x", nil, 0) })
}
