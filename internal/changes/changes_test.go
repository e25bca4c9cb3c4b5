package changes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbasket/internal/domain"
)

func TestDiffDeclarationOrderAndEmptyRendering(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	newWB := domain.Workbasket{ID: "WBI:1", Key: "K1", Domain: "DOMAIN_A", Name: "Basket", Type: domain.TypeGroup, Created: created, Modified: created}

	got, err := Diff(domain.Workbasket{}, newWB)
	require.NoError(t, err)
	assert.Equal(t, `{"changes":[`+
		`{"fieldName":"id","oldValue":"","newValue":"WBI:1"},`+
		`{"fieldName":"key","oldValue":"","newValue":"K1"},`+
		`{"fieldName":"domain","oldValue":"","newValue":"DOMAIN_A"},`+
		`{"fieldName":"name","oldValue":"","newValue":"Basket"},`+
		`{"fieldName":"type","oldValue":"","newValue":"GROUP"},`+
		`{"fieldName":"created","oldValue":"","newValue":"2024-05-01T08:00:00Z"},`+
		`{"fieldName":"modified","oldValue":"","newValue":"2024-05-01T08:00:00Z"}]}`, got)
}

func TestDiffIsDeterministic(t *testing.T) {
	a := domain.Workbasket{ID: "WBI:1", Name: "a", Custom3: "x", Owner: "o"}
	b := domain.Workbasket{ID: "WBI:1", Name: "b", Custom3: "", Owner: "p", MarkedForDeletion: true}
	first, err := Diff(a, b)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Diff(a, b)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	list, err := Parse(first)
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.FieldName)
	}
	assert.Equal(t, []string{"name", "owner", "custom3", "markedForDeletion"}, names)
}

func TestDiffTimestampsCompareByInstant(t *testing.T) {
	utc := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("X", 3600))
	got, err := Diff(domain.Workbasket{Modified: utc}, domain.Workbasket{Modified: local})
	require.NoError(t, err)
	assert.Equal(t, `{"changes":[]}`, got)
}

func TestDiffRemovedAccessItem(t *testing.T) {
	item := domain.AccessItem{ID: "WAI:1", WorkbasketID: "WBI:1", AccessID: "user-1", Permissions: domain.Perms(domain.PermRead, domain.PermOpen)}
	list, err := Compute(item, nil)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, Change{FieldName: "permissions", OldValue: "READ,OPEN", NewValue: ""}, list[3])
}

func TestDiffRejectsMismatchedTypes(t *testing.T) {
	_, err := Diff(domain.Workbasket{}, domain.AccessItem{})
	assert.Error(t, err)
	_, err = Diff("a", "b")
	assert.Error(t, err)
}

func TestDiffSets(t *testing.T) {
	got, err := DiffSets("distributionTargets", []string{"WBI:b", "WBI:a"}, []string{"WBI:c"})
	require.NoError(t, err)
	assert.Equal(t, `{"changes":[{"fieldName":"distributionTargets","oldValue":"[\"WBI:a\",\"WBI:b\"]","newValue":"[\"WBI:c\"]"}]}`, got)

	same, err := DiffSets("distributionTargets", []string{"b", "a"}, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, `{"changes":[]}`, same)
}
