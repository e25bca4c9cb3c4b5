package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("update: %w", &ConcurrencyError{ID: "WBI:1"})
	assert.Equal(t, KindConcurrency, KindOf(err))
	assert.True(t, Is(err, KindConcurrency))
	assert.False(t, Is(err, KindNotFound))

	var ce *ConcurrencyError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, "WBI:1", ce.ID)
}

func TestKindOfUntypedIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindInternal))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "workbasket WBI:9 not found", WorkbasketNotFound("WBI:9").Error())
	assert.Equal(t, "workbasket with key K1 in domain DOMAIN_A not found", WorkbasketNotFoundByKey("K1", "DOMAIN_A").Error())
	assert.Equal(t, KindAlreadyExists, KindOf(WorkbasketAlreadyExists("K1", "DOMAIN_A")))
	assert.Equal(t, KindInvalidArgument, KindOf(Invalidf("name is required")))
	err := &NotAuthorizedOnWorkbasketError{UserID: "u1", Workbasket: "WBI:1", Permissions: []string{"READ", "APPEND"}}
	assert.Equal(t, "user u1 lacks permissions [READ,APPEND] on workbasket WBI:1", err.Error())
	assert.Equal(t, "not_authorized_on_resource", KindOf(err).String())
}
