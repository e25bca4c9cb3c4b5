package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionNamesInBitOrder(t *testing.T) {
	p := Perms(PermAppend, PermRead, PermCustom12)
	assert.Equal(t, []string{"READ", "APPEND", "CUSTOM_12"}, p.Names())
	assert.Equal(t, "READ,APPEND,CUSTOM_12", p.String())
	assert.Equal(t, 19, len(AllPermissions.Names()))
}

func TestPermissionHas(t *testing.T) {
	granted := Perms(PermRead, PermAppend, PermTransfer)
	assert.True(t, granted.Has(PermRead))
	assert.True(t, granted.Has(Perms(PermRead, PermAppend)))
	assert.False(t, granted.Has(Perms(PermRead, PermDistribute)))
	assert.True(t, granted.Has(0))
}

func TestParsePermissions(t *testing.T) {
	p, err := ParsePermissions("read, append", "custom_3")
	require.NoError(t, err)
	assert.Equal(t, Perms(PermRead, PermAppend, PermCustom3), p)

	_, err = ParsePermissions("READ,FLY")
	assert.Error(t, err)
}

func TestPermissionJSON(t *testing.T) {
	item := AccessItem{ID: "WAI:1", WorkbasketID: "WBI:1", AccessID: "user-1", Permissions: Perms(PermRead, PermOpen)}
	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"permissions":["READ","OPEN"]`)

	var back AccessItem
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, item.Permissions, back.Permissions)
}

func TestTerminalTaskStates(t *testing.T) {
	assert.True(t, IsTerminalTaskState(TaskCompleted))
	assert.True(t, IsTerminalTaskState(TaskCancelled))
	assert.True(t, IsTerminalTaskState(TaskTerminated))
	assert.False(t, IsTerminalTaskState(TaskReady))
	assert.False(t, IsTerminalTaskState(TaskClaimed))
}
