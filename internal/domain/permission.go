package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Permission is a bitset of workbasket permissions.
type Permission uint32

const (
	PermRead Permission = 1 << iota
	PermReadTasks
	PermEditTasks
	PermOpen
	PermAppend
	PermTransfer
	PermDistribute
	PermCustom1
	PermCustom2
	PermCustom3
	PermCustom4
	PermCustom5
	PermCustom6
	PermCustom7
	PermCustom8
	PermCustom9
	PermCustom10
	PermCustom11
	PermCustom12
)

// permissionNames is in bit order.
var permissionNames = []string{
	"READ", "READTASKS", "EDITTASKS", "OPEN", "APPEND", "TRANSFER", "DISTRIBUTE",
	"CUSTOM_1", "CUSTOM_2", "CUSTOM_3", "CUSTOM_4", "CUSTOM_5", "CUSTOM_6",
	"CUSTOM_7", "CUSTOM_8", "CUSTOM_9", "CUSTOM_10", "CUSTOM_11", "CUSTOM_12",
}

// AllPermissions has every defined bit set.
const AllPermissions Permission = 1<<19 - 1

// Perms folds individual permissions into one set.
func Perms(ps ...Permission) Permission {
	var out Permission
	for _, p := range ps {
		out |= p
	}
	return out
}

func (p Permission) Has(other Permission) bool {
	return p&other == other
}

func (p Permission) IsEmpty() bool { return p == 0 }

// Names lists the set permissions in declaration order.
func (p Permission) Names() []string {
	names := []string{}
	for i, name := range permissionNames {
		if p&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	return names
}

func (p Permission) String() string {
	return strings.Join(p.Names(), ",")
}

// ParsePermission resolves one permission name, case-insensitively.
func ParsePermission(name string) (Permission, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for i, candidate := range permissionNames {
		if candidate == n {
			return 1 << uint(i), nil
		}
	}
	return 0, fmt.Errorf("unknown permission %q", name)
}

// ParsePermissions accepts names or a single comma separated list.
func ParsePermissions(names ...string) (Permission, error) {
	var out Permission
	for _, raw := range names {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			p, err := ParsePermission(part)
			if err != nil {
				return 0, err
			}
			out |= p
		}
	}
	return out, nil
}

func (p Permission) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Names())
}

func (p *Permission) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParsePermissions(names...)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
