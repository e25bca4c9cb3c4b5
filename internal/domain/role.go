package domain

import "fmt"

// Role is one of the closed set of engine roles.
type Role string

const (
	RoleUser          Role = "user"
	RoleBusinessAdmin Role = "business_admin"
	RoleAdmin         Role = "admin"
	RoleTaskAdmin     Role = "task_admin"
	RoleMonitor       Role = "monitor"
	RoleTaskRouter    Role = "task_router"
)

var Roles = []Role{RoleUser, RoleBusinessAdmin, RoleAdmin, RoleTaskAdmin, RoleMonitor, RoleTaskRouter}

func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}
