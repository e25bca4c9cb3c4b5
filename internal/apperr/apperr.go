// Package apperr defines the typed failures returned by the workbasket engine.
// Callers branch on Kind rather than on concrete types or messages.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindAlreadyExists
	KindNotAuthorized
	KindNotAuthorizedOnResource
	KindConcurrency
	KindInUse
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindNotAuthorized:
		return "not_authorized"
	case KindNotAuthorizedOnResource:
		return "not_authorized_on_resource"
	case KindConcurrency:
		return "concurrency"
	case KindInUse:
		return "in_use"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "internal"
	}
}

type kinded interface {
	Kind() Kind
}

// KindOf reports the kind of the first typed error in err's chain.
func KindOf(err error) Kind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// NotFoundError reports a missing workbasket, access item or task.
type NotFoundError struct {
	Entity string
	ID     string
	Key    string
	Domain string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s with key %s in domain %s not found", e.Entity, e.Key, e.Domain)
}

func (e *NotFoundError) Kind() Kind { return KindNotFound }

func WorkbasketNotFound(id string) error {
	return &NotFoundError{Entity: "workbasket", ID: id}
}

func WorkbasketNotFoundByKey(key, domain string) error {
	return &NotFoundError{Entity: "workbasket", Key: key, Domain: domain}
}

func AccessItemNotFound(id string) error {
	return &NotFoundError{Entity: "access item", ID: id}
}

func TaskNotFound(id string) error {
	return &NotFoundError{Entity: "task", ID: id}
}

// AlreadyExistsError reports a duplicate workbasket key/domain or access item.
type AlreadyExistsError struct {
	Msg string
}

func (e *AlreadyExistsError) Error() string { return e.Msg }

func (e *AlreadyExistsError) Kind() Kind { return KindAlreadyExists }

func WorkbasketAlreadyExists(key, domain string) error {
	return &AlreadyExistsError{Msg: fmt.Sprintf("workbasket with key %s already exists in domain %s", key, domain)}
}

func AccessItemAlreadyExists(accessID, workbasketID string) error {
	return &AlreadyExistsError{Msg: fmt.Sprintf("access item for access id %s already exists on workbasket %s", accessID, workbasketID)}
}

// NotAuthorizedError means the principal lacks every accepted role.
type NotAuthorizedError struct {
	UserID string
	Roles  []string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("user %s is not in any of the roles [%s]", e.UserID, strings.Join(e.Roles, ","))
}

func (e *NotAuthorizedError) Kind() Kind { return KindNotAuthorized }

// NotAuthorizedOnWorkbasketError means the principal holds no sufficient grant
// on one specific workbasket.
type NotAuthorizedOnWorkbasketError struct {
	UserID      string
	Workbasket  string
	Permissions []string
}

func (e *NotAuthorizedOnWorkbasketError) Error() string {
	return fmt.Sprintf("user %s lacks permissions [%s] on workbasket %s", e.UserID, strings.Join(e.Permissions, ","), e.Workbasket)
}

func (e *NotAuthorizedOnWorkbasketError) Kind() Kind { return KindNotAuthorizedOnResource }

// ConcurrencyError is raised when an update carries a stale modified timestamp.
type ConcurrencyError struct {
	ID string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("workbasket %s was modified concurrently; reload and retry", e.ID)
}

func (e *ConcurrencyError) Kind() Kind { return KindConcurrency }

// InUseError is raised when non-terminal tasks still reference a workbasket.
type InUseError struct {
	ID    string
	Tasks int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("workbasket %s is referenced by %d open task(s)", e.ID, e.Tasks)
}

func (e *InUseError) Kind() Kind { return KindInUse }

// InvalidArgumentError covers missing fields, unknown domains and malformed ids.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string { return e.Msg }

func (e *InvalidArgumentError) Kind() Kind { return KindInvalidArgument }

func Invalidf(format string, args ...any) error {
	return &InvalidArgumentError{Msg: fmt.Sprintf(format, args...)}
}
