package domain

import "time"

// Workbasket is a named queue of tasks scoped to a domain.
type Workbasket struct {
	ID                string    `json:"id"`
	Key               string    `json:"key"`
	Domain            string    `json:"domain"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Owner             string    `json:"owner,omitempty"`
	Type              string    `json:"type"`
	OrgLevel1         string    `json:"orgLevel1,omitempty"`
	OrgLevel2         string    `json:"orgLevel2,omitempty"`
	OrgLevel3         string    `json:"orgLevel3,omitempty"`
	OrgLevel4         string    `json:"orgLevel4,omitempty"`
	Custom1           string    `json:"custom1,omitempty"`
	Custom2           string    `json:"custom2,omitempty"`
	Custom3           string    `json:"custom3,omitempty"`
	Custom4           string    `json:"custom4,omitempty"`
	Custom5           string    `json:"custom5,omitempty"`
	Custom6           string    `json:"custom6,omitempty"`
	Custom7           string    `json:"custom7,omitempty"`
	Custom8           string    `json:"custom8,omitempty"`
	Created           time.Time `json:"created"`
	Modified          time.Time `json:"modified"`
	MarkedForDeletion bool      `json:"markedForDeletion"`
}

// NewWorkbasket returns an unsaved workbasket carrying only its identity.
func NewWorkbasket(key, domain string) Workbasket {
	return Workbasket{Key: key, Domain: domain}
}

// Summary returns the identifying subset used by list operations.
func (w Workbasket) Summary() WorkbasketSummary {
	return WorkbasketSummary{
		ID:                w.ID,
		Key:               w.Key,
		Domain:            w.Domain,
		Name:              w.Name,
		Type:              w.Type,
		Owner:             w.Owner,
		MarkedForDeletion: w.MarkedForDeletion,
	}
}

type WorkbasketSummary struct {
	ID                string `json:"id"`
	Key               string `json:"key"`
	Domain            string `json:"domain"`
	Name              string `json:"name"`
	Type              string `json:"type"`
	Owner             string `json:"owner,omitempty"`
	MarkedForDeletion bool   `json:"markedForDeletion"`
}

// Workbasket types.
const (
	TypeGroup     = "GROUP"
	TypePersonal  = "PERSONAL"
	TypeTopic     = "TOPIC"
	TypeClearance = "CLEARANCE"
)

var WorkbasketTypes = []string{TypeGroup, TypePersonal, TypeTopic, TypeClearance}

func ValidWorkbasketType(t string) bool {
	for _, v := range WorkbasketTypes {
		if v == t {
			return true
		}
	}
	return false
}

// WorkbasketRef addresses a workbasket either by id or by key and domain.
type WorkbasketRef struct {
	ID     string
	Key    string
	Domain string
}

func RefByID(id string) WorkbasketRef { return WorkbasketRef{ID: id} }

func RefByKey(key, domain string) WorkbasketRef { return WorkbasketRef{Key: key, Domain: domain} }

func (r WorkbasketRef) String() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Key + "@" + r.Domain
}

// AccessItem grants one access id a permission set on one workbasket.
type AccessItem struct {
	ID            string     `json:"id"`
	WorkbasketID  string     `json:"workbasketId"`
	WorkbasketKey string     `json:"workbasketKey,omitempty"`
	AccessID      string     `json:"accessId"`
	AccessName    string     `json:"accessName,omitempty"`
	Permissions   Permission `json:"permissions"`
}

type DistributionEdge struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
}

// Task states.
const (
	TaskReady          = "READY"
	TaskClaimed        = "CLAIMED"
	TaskReadyForReview = "READY_FOR_REVIEW"
	TaskInReview       = "IN_REVIEW"
	TaskCompleted      = "COMPLETED"
	TaskCancelled      = "CANCELLED"
	TaskTerminated     = "TERMINATED"
)

var TaskStates = []string{TaskReady, TaskClaimed, TaskReadyForReview, TaskInReview, TaskCompleted, TaskCancelled, TaskTerminated}

// TerminalTaskStates are the states that no longer block workbasket deletion.
var TerminalTaskStates = []string{TaskCompleted, TaskCancelled, TaskTerminated}

func ValidTaskState(s string) bool {
	for _, v := range TaskStates {
		if v == s {
			return true
		}
	}
	return false
}

func IsTerminalTaskState(s string) bool {
	for _, v := range TerminalTaskStates {
		if v == s {
			return true
		}
	}
	return false
}

// Task is only tracked as far as it references a workbasket.
type Task struct {
	ID           string    `json:"id"`
	WorkbasketID string    `json:"workbasketId"`
	Name         string    `json:"name,omitempty"`
	State        string    `json:"state"`
	Created      time.Time `json:"created"`
}

// AuditEvent is the immutable history record of one workbasket mutation.
type AuditEvent struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Created        time.Time `json:"created"`
	UserID         string    `json:"userId"`
	WorkbasketID   string    `json:"workbasketId"`
	WorkbasketKey  string    `json:"workbasketKey"`
	Domain         string    `json:"domain"`
	WorkbasketType string    `json:"workbasketType,omitempty"`
	Owner          string    `json:"owner,omitempty"`
	Details        string    `json:"details,omitempty"`
}

// Audit event types.
const (
	EventWorkbasketCreated           = "workbasket.created"
	EventWorkbasketUpdated           = "workbasket.updated"
	EventWorkbasketMarkedForDeletion = "workbasket.marked_for_deletion"
	EventWorkbasketDeleted           = "workbasket.deleted"
	EventAccessItemCreated           = "workbasket.access_item.created"
	EventAccessItemUpdated           = "workbasket.access_item.updated"
	EventAccessItemDeleted           = "workbasket.access_item.deleted"
	EventAccessItemsUpdated          = "workbasket.access_items.updated"
	EventAccessItemDeletedForAccess  = "workbasket.access_item.deleted_for_access_id"
	EventDistributionTargetAdded     = "workbasket.distribution_target.added"
	EventDistributionTargetRemoved   = "workbasket.distribution_target.removed"
	EventDistributionTargetsUpdated  = "workbasket.distribution_targets.updated"
)
