// Package events turns GitHub webhook deliveries into fixed-shape records.
package events

// Action classifies a normalized record.
type Action string

const (
	ActionPush        Action = "PUSH"
	ActionMerge       Action = "MERGE"
	ActionPullRequest Action = "PULL_REQUEST"
)

// Valid reports whether a is one of the actions a record may carry.
func (a Action) Valid() bool {
	switch a {
	case ActionPush, ActionMerge, ActionPullRequest:
		return true
	default:
		return false
	}
}

// Record is the normalized form of a push or pull request delivery.
// Nil pointers mean the delivery did not carry the field and are stored as null.
type Record struct {
	RequestID  *string `json:"request_id"`
	Author     *string `json:"author"`
	Action     Action  `json:"action"`
	FromBranch *string `json:"from_branch"`
	ToBranch   *string `json:"to_branch"`
	Timestamp  *string `json:"timestamp"`
}

// Fields returns the record as a flat map keyed by the JSON field names.
// Absent values are nil.
func (r Record) Fields() map[string]interface{} {
	return map[string]interface{}{
		"request_id":  deref(r.RequestID),
		"author":      deref(r.Author),
		"action":      string(r.Action),
		"from_branch": deref(r.FromBranch),
		"to_branch":   deref(r.ToBranch),
		"timestamp":   deref(r.Timestamp),
	}
}

func deref(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}
