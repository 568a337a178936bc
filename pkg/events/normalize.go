package events

import (
	"strings"
	"time"

	"github.com/go-playground/webhooks/v6/github"
	"github.com/tidwall/gjson"
)

// GeneratedTimestampLayout formats the UTC time substituted when a merged pull
// request carries no merged_at value.
const GeneratedTimestampLayout = "2006-01-02T15:04:05.000000"

// Normalizer converts deliveries into records. Now defaults to time.Now.
type Normalizer struct {
	Now func() time.Time
}

// Normalize converts a delivery using the wall clock.
func Normalize(eventType string, payload []byte) (*Record, error) {
	return Normalizer{}.Normalize(eventType, payload)
}

// Normalize returns the record for a push, an opened pull request or a merged
// pull request. Every other delivery yields nil without error. Field lookups
// tolerate missing parents; a parent of the wrong JSON type is a *ShapeError.
func (n Normalizer) Normalize(eventType string, payload []byte) (*Record, error) {
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return nil, &ShapeError{Path: "$", Want: "object", Got: kindOf(root)}
	}

	switch github.Event(eventType) {
	case github.PushEvent:
		return n.push(root)
	case github.PullRequestEvent:
		return n.pullRequest(root)
	default:
		return nil, nil
	}
}

func (n Normalizer) push(root gjson.Result) (*Record, error) {
	ref, err := optionalString(root, "ref")
	if err != nil {
		return nil, err
	}
	branch := ""
	if ref != nil && *ref != "" {
		branch = (*ref)[strings.LastIndex(*ref, "/")+1:]
	}
	requestID, err := optionalString(root, "head_commit", "id")
	if err != nil {
		return nil, err
	}
	author, err := optionalString(root, "pusher", "name")
	if err != nil {
		return nil, err
	}
	timestamp, err := optionalString(root, "head_commit", "timestamp")
	if err != nil {
		return nil, err
	}

	from := ""
	return &Record{
		RequestID:  requestID,
		Author:     author,
		Action:     ActionPush,
		FromBranch: &from,
		ToBranch:   &branch,
		Timestamp:  timestamp,
	}, nil
}

func (n Normalizer) pullRequest(root gjson.Result) (*Record, error) {
	action := root.Get("action")
	switch {
	case isString(action, "closed"):
		merged, err := lookup(root, "pull_request", "merged")
		if err != nil {
			return nil, err
		}
		if merged.Type != gjson.True {
			return nil, nil
		}
		record, err := pullRequestRecord(root, ActionMerge, "merged_at")
		if err != nil {
			return nil, err
		}
		if record.Timestamp == nil || *record.Timestamp == "" {
			now := n.now().UTC().Format(GeneratedTimestampLayout)
			record.Timestamp = &now
		}
		return record, nil
	case isString(action, "opened"):
		return pullRequestRecord(root, ActionPullRequest, "created_at")
	default:
		return nil, nil
	}
}

func pullRequestRecord(root gjson.Result, action Action, timestampKey string) (*Record, error) {
	requestID, err := identifier(root, "pull_request", "id")
	if err != nil {
		return nil, err
	}
	author, err := optionalString(root, "pull_request", "user", "login")
	if err != nil {
		return nil, err
	}
	from, err := optionalString(root, "pull_request", "head", "ref")
	if err != nil {
		return nil, err
	}
	to, err := optionalString(root, "pull_request", "base", "ref")
	if err != nil {
		return nil, err
	}
	timestamp, err := optionalString(root, "pull_request", timestampKey)
	if err != nil {
		return nil, err
	}
	return &Record{
		RequestID:  requestID,
		Author:     author,
		Action:     action,
		FromBranch: from,
		ToBranch:   to,
		Timestamp:  timestamp,
	}, nil
}

func (n Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}
