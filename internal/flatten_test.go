package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFlattenPullRequestPayload tests dotted and indexed paths over a delivery.
func TestFlattenPullRequestPayload(t *testing.T) {
	input := map[string]interface{}{
		"action": "opened",
		"pull_request": map[string]interface{}{
			"draft": false,
			"head":  map[string]interface{}{"ref": "feature"},
			"labels": []interface{}{
				map[string]interface{}{"name": "bug"},
				"plain",
			},
		},
	}

	flat := Flatten(input)
	assert.Equal(t, "opened", flat["action"])
	assert.Equal(t, false, flat["pull_request.draft"])
	assert.Equal(t, "feature", flat["pull_request.head.ref"])
	assert.Equal(t, "bug", flat["pull_request.labels[0].name"])
	assert.Equal(t, "plain", flat["pull_request.labels[1]"])
	assert.Contains(t, flat, "pull_request.labels")
	assert.Contains(t, flat, "pull_request.head")
}

// TestFlattenNilLeaf tests that null leaves are kept.
func TestFlattenNilLeaf(t *testing.T) {
	flat := Flatten(map[string]interface{}{"head_commit": nil})
	value, ok := flat["head_commit"]
	assert.True(t, ok)
	assert.Nil(t, value)
}
