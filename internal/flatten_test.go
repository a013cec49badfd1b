package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlattenNestedAndArray(t *testing.T) {
	input := map[string]interface{}{
		"ref": "refs/heads/main",
		"repository": map[string]interface{}{
			"full_name": "octo/hello",
			"owner":     map[string]interface{}{"login": "octo"},
		},
		"commits": []interface{}{
			map[string]interface{}{"distinct": true},
			map[string]interface{}{"distinct": false},
		},
		"head_commit": map[string]interface{}{},
	}

	flat := Flatten(input)

	assert.Equal(t, "refs/heads/main", flat["ref"])
	assert.Equal(t, "octo/hello", flat["repository.full_name"])
	assert.Equal(t, "octo", flat["repository.owner.login"])
	assert.Len(t, flat["commits"], 2)
	assert.Equal(t, true, flat["commits[0].distinct"])
	assert.Equal(t, false, flat["commits[1].distinct"])
	assert.Contains(t, flat, "head_commit")
	assert.NotContains(t, flat, "repository")
}
