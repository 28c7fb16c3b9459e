package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uintPtr(v uint) *uint { return &v }

func TestBuildReplyTree(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	flat := []*Reply{
		{ID: 1, TargetID: 7, Comment: "root a", CreatedAt: base},
		{ID: 2, TargetID: 7, Comment: "root b", CreatedAt: base.Add(time.Minute)},
		{ID: 3, TargetID: 7, ParentID: uintPtr(1), Comment: "a.1", CreatedAt: base.Add(2 * time.Minute)},
		{ID: 4, TargetID: 7, ParentID: uintPtr(3), Comment: "a.1.1", CreatedAt: base.Add(3 * time.Minute)},
		{ID: 5, TargetID: 7, ParentID: uintPtr(1), Comment: "a.2", CreatedAt: base.Add(4 * time.Minute)},
		{ID: 6, TargetID: 7, ParentID: uintPtr(99), Comment: "orphan", CreatedAt: base.Add(5 * time.Minute)},
	}

	roots := BuildReplyTree(flat)
	require.Len(t, roots, 3)
	assert.Equal(t, uint(1), roots[0].ID)
	assert.Equal(t, uint(2), roots[1].ID)
	assert.Equal(t, uint(6), roots[2].ID)

	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, uint(3), roots[0].Children[0].ID)
	assert.Equal(t, uint(5), roots[0].Children[1].ID)
	require.Len(t, roots[0].Children[0].Children, 1)
	assert.Equal(t, uint(4), roots[0].Children[0].Children[0].ID)
	assert.Empty(t, roots[1].Children)
}

func TestBuildReplyTree_Empty(t *testing.T) {
	roots := BuildReplyTree(nil)
	assert.NotNil(t, roots)
	assert.Empty(t, roots)
}

func TestReplyMarshalJSON_UsesKindKey(t *testing.T) {
	r := Reply{ID: 3, TargetID: 11, AuthorID: 2, AuthorUsername: "kim", Comment: "hi", Kind: KindFeedback}
	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, float64(11), body["feedback"])
	assert.NotContains(t, body, "board")
	assert.Equal(t, "kim", body["author_username"])
	assert.Nil(t, body["parent"])
	assert.Equal(t, []interface{}{}, body["children"])
}

func TestReplyMarshalJSON_DefaultsToBoard(t *testing.T) {
	raw, err := json.Marshal(&Reply{ID: 1, TargetID: 4})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"board":4`)
}
