package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowObject(t *testing.T) {
	o := RowObject(NewRow([]string{"row_int", "row_str"}, []any{int64(200), "b"}))
	assert.Equal(t, []string{"row_int", "row_str"}, o.Names())
	assert.Equal(t, int64(200), o.Attr("row_int"))
	assert.Equal(t, "b", o.Attr("row_str"))
	assert.Nil(t, o.Attr("missing"))
	assert.False(t, o.Has("missing"))
	assert.Equal(t, 2, o.Len())
}

func TestNewObjectNested(t *testing.T) {
	o := NewObject(map[string]any{
		"name": "pump",
		"owner": map[string]any{
			"name": "ops",
			"site": map[string]any{"id": 4},
		},
		"tags":    []any{"a", map[string]any{"k": "v"}},
		"members": []map[string]any{{"id": 1}, {"id": 2}},
	})

	assert.Equal(t, []string{"members", "name", "owner", "tags"}, o.Names())

	owner, ok := o.Attr("owner").(*Object)
	require.True(t, ok)
	assert.Equal(t, "ops", owner.Attr("name"))

	id, ok := o.Lookup("owner.site.id")
	require.True(t, ok)
	assert.Equal(t, 4, id)
	_, ok = o.Lookup("owner.missing.id")
	assert.False(t, ok)
	_, ok = o.Lookup("name.first")
	assert.False(t, ok)

	tags := o.Attr("tags").([]any)
	assert.Equal(t, "a", tags[0])
	inner, ok := tags[1].(*Object)
	require.True(t, ok)
	assert.Equal(t, "v", inner.Attr("k"))

	members := o.Attr("members").([]*Object)
	require.Len(t, members, 2)
	assert.Equal(t, 2, members[1].Attr("id"))
}

func TestObjectMapRoundTrip(t *testing.T) {
	in := map[string]any{
		"a": 1,
		"b": map[string]any{"c": "d"},
		"e": []any{map[string]any{"f": true}, 2},
	}
	assert.Equal(t, in, NewObject(in).Map())
}

func TestObjectJSON(t *testing.T) {
	o := RowObject(NewRow([]string{"z", "a"}, []any{int64(1), nil}))
	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":null}`, string(data))
	assert.Equal(t, "Object{z=1, a=<nil>}", o.String())
}
