package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func taskWithID(id, name string) Task {
	t := NewTodo(NewTaskInput{Name: name}, testEpoch)
	t.Metadata.ID = id
	return t
}

func bankIDs(b *Bank) []string {
	var ids []string
	for _, t := range b.Tasks {
		ids = append(ids, t.ID())
	}
	return ids
}

func TestBankFindUpdateDelete(t *testing.T) {
	b := &Bank{}
	b.Append(taskWithID("1", "one"))
	b.Append(taskWithID("2", "two"))
	b.Append(taskWithID("3", "three"))
	b.Append(taskWithID("4", "four"))

	found, ok := b.Find("2")
	require.True(t, ok)
	assert.Equal(t, "two", found.Name())
	_, ok = b.Find("nope")
	assert.False(t, ok)

	renamed := found
	renamed.Metadata.Name = "TWO"
	assert.True(t, b.Update(renamed))
	again, _ := b.Find("2")
	assert.Equal(t, "TWO", again.Name())
	assert.False(t, b.Update(taskWithID("nope", "x")))

	// swap-remove: the last task takes the deleted slot
	assert.True(t, b.Delete("1"))
	assert.Equal(t, []string{"4", "2", "3"}, bankIDs(b))
	assert.False(t, b.Delete("1"))
	assert.Equal(t, 3, b.Len())
}

func TestBankFindReturnsCopy(t *testing.T) {
	b := &Bank{}
	b.Append(taskWithID("1", "one").AddTags([]string{"a"}))

	found, _ := b.Find("1")
	found.Tags[0] = "mutated"

	again, _ := b.Find("1")
	assert.Equal(t, []string{"a"}, again.Tags)
}

func TestBankYAMLRoundTrip(t *testing.T) {
	closedTask := taskWithID("2", "two").Completed(testEpoch.Add(3600e9))
	in := Bank{Tasks: []Task{
		taskWithID("1", "one").AddTags([]string{"x", "y"}),
		closedTask,
	}}
	in.Tasks[0].Metadata.Description = "has a description"
	in.Tasks[1].Kind = KindDeadline

	b, err := yaml.Marshal(&in)
	require.NoError(t, err)

	var out Bank
	require.NoError(t, yaml.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestLastPointerYAMLRoundTrip(t *testing.T) {
	for _, in := range []LastPointer{{}, func() LastPointer { var l LastPointer; l.Set("01ABC"); return l }()} {
		b, err := yaml.Marshal(&in)
		require.NoError(t, err)
		var out LastPointer
		require.NoError(t, yaml.Unmarshal(b, &out))
		assert.Equal(t, in, out)
	}
}
