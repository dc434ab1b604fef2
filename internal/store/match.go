package store

import (
	"slices"
	"strings"
)

// Picker chooses one task out of several candidates, typically by asking the
// user. A nil task with a nil error means nothing was chosen.
type Picker interface {
	Pick(candidates []Task) (*Task, error)
}

// Contains reports whether term is a case-sensitive substring of the task's
// id, name or description, or is exactly one of its tags.
func (t Task) Contains(term string) bool {
	m := t.Metadata
	if strings.Contains(m.Name, term) {
		return true
	}
	if m.Description != "" && strings.Contains(m.Description, term) {
		return true
	}
	if strings.Contains(m.ID, term) {
		return true
	}
	return t.IsTagged(term)
}

// MassContains reports whether every term matches. An empty term list
// matches every task.
func (t Task) MassContains(terms []string) bool {
	for _, term := range terms {
		if !t.Contains(term) {
			return false
		}
	}
	return true
}

func (t Task) IsTagged(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// TaskFilter narrows a task list: all Terms must match, every tag in Tags
// must be present and no tag in NotTags may be.
type TaskFilter struct {
	Terms   []string
	Tags    []string
	NotTags []string
}

func (f TaskFilter) Empty() bool {
	return len(f.Terms) == 0 && len(f.Tags) == 0 && len(f.NotTags) == 0
}

func (f TaskFilter) Match(t Task) bool {
	if !t.MassContains(f.Terms) {
		return false
	}
	for _, tag := range f.Tags {
		if !t.IsTagged(tag) {
			return false
		}
	}
	for _, tag := range f.NotTags {
		if t.IsTagged(tag) {
			return false
		}
	}
	return true
}

// FilterTasks returns copies of the tasks accepted by f, in input order.
func FilterTasks(tasks []Task, f TaskFilter) []Task {
	var out []Task
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t.clone())
		}
	}
	return out
}

// isLastKeyword reports whether terms is the lone "last" keyword.
func isLastKeyword(terms []string) bool {
	return len(terms) == 1 && strings.EqualFold(terms[0], LastKeyword)
}

// LastKeyword resolves to the most recently resolved task.
const LastKeyword = "last"
