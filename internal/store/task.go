package store

import (
	"crypto/rand"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultPriority is the weight given to tasks added without an explicit priority.
const DefaultPriority uint16 = 100

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }

// Kind distinguishes plain recurring todos from tasks with a deadline.
type Kind string

const (
	KindTodo     Kind = "todo"
	KindDeadline Kind = "deadline"
)

// Metadata holds the identifying and scheduling fields of a task.
type Metadata struct {
	ID            string     `yaml:"id" json:"id"`
	Name          string     `yaml:"name" json:"name"`
	Description   string     `yaml:"description,omitempty" json:"description,omitempty"`
	Priority      uint16     `yaml:"priority" json:"priority"`
	Created       time.Time  `yaml:"created" json:"created"`
	LastCompleted time.Time  `yaml:"last_completed" json:"last_completed"`
	ClosedAt      *time.Time `yaml:"closed_at,omitempty" json:"closed_at,omitempty"`
}

// Task is a single recurring unit of work. Tasks are treated as values:
// every mutation helper returns a modified copy and leaves the receiver alone.
type Task struct {
	Kind     Kind     `yaml:"kind" json:"kind"`
	Metadata Metadata `yaml:"metadata" json:"metadata"`
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

type NewTaskInput struct {
	Name        string
	Description string
	Priority    *uint16
	Tags        []string
}

// NewTodo builds a fresh todo stamped with now. The id is a ULID, so it
// sorts by creation time.
func NewTodo(in NewTaskInput, now time.Time) Task {
	priority := DefaultPriority
	if in.Priority != nil {
		priority = *in.Priority
	}
	t := Task{
		Kind: KindTodo,
		Metadata: Metadata{
			ID:            newULID(now),
			Name:          strings.TrimSpace(in.Name),
			Description:   strings.TrimSpace(in.Description),
			Priority:      priority,
			Created:       now,
			LastCompleted: now,
		},
	}
	return t.AddTags(in.Tags)
}

func (t Task) ID() string { return t.Metadata.ID }
func (t Task) Name() string { return t.Metadata.Name }
func (t Task) Description() string { return t.Metadata.Description }
func (t Task) Priority() uint16 { return t.Metadata.Priority }
func (t Task) Created() time.Time { return t.Metadata.Created }
func (t Task) LastTouched() time.Time { return t.Metadata.LastCompleted }

func (t Task) ClosedAt() (time.Time, bool) {
	if t.Metadata.ClosedAt == nil {
		return time.Time{}, false
	}
	return *t.Metadata.ClosedAt, true
}

// clone copies the task including its tag slice and closed-at pointer so
// the copy shares no memory with the original.
func (t Task) clone() Task {
	out := t
	if t.Tags != nil {
		out.Tags = slices.Clone(t.Tags)
	}
	if t.Metadata.ClosedAt != nil {
		at := *t.Metadata.ClosedAt
		out.Metadata.ClosedAt = &at
	}
	return out
}

// Touched records another round of the task without closing it.
func (t Task) Touched(now time.Time) Task {
	out := t.clone()
	out.Metadata.LastCompleted = now
	return out
}

// Completed stamps both last-touched and closed-at.
func (t Task) Completed(now time.Time) Task {
	out := t.clone()
	out.Metadata.LastCompleted = now
	closed := now
	out.Metadata.ClosedAt = &closed
	return out
}

func (t Task) WithTags(tags []string) Task {
	out := t.clone()
	out.Tags = nil
	return out.AddTags(tags)
}

// AddTags appends tags that are not present yet, in the order given.
func (t Task) AddTags(tags []string) Task {
	out := t.clone()
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out.Tags, tag) {
			continue
		}
		out.Tags = append(out.Tags, tag)
	}
	return out
}

func (t Task) RemoveTags(tags []string) Task {
	out := t.clone()
	out.Tags = slices.DeleteFunc(out.Tags, func(tag string) bool {
		return slices.Contains(tags, tag)
	})
	if len(out.Tags) == 0 {
		out.Tags = nil
	}
	return out
}

// Edit lists the fields an edit replaces. Nil fields are left untouched.
type Edit struct {
	Name        *string
	Description *string
	Priority    *uint16
}

func (t Task) Edited(e Edit) Task {
	out := t.clone()
	if e.Name != nil {
		out.Metadata.Name = *e.Name
	}
	if e.Description != nil {
		out.Metadata.Description = *e.Description
	}
	if e.Priority != nil {
		out.Metadata.Priority = *e.Priority
	}
	return out
}

func (t Task) String() string {
	return fmt.Sprintf("%s (%s)", t.Metadata.Name, t.Metadata.ID)
}

func newULID(now time.Time) string {
	entropy := ulid.Monotonic(randReader{}, 0)
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		// fallback
		return fmt.Sprintf("%d", now.UnixMilli())
	}
	return strings.ToUpper(id.String())
}
