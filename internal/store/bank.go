package store

// Bank names the two task collections the store keeps on disk.
const (
	BankActive = "active"
	BankClosed = "closed"
)

// Bank is an ordered collection of tasks. Lookups are linear scans.
type Bank struct {
	Tasks []Task `yaml:"tasks" json:"tasks"`
}

func (b *Bank) Len() int { return len(b.Tasks) }

func (b *Bank) Append(t Task) {
	b.Tasks = append(b.Tasks, t)
}

// Find returns a copy of the task with the given id.
func (b *Bank) Find(id string) (Task, bool) {
	for _, t := range b.Tasks {
		if t.ID() == id {
			return t.clone(), true
		}
	}
	return Task{}, false
}

// Update replaces the task sharing updated's id. It reports whether a task
// was replaced.
func (b *Bank) Update(updated Task) bool {
	for i := range b.Tasks {
		if b.Tasks[i].ID() == updated.ID() {
			b.Tasks[i] = updated
			return true
		}
	}
	return false
}

// Delete removes the task with the given id by moving the last task into
// its slot, so iteration order is not preserved.
func (b *Bank) Delete(id string) bool {
	for i := range b.Tasks {
		if b.Tasks[i].ID() != id {
			continue
		}
		last := len(b.Tasks) - 1
		b.Tasks[i] = b.Tasks[last]
		b.Tasks[last] = Task{}
		b.Tasks = b.Tasks[:last]
		return true
	}
	return false
}

// Snapshot returns a copy of the bank's tasks that callers may keep.
func (b *Bank) Snapshot() []Task {
	out := make([]Task, 0, len(b.Tasks))
	for _, t := range b.Tasks {
		out = append(out, t.clone())
	}
	return out
}
