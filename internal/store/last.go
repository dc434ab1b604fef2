package store

// LastPointer remembers the id of the task most recently resolved to a single
// result, which backs the "last" keyword.
type LastPointer struct {
	Last *string `yaml:"last" json:"last"`
}

func (l *LastPointer) Set(id string) {
	l.Last = &id
}

func (l *LastPointer) Clear() {
	l.Last = nil
}

func (l *LastPointer) Get() (string, bool) {
	if l.Last == nil {
		return "", false
	}
	return *l.Last, true
}
