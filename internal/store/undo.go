package store

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxUndoItems bounds the undo history kept on disk. Older entries are
// dropped on save.
const MaxUndoItems = 50

// UndoItem describes one state change in enough detail to reverse it.
// The set of implementations is closed: AddItem, MoveItem, ChangeItem and
// SequenceItem.
type UndoItem interface {
	fmt.Stringer
	isUndoItem()
}

// AddItem records a task appended to the active bank.
type AddItem struct {
	Task Task `yaml:"task" json:"task"`
}

// MoveItem records a task moved between banks.
type MoveItem struct {
	Task Task   `yaml:"task" json:"task"`
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// ChangeItem records an in-place replacement within a bank.
type ChangeItem struct {
	From Task   `yaml:"from" json:"from"`
	To   Task   `yaml:"to" json:"to"`
	Bank string `yaml:"bank" json:"bank"`
}

// SequenceItem groups items applied together. They are undone last first.
type SequenceItem struct {
	Items []UndoItem
}

func (AddItem) isUndoItem()      {}
func (MoveItem) isUndoItem()     {}
func (ChangeItem) isUndoItem()   {}
func (SequenceItem) isUndoItem() {}

func (i AddItem) String() string {
	return "add " + i.Task.String()
}

func (i MoveItem) String() string {
	return fmt.Sprintf("move %s from %s to %s", i.Task, i.From, i.To)
}

func (i ChangeItem) String() string {
	return fmt.Sprintf("change %s -> %s in %s", i.From, i.To, i.Bank)
}

func (i SequenceItem) String() string {
	parts := make([]string, 0, len(i.Items))
	for _, item := range i.Items {
		parts = append(parts, item.String())
	}
	return "sequence [" + strings.Join(parts, "; ") + "]"
}

// UndoLog is a stack of undo items, most recent last.
type UndoLog struct {
	Items []UndoItem
}

func (l *UndoLog) Len() int { return len(l.Items) }

func (l *UndoLog) Push(item UndoItem) {
	l.Items = append(l.Items, item)
}

func (l *UndoLog) Pop() (UndoItem, bool) {
	if len(l.Items) == 0 {
		return nil, false
	}
	last := len(l.Items) - 1
	item := l.Items[last]
	l.Items[last] = nil
	l.Items = l.Items[:last]
	return item, true
}

// Truncate keeps only the newest max items and returns how many were dropped.
func (l *UndoLog) Truncate(max int) int {
	if max < 0 || len(l.Items) <= max {
		return 0
	}
	dropped := len(l.Items) - max
	l.Items = append([]UndoItem(nil), l.Items[dropped:]...)
	return dropped
}

// undoRecord is the on-disk form of an UndoItem: exactly one field is set.
type undoRecord struct {
	Add      *AddItem      `yaml:"add,omitempty"`
	Move     *MoveItem     `yaml:"move,omitempty"`
	Change   *ChangeItem   `yaml:"change,omitempty"`
	Sequence *[]undoRecord `yaml:"sequence,omitempty"`
}

type undoDocument struct {
	Items []undoRecord `yaml:"items"`
}

func (l UndoLog) MarshalYAML() (interface{}, error) {
	records, err := toUndoRecords(l.Items)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []undoRecord{}
	}
	return undoDocument{Items: records}, nil
}

func (l *UndoLog) UnmarshalYAML(value *yaml.Node) error {
	var doc undoDocument
	if err := value.Decode(&doc); err != nil {
		return err
	}
	items, err := fromUndoRecords(doc.Items)
	if err != nil {
		return err
	}
	l.Items = items
	return nil
}

func toUndoRecords(items []UndoItem) ([]undoRecord, error) {
	var out []undoRecord
	for _, item := range items {
		var rec undoRecord
		switch v := item.(type) {
		case AddItem:
			rec.Add = &v
		case MoveItem:
			rec.Move = &v
		case ChangeItem:
			rec.Change = &v
		case SequenceItem:
			nested, err := toUndoRecords(v.Items)
			if err != nil {
				return nil, err
			}
			if nested == nil {
				nested = []undoRecord{}
			}
			rec.Sequence = &nested
		default:
			return nil, fmt.Errorf("%w: unknown undo item %T", ErrInvalid, item)
		}
		out = append(out, rec)
	}
	return out, nil
}

func fromUndoRecords(records []undoRecord) ([]UndoItem, error) {
	var out []UndoItem
	for i, rec := range records {
		set := 0
		var item UndoItem
		if rec.Add != nil {
			set++
			item = *rec.Add
		}
		if rec.Move != nil {
			set++
			item = *rec.Move
		}
		if rec.Change != nil {
			set++
			change := *rec.Change
			if change.Bank == "" {
				change.Bank = BankActive
			}
			item = change
		}
		if rec.Sequence != nil {
			set++
			nested, err := fromUndoRecords(*rec.Sequence)
			if err != nil {
				return nil, err
			}
			item = SequenceItem{Items: nested}
		}
		if set != 1 {
			return nil, fmt.Errorf("%w: undo entry %d must have exactly one of add, move, change, sequence", ErrInvalid, i)
		}
		out = append(out, item)
	}
	return out, nil
}
