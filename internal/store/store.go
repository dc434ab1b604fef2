package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Names of the four documents kept in the storage directory.
const (
	FileActive = BankActive
	FileClosed = BankClosed
	FileUndo   = "undo"
	FileLast   = "last"
)

var timeNow = func() time.Time { return time.Now().Round(0) }

// Store is the only way task state changes. Each of its four documents is
// read from disk the first time an operation needs it and written back by
// Close, whether or not it changed. Documents that were never read are never
// written.
//
// Every mutation records an UndoItem. The Store does not guard against other
// processes using the same directory; the last one to Close wins.
type Store struct {
	Dir string

	mu        sync.Mutex
	fs        afero.Fs
	now       func() time.Time
	rng       *rand.Rand
	picker    Picker
	log       *slog.Logger
	weighting Weighting

	active *Bank
	closed *Bank
	undo   *UndoLog
	last   *LastPointer
}

type Option func(*Store)

// WithFs replaces the OS filesystem, mainly so tests can use afero.NewMemMapFs.
func WithFs(fsys afero.Fs) Option { return func(s *Store) { s.fs = fsys } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithRand(r *rand.Rand) Option { return func(s *Store) { s.rng = r } }

func WithPicker(p Picker) Option { return func(s *Store) { s.picker = p } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

func WithWeighting(w Weighting) Option { return func(s *Store) { s.weighting = w } }

// Open prepares a store rooted at dir. Nothing is read until an operation
// needs it; call Init to create missing files.
func Open(dir string, opts ...Option) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: storage directory is required", ErrInvalid)
	}
	s := &Store{
		Dir:       expandHome(dir),
		fs:        afero.NewOsFs(),
		now:       timeNow,
		log:       slog.New(slog.DiscardHandler),
		weighting: WeightByPriority,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s, nil
}

// Init creates the storage directory and writes an empty document for every
// file that does not exist yet. Existing files are left alone.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.Dir, 0o755); err != nil {
		return &FileError{Op: "mkdir", Path: s.Dir, Err: err}
	}
	empty := map[string]any{
		FileActive: &Bank{Tasks: []Task{}},
		FileClosed: &Bank{Tasks: []Task{}},
		FileUndo:   &UndoLog{},
		FileLast:   &LastPointer{},
	}
	for _, name := range []string{FileActive, FileClosed, FileUndo, FileLast} {
		path := s.path(name)
		_, err := s.fs.Stat(path)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return &FileError{Op: "stat", Path: path, Err: err}
		}
		if err := writeDocument(s.fs, path, empty[name]); err != nil {
			return err
		}
		s.log.Debug("created document", "file", name, "path", path)
	}
	return nil
}

// Close writes back every document that was loaded. Write errors do not stop
// the remaining documents from being written; all of them are returned.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.active != nil {
		errs = append(errs, s.save(FileActive, s.active))
		s.active = nil
	}
	if s.undo != nil {
		if dropped := s.undo.Truncate(MaxUndoItems); dropped > 0 {
			s.log.Debug("dropped old undo entries", "count", dropped)
		}
		errs = append(errs, s.save(FileUndo, s.undo))
		s.undo = nil
	}
	if s.closed != nil {
		errs = append(errs, s.save(FileClosed, s.closed))
		s.closed = nil
	}
	if s.last != nil {
		errs = append(errs, s.save(FileLast, s.last))
		s.last = nil
	}
	return errors.Join(errs...)
}

// Append adds a new task to the active bank and makes it the last task.
func (s *Store) Append(t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.activeBank()
	if err != nil {
		return Task{}, err
	}
	last, err := s.lastPointer()
	if err != nil {
		return Task{}, err
	}
	undo, err := s.undoLog()
	if err != nil {
		return Task{}, err
	}

	active.Append(t.clone())
	last.Set(t.ID())
	undo.Push(AddItem{Task: t.clone()})
	return t, nil
}

// Retire closes a task: it leaves the active bank and a completed copy is
// appended to the closed bank. The completed copy is returned.
func (s *Store) Retire(t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.lastPointer()
	if err != nil {
		return Task{}, err
	}
	active, err := s.activeBank()
	if err != nil {
		return Task{}, err
	}
	closed, err := s.closedBank()
	if err != nil {
		return Task{}, err
	}
	undo, err := s.undoLog()
	if err != nil {
		return Task{}, err
	}

	completed := t.Completed(s.now())
	if !active.Delete(t.ID()) {
		return Task{}, fmt.Errorf("%w: task %s in %s", ErrNotFound, t.ID(), BankActive)
	}
	closed.Append(completed.clone())
	undo.Push(SequenceItem{Items: []UndoItem{
		ChangeItem{From: t.clone(), To: completed.clone(), Bank: BankActive},
		MoveItem{Task: completed.clone(), From: BankActive, To: BankClosed},
	}})
	last.Clear()
	return completed, nil
}

// Update replaces t in the active bank with transform(t). The transform must
// keep the id.
func (s *Store) Update(t Task, transform func(Task) Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	undo, err := s.undoLog()
	if err != nil {
		return Task{}, err
	}
	active, err := s.activeBank()
	if err != nil {
		return Task{}, err
	}

	transformed := transform(t.clone())
	if transformed.ID() != t.ID() {
		return Task{}, fmt.Errorf("%w: update changed task id %s to %s", ErrInvalid, t.ID(), transformed.ID())
	}
	if !active.Update(transformed.clone()) {
		return Task{}, fmt.Errorf("%w: task %s in %s", ErrNotFound, t.ID(), BankActive)
	}
	undo.Push(ChangeItem{From: t.clone(), To: transformed.clone(), Bank: BankActive})
	return transformed, nil
}

// Select draws up to n tasks from candidates with the store's clock, random
// source and weighting. A single result becomes the last task; any other
// outcome clears it.
func (s *Store) Select(candidates []Task, n int, cutoff time.Duration) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.lastPointer()
	if err != nil {
		return nil, err
	}
	sel := Selector{
		Now:       s.now(),
		Cutoff:    cutoff,
		Weighting: s.weighting,
		Rand:      s.rng,
	}
	chosen := sel.Draw(candidates, n)
	if len(chosen) == 1 {
		last.Set(chosen[0].ID())
	} else {
		last.Clear()
	}
	s.log.Debug("random draw", "candidates", len(candidates), "n", n, "cutoff", cutoff, "chosen", len(chosen))
	return chosen, nil
}

// Filter lists active tasks accepted by f. The lone term "last" resolves to
// the last task instead and ignores the tag filters. A single match becomes
// the last task.
func (s *Store) Filter(f TaskFilter) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isLastKeyword(f.Terms) {
		t, ok, err := s.lastTask()
		if err != nil || !ok {
			return nil, err
		}
		return []Task{t}, nil
	}
	active, err := s.activeBank()
	if err != nil {
		return nil, err
	}
	matches := FilterTasks(active.Tasks, f)
	if len(matches) == 1 {
		last, err := s.lastPointer()
		if err != nil {
			return nil, err
		}
		last.Set(matches[0].ID())
	}
	return matches, nil
}

// Resolve turns search terms into a single active task. Several matches are
// handed to the picker; no match, or nothing picked, yields nil. The
// resolved task becomes the last task.
func (s *Store) Resolve(terms []string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isLastKeyword(terms) {
		t, ok, err := s.lastTask()
		if err != nil || !ok {
			return nil, err
		}
		return &t, nil
	}
	active, err := s.activeBank()
	if err != nil {
		return nil, err
	}
	last, err := s.lastPointer()
	if err != nil {
		return nil, err
	}

	matches := FilterTasks(active.Tasks, TaskFilter{Terms: terms})
	var chosen *Task
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		chosen = &matches[0]
	default:
		if s.picker == nil {
			s.log.Debug("several tasks match and no picker is configured", "matches", len(matches))
			return nil, nil
		}
		chosen, err = s.picker.Pick(matches)
		if err != nil {
			return nil, err
		}
		if chosen == nil {
			return nil, nil
		}
	}
	last.Set(chosen.ID())
	return chosen, nil
}

// Undo reverses the most recent recorded operation and returns it. The last
// task is cleared even when there is nothing to undo.
//
// A ChangeItem is reversed by overwriting whatever task now has the same id,
// without checking that it still equals the recorded result.
func (s *Store) Undo() (UndoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.lastPointer()
	if err != nil {
		return nil, err
	}
	last.Clear()

	undo, err := s.undoLog()
	if err != nil {
		return nil, err
	}
	item, ok := undo.Pop()
	if !ok {
		return nil, ErrEmptyLog
	}
	if err := s.revert(item); err != nil {
		return nil, fmt.Errorf("undo %s: %w", item, err)
	}
	s.log.Debug("undone", "item", item.String())
	return item, nil
}

// Now reads the store's clock.
func (s *Store) Now() time.Time { return s.now() }

// Active returns a copy of the active bank.
func (s *Store) Active() ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.activeBank()
	if err != nil {
		return nil, err
	}
	return b.Snapshot(), nil
}

// Closed returns a copy of the closed bank.
func (s *Store) Closed() ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.closedBank()
	if err != nil {
		return nil, err
	}
	return b.Snapshot(), nil
}

// UndoLen reports how many operations can currently be undone.
func (s *Store) UndoLen() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.undoLog()
	if err != nil {
		return 0, err
	}
	return u.Len(), nil
}

func (s *Store) revert(item UndoItem) error {
	switch v := item.(type) {
	case AddItem:
		active, err := s.activeBank()
		if err != nil {
			return err
		}
		if !active.Delete(v.Task.ID()) {
			return fmt.Errorf("%w: task %s in %s", ErrNotFound, v.Task.ID(), BankActive)
		}
	case MoveItem:
		return s.move(v.Task, v.To, v.From)
	case ChangeItem:
		b, err := s.bank(v.Bank)
		if err != nil {
			return err
		}
		if !b.Update(v.From.clone()) {
			return fmt.Errorf("%w: task %s in %s", ErrNotFound, v.From.ID(), v.Bank)
		}
	case SequenceItem:
		for i := len(v.Items) - 1; i >= 0; i-- {
			if err := s.revert(v.Items[i]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown undo item %T", ErrInvalid, item)
	}
	return nil
}

func (s *Store) move(t Task, from, to string) error {
	src, err := s.bank(from)
	if err != nil {
		return err
	}
	dst, err := s.bank(to)
	if err != nil {
		return err
	}
	if !src.Delete(t.ID()) {
		return fmt.Errorf("%w: task %s in %s", ErrNotFound, t.ID(), from)
	}
	dst.Append(t.clone())
	return nil
}

func (s *Store) lastTask() (Task, bool, error) {
	last, err := s.lastPointer()
	if err != nil {
		return Task{}, false, err
	}
	id, ok := last.Get()
	if !ok {
		return Task{}, false, nil
	}
	active, err := s.activeBank()
	if err != nil {
		return Task{}, false, err
	}
	t, found := active.Find(id)
	return t, found, nil
}

func (s *Store) bank(name string) (*Bank, error) {
	switch name {
	case BankActive:
		return s.activeBank()
	case BankClosed:
		return s.closedBank()
	default:
		return nil, fmt.Errorf("%w: bank name %q", ErrInvalid, name)
	}
}

func (s *Store) activeBank() (*Bank, error) { return loadOnce(s, &s.active, FileActive) }

func (s *Store) closedBank() (*Bank, error) { return loadOnce(s, &s.closed, FileClosed) }

func (s *Store) undoLog() (*UndoLog, error) { return loadOnce(s, &s.undo, FileUndo) }

func (s *Store) lastPointer() (*LastPointer, error) { return loadOnce(s, &s.last, FileLast) }

// loadOnce fills *slot from the named document on first use.
func loadOnce[T any](s *Store, slot **T, name string) (*T, error) {
	if *slot != nil {
		return *slot, nil
	}
	doc := new(T)
	if err := readDocument(s.fs, s.path(name), doc); err != nil {
		return nil, err
	}
	s.log.Debug("loaded document", "file", name)
	*slot = doc
	return doc, nil
}

func (s *Store) save(name string, doc any) error {
	if err := writeDocument(s.fs, s.path(name), doc); err != nil {
		return err
	}
	s.log.Debug("saved document", "file", name)
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.Dir, name)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) || path == "~" {
		home, _ := os.UserHomeDir()
		if home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
