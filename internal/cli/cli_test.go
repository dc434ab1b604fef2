package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirbrooks/tasker-recall/internal/config"
	"github.com/amirbrooks/tasker-recall/internal/store"
)

const testHome = "/home/tester"

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type stubPicker struct {
	calls int
	index int
}

func (p *stubPicker) Pick(candidates []store.Task) (*store.Task, error) {
	p.calls++
	if p.index < 0 || p.index >= len(candidates) {
		return nil, nil
	}
	t := candidates[p.index]
	return &t, nil
}

type harness struct {
	fs     afero.Fs
	now    time.Time
	picker *stubPicker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("RECALL_TASK_PATH", "")
	return &harness{fs: afero.NewMemMapFs(), now: testEpoch, picker: &stubPicker{}}
}

type result struct {
	stdout string
	stderr string
	code   int
}

func (h *harness) run(args ...string) result {
	var out, errOut bytes.Buffer
	a := newApp(&out, &errOut, func(a *app) {
		a.fs = h.fs
		a.home = testHome
		a.now = func() time.Time { return h.now }
		a.rng = rand.New(rand.NewPCG(7, 11))
		a.picker = h.picker
		a.skipDotenv = true
	})
	code := a.run(args)
	return result{stdout: out.String(), stderr: errOut.String(), code: code}
}

func (h *harness) mustRun(t *testing.T, args ...string) result {
	t.Helper()
	r := h.run(args...)
	require.Equal(t, ExitOK, r.code, "recall %v\nstdout: %s\nstderr: %s", args, r.stdout, r.stderr)
	return r
}

func initialized(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	r := h.mustRun(t, "init")
	assert.Contains(t, r.stdout, filepath.Join(testHome, ".tasks"))
	return h
}

func TestFirstAddCreatesStorage(t *testing.T) {
	h := newHarness(t)
	r := h.mustRun(t, "add", "Buy milk")
	assert.Contains(t, r.stdout, "Buy milk")

	for _, name := range []string{store.FileActive, store.FileClosed, store.FileUndo, store.FileLast} {
		ok, err := afero.Exists(h.fs, filepath.Join(testHome, ".tasks", name))
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	r = h.mustRun(t, "list")
	assert.Contains(t, r.stdout, "Buy milk")
}

func TestEmptyMessages(t *testing.T) {
	h := newHarness(t)
	r := h.mustRun(t, "list")
	assert.Contains(t, r.stderr, "You have no pending tasks")
	r = h.mustRun(t, "list", "--closed")
	assert.Contains(t, r.stderr, "You have no closed tasks")

	h.mustRun(t, "add", "Buy milk", "-t", "errand")
	r = h.mustRun(t, "list", "--tags", "garden")
	assert.Contains(t, r.stderr, "No tasks match your query")

	r = h.mustRun(t, "--tags", "garden")
	assert.Empty(t, r.stdout)
	assert.Contains(t, r.stderr, "No tasks match your query")
	assert.NotContains(t, r.stderr, "--force")

	r = h.mustRun(t, "random")
	assert.Contains(t, r.stderr, "--force")
}

func TestAddAndList(t *testing.T) {
	h := initialized(t)
	r := h.mustRun(t, "add", "Water", "plants", "-d", "balcony\nand kitchen", "-p", "40", "-t", "home,weekly")
	assert.Contains(t, r.stdout, "Water plants")
	assert.Contains(t, r.stdout, "Priority: 40")
	assert.Contains(t, r.stdout, "  and kitchen")

	h.mustRun(t, "a", "Buy milk", "-t", "errand")

	r = h.mustRun(t, "list")
	assert.Contains(t, r.stdout, "Water plants")
	assert.Contains(t, r.stdout, "Buy milk")

	r = h.mustRun(t, "l", "--tags", "home")
	assert.Contains(t, r.stdout, "Water plants")
	assert.NotContains(t, r.stdout, "Buy milk")

	r = h.mustRun(t, "list", "--table")
	assert.Contains(t, r.stdout, "PRI")
	assert.Contains(t, r.stdout, "home,weekly")

	r = h.mustRun(t, "list", "nothing-like-this")
	assert.Empty(t, r.stdout)
	assert.Contains(t, r.stderr, "No tasks match your query")
}

func TestListJSON(t *testing.T) {
	h := initialized(t)
	h.mustRun(t, "add", "Buy milk", "-t", "errand")

	r := h.mustRun(t, "list", "--json")
	var doc struct {
		Tasks []store.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &doc))
	require.Len(t, doc.Tasks, 1)
	assert.Equal(t, "Buy milk", doc.Tasks[0].Name())
	assert.Equal(t, []string{"errand"}, doc.Tasks[0].Tags)
	assert.Equal(t, store.DefaultPriority, doc.Tasks[0].Priority())
}

func TestBuyMilkSession(t *testing.T) {
	h := initialized(t)
	h.mustRun(t, "add", "Buy milk")

	r := h.mustRun(t)
	assert.Empty(t, r.stdout)
	assert.Contains(t, r.stderr, "No task is due")

	h.now = h.now.Add(48 * time.Hour)
	r = h.mustRun(t)
	assert.Contains(t, r.stdout, "Buy milk")
	assert.Contains(t, r.stdout, "2 days, 0 hours ago")

	r = h.mustRun(t, "last")
	assert.Contains(t, r.stdout, "Buy milk")

	r = h.mustRun(t, "done", "last")
	assert.Contains(t, r.stdout, "Touched Buy milk")

	r = h.mustRun(t, "random")
	assert.Empty(t, r.stdout)

	r = h.mustRun(t, "random", "--force")
	assert.Contains(t, r.stdout, "0 days, 0 hours ago")
}

func TestRandomDrawsSeveral(t *testing.T) {
	h := initialized(t)
	for _, name := range []string{"one", "two", "three"} {
		h.mustRun(t, "add", name)
	}
	h.now = h.now.Add(72 * time.Hour)

	r := h.mustRun(t, "r", "5", "--json")
	var doc struct {
		Tasks []store.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &doc))
	assert.Len(t, doc.Tasks, 3)

	r = h.mustRun(t, "last")
	assert.Contains(t, r.stderr, "No last task")
}

func TestRootTagFiltersIgnoreCutoff(t *testing.T) {
	h := initialized(t)
	h.mustRun(t, "add", "Buy milk", "-t", "errand")
	h.mustRun(t, "add", "Stretch", "-t", "health")

	for range 10 {
		r := h.mustRun(t, "--tags", "health")
		assert.Contains(t, r.stdout, "Stretch")
		assert.NotContains(t, r.stdout, "Buy milk")
	}
	r := h.mustRun(t, "--ntags", "health", "--json")
	assert.Contains(t, r.stdout, "Buy milk")
}

func TestCloseAndUndo(t *testing.T) {
	h := initialized(t)
	h.mustRun(t, "add", "Buy milk")

	h.now = h.now.Add(time.Hour)
	r := h.mustRun(t, "finish", "milk")
	assert.Contains(t, r.stdout, "Closed Buy milk")

	r = h.mustRun(t, "list")
	assert.Contains(t, r.stderr, "You have no pending tasks")
	r = h.mustRun(t, "list", "--closed")
	assert.Contains(t, r.stdout, "Buy milk")
	assert.Contains(t, r.stdout, "Closed:")

	r = h.mustRun(t, "undo")
	assert.Contains(t, r.stdout, "Undid sequence")
	r = h.mustRun(t, "list")
	assert.Contains(t, r.stdout, "Buy milk")
	assert.NotContains(t, r.stdout, "Closed:")

	h.mustRun(t, "u")
	r = h.mustRun(t, "undo")
	assert.Contains(t, r.stderr, "no more undo items")
}

func TestEdit(t *testing.T) {
	h := initialized(t)
	h.mustRun(t, "add", "Stretch", "-t", "health,daily")

	r := h.mustRun(t, "edit", "Stretch", "-n", "Stretch hamstrings", "-p", "7", "--atag", "gym", "--rtag", "daily")
	assert.Contains(t, r.stdout, "Stretch hamstrings")
	assert.Contains(t, r.stdout, "Priority: 7")
	assert.Contains(t, r.stdout, "health, gym")

	r = h.mustRun(t, "e", "hamstrings", "--stag", "solo")
	assert.Contains(t, r.stdout, "Tags: solo")

	r = h.run("edit", "hamstrings")
	assert.Equal(t, ExitUsage, r.code)
	assert.Contains(t, r.stderr, "nothing to edit")

	h.mustRun(t, "undo")
	r = h.mustRun(t, "list", "--json")
	assert.Contains(t, r.stdout, `"gym"`)
}

func TestAmbiguousTermsUsePicker(t *testing.T) {
	h := initialized(t)
	h.mustRun(t, "add", "Buy milk")
	h.mustRun(t, "add", "Buy stamps")

	h.picker.index = 1
	r := h.mustRun(t, "touch", "Buy")
	assert.Contains(t, r.stdout, "Touched Buy stamps")
	assert.Equal(t, 1, h.picker.calls)

	h.picker.index = -1
	r = h.mustRun(t, "close", "Buy")
	assert.Empty(t, r.stdout)
	assert.Contains(t, r.stderr, `No task selected for "Buy"`)
	assert.Equal(t, 2, h.picker.calls)

	r = h.mustRun(t, "list", "--table")
	assert.Contains(t, r.stdout, "Buy milk")
	assert.Contains(t, r.stdout, "Buy stamps")
}

func TestUsageErrors(t *testing.T) {
	h := initialized(t)
	cases := [][]string{
		{"random", "0"},
		{"random", "many"},
		{"add"},
		{"touch"},
		{"bogus"},
		{"list", "--no-such-flag"},
	}
	for _, args := range cases {
		r := h.run(args...)
		assert.Equal(t, ExitUsage, r.code, "recall %v: %s", args, r.stderr)
	}
}

func TestUnmatchedTermsAreNotErrors(t *testing.T) {
	h := initialized(t)
	h.mustRun(t, "add", "Buy milk")

	for _, args := range [][]string{{"touch", "ghost"}, {"close", "ghost"}, {"edit", "ghost", "-p", "3"}} {
		r := h.mustRun(t, args...)
		assert.Empty(t, r.stdout, "recall %v", args)
		assert.Contains(t, r.stderr, `No task selected for "ghost"`)
	}

	r := h.mustRun(t, "list")
	assert.Contains(t, r.stdout, "Priority: 100")
}

func TestConfigCommand(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(testHome, ".config", "tasks", "tasks.toml")
	require.NoError(t, h.fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(h.fs, path, []byte("task_path = \"/srv/tasks\"\ncutoff = 60\n"), 0o644))

	r := h.mustRun(t, "config")
	assert.Contains(t, r.stdout, "# "+path)
	assert.Contains(t, r.stdout, "/srv/tasks")
	assert.Contains(t, r.stdout, "1m0s")

	r = h.mustRun(t, "init")
	assert.Contains(t, r.stdout, "/srv/tasks")

	require.NoError(t, afero.WriteFile(h.fs, path, []byte("weighting = \"random\"\n"), 0o644))
	r = h.run("config")
	assert.Equal(t, ExitUsage, r.code)
}

func TestVerboseLogsToStderr(t *testing.T) {
	h := initialized(t)
	r := h.mustRun(t, "list", "--verbose")
	assert.Contains(t, r.stderr, "loaded document")

	r = h.mustRun(t, "list", "--debug")
	assert.Contains(t, r.stderr, "loaded document")

	r = h.mustRun(t, "list")
	assert.NotContains(t, r.stderr, "loaded document")
}

func TestReportExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{store.ErrEmptyLog, ExitOK},
		{usagef("bad"), ExitUsage},
		{fmt.Errorf("%w: weighting", config.ErrInvalid), ExitUsage},
		{fmt.Errorf("%w: task x", store.ErrNotFound), ExitNotFound},
		{fmt.Errorf("%w: gone", store.ErrNoStorage), ExitInternal},
		{fmt.Errorf("disk on fire"), ExitInternal},
	}
	for _, tc := range cases {
		var errOut bytes.Buffer
		a := newApp(&bytes.Buffer{}, &errOut)
		assert.Equal(t, tc.code, a.report("touch", tc.err), tc.err.Error())
		assert.NotEmpty(t, errOut.String())
	}
}
