package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amirbrooks/tasker-recall/internal/store"
)

type filterFlags struct {
	tags    []string
	notTags []string
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.tags, "tags", nil, "only tasks carrying all of these tags")
	cmd.Flags().StringSliceVar(&f.notTags, "ntags", nil, "skip tasks carrying any of these tags")
}

func (f *filterFlags) set() bool { return len(f.tags) > 0 || len(f.notTags) > 0 }

func (a *app) rootCommand() *cobra.Command {
	var force bool
	var filter filterFlags

	root := &cobra.Command{
		Use:   "recall",
		Short: "Recall recurring tasks, favouring the ones left alone longest",
		Long: `recall keeps recurring tasks in plain YAML files and picks one at random,
weighted by how long it has been untouched and by its priority.

Run without a command to draw one task.`,
		Args:          wrapArgs(cobra.NoArgs),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff := a.cfg.Cutoff
			if force || filter.set() {
				cutoff = 0
			}
			return a.random(1, cutoff, filter, false)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default ~/.config/tasks/tasks.toml or ~/.config/tasks.toml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")
	pf.BoolVar(&a.verbose, "debug", false, "alias for --verbose")
	_ = pf.MarkHidden("debug")
	pf.BoolVar(&a.jsonOut, "json", false, "print tasks as JSON")

	root.Flags().BoolVarP(&force, "force", "f", false, "ignore the cutoff")
	filter.bind(root)

	root.AddCommand(
		a.initCommand(),
		a.addCommand(),
		a.listCommand(),
		a.lastCommand(),
		a.randomCommand(),
		a.touchCommand(),
		a.closeCommand(),
		a.editCommand(),
		a.undoCommand(),
		a.configCommand(),
	)
	return root
}

func (a *app) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the task directory and empty task files",
		Args:  wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			if err := s.Init(); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Initialized", s.Dir)
			return nil
		},
	}
}

func (a *app) addCommand() *cobra.Command {
	var (
		desc     string
		priority uint16
		tags     []string
	)
	cmd := &cobra.Command{
		Use:     "add <name...>",
		Aliases: []string{"a"},
		Short:   "Add a task",
		Args:    wrapArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			if name == "" {
				return usagef("task name is empty")
			}
			return a.withStore(func(s *store.Store) error {
				task := store.NewTodo(store.NewTaskInput{
					Name:        name,
					Description: desc,
					Priority:    &priority,
					Tags:        tags,
				}, s.Now())
				added, err := s.Append(task)
				if err != nil {
					return err
				}
				return a.printTasks(s.Now(), []store.Task{added})
			})
		},
	}
	cmd.Flags().StringVarP(&desc, "description", "d", "", "task description")
	cmd.Flags().Uint16VarP(&priority, "priority", "p", store.DefaultPriority, "task priority")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "task tags")
	return cmd
}

func (a *app) listCommand() *cobra.Command {
	var (
		filter filterFlags
		closed bool
		table  bool
	)
	cmd := &cobra.Command{
		Use:     "list [terms...]",
		Aliases: []string{"l"},
		Short:   "List tasks matching every term",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := store.TaskFilter{Terms: args, Tags: filter.tags, NotTags: filter.notTags}
			return a.withStore(func(s *store.Store) error {
				var (
					tasks []store.Task
					err   error
				)
				if closed {
					tasks, err = s.Closed()
					tasks = store.FilterTasks(tasks, f)
				} else {
					tasks, err = s.Filter(f)
				}
				if err != nil {
					return err
				}
				if len(tasks) == 0 && !a.jsonOut {
					fmt.Fprintln(a.stderr, emptyListMessage(f, closed))
					return nil
				}
				if table && !a.jsonOut {
					return printTable(a.stdout, s.Now(), tasks)
				}
				return a.printTasks(s.Now(), tasks)
			})
		},
	}
	filter.bind(cmd)
	cmd.Flags().BoolVar(&closed, "closed", false, "list closed tasks instead")
	cmd.Flags().BoolVar(&table, "table", false, "one line per task")
	return cmd
}

func emptyListMessage(f store.TaskFilter, closed bool) string {
	switch {
	case !f.Empty():
		return "No tasks match your query"
	case closed:
		return "You have no closed tasks"
	default:
		return "You have no pending tasks"
	}
}

func (a *app) lastCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "last",
		Short: "Show the last task picked, added or matched",
		Args:  wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.Store) error {
				tasks, err := s.Filter(store.TaskFilter{Terms: []string{store.LastKeyword}})
				if err != nil {
					return err
				}
				if len(tasks) == 0 && !a.jsonOut {
					fmt.Fprintln(a.stderr, "No last task")
					return nil
				}
				return a.printTasks(s.Now(), tasks)
			})
		},
	}
}

func (a *app) randomCommand() *cobra.Command {
	var (
		filter filterFlags
		force  bool
		plain  bool
	)
	cmd := &cobra.Command{
		Use:     "random [n]",
		Aliases: []string{"r"},
		Short:   "Draw n tasks at random",
		Args:    wrapArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 1
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 1 {
					return usagef("n must be a positive number, got %q", args[0])
				}
				n = v
			}
			cutoff := a.cfg.Cutoff
			if force {
				cutoff = 0
			}
			return a.random(n, cutoff, filter, plain)
		},
	}
	filter.bind(cmd)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "ignore the cutoff")
	cmd.Flags().BoolVar(&plain, "plain", false, "weigh by staleness only, ignoring priority")
	return cmd
}

func (a *app) random(n int, cutoff time.Duration, filter filterFlags, plain bool) error {
	if plain {
		a.cfg.Weighting = string(store.WeightPlain)
	}
	return a.withStore(func(s *store.Store) error {
		var (
			candidates []store.Task
			err        error
		)
		if filter.set() {
			candidates, err = s.Filter(store.TaskFilter{Tags: filter.tags, NotTags: filter.notTags})
		} else {
			candidates, err = s.Active()
		}
		if err != nil {
			return err
		}
		chosen, err := s.Select(candidates, n, cutoff)
		if err != nil {
			return err
		}
		if len(chosen) == 0 && !a.jsonOut {
			if cutoff > 0 {
				fmt.Fprintln(a.stderr, "No task is due; use --force to ignore the cutoff")
			} else {
				fmt.Fprintln(a.stderr, emptyListMessage(store.TaskFilter{Tags: filter.tags, NotTags: filter.notTags}, false))
			}
			return nil
		}
		return a.printTasks(s.Now(), chosen)
	})
}

// resolve turns terms into one active task. When nothing matches or nothing
// is picked it says so on stderr and reports false.
func (a *app) resolve(s *store.Store, terms []string) (store.Task, bool, error) {
	t, err := s.Resolve(terms)
	if err != nil {
		return store.Task{}, false, err
	}
	if t == nil {
		fmt.Fprintf(a.stderr, "No task selected for %q\n", strings.Join(terms, " "))
		return store.Task{}, false, nil
	}
	return *t, true, nil
}

func (a *app) touchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "touch <terms...>",
		Aliases: []string{"t", "done", "d"},
		Short:   "Mark a task as just performed",
		Args:    wrapArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.Store) error {
				task, ok, err := a.resolve(s, args)
				if err != nil || !ok {
					return err
				}
				now := s.Now()
				touched, err := s.Update(task, func(t store.Task) store.Task { return t.Touched(now) })
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, "Touched", touched.Name())
				return nil
			})
		},
	}
}

func (a *app) closeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "close <terms...>",
		Aliases: []string{"f", "finish", "complete", "retire"},
		Short:   "Close a task for good",
		Args:    wrapArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.Store) error {
				task, ok, err := a.resolve(s, args)
				if err != nil || !ok {
					return err
				}
				closed, err := s.Retire(task)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, "Closed", closed.Name())
				return nil
			})
		},
	}
}

func (a *app) editCommand() *cobra.Command {
	var (
		name, desc          string
		priority            uint16
		addTags, removeTags []string
		setTags             []string
	)
	cmd := &cobra.Command{
		Use:     "edit <terms...>",
		Aliases: []string{"e"},
		Short:   "Change a task's name, description, priority or tags",
		Args:    wrapArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var edit store.Edit
			if flags.Changed("name") {
				edit.Name = &name
			}
			if flags.Changed("description") {
				edit.Description = &desc
			}
			if flags.Changed("priority") {
				edit.Priority = &priority
			}
			setTagsChanged := flags.Changed("stag")
			if edit == (store.Edit{}) && !setTagsChanged && len(addTags) == 0 && len(removeTags) == 0 {
				return usagef("nothing to edit")
			}

			transform := func(t store.Task) store.Task {
				t = t.Edited(edit)
				if setTagsChanged {
					t = t.WithTags(setTags)
				}
				return t.AddTags(addTags).RemoveTags(removeTags)
			}
			return a.withStore(func(s *store.Store) error {
				task, ok, err := a.resolve(s, args)
				if err != nil || !ok {
					return err
				}
				edited, err := s.Update(task, transform)
				if err != nil {
					return err
				}
				return a.printTasks(s.Now(), []store.Task{edited})
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&name, "name", "n", "", "new name")
	f.StringVarP(&desc, "description", "d", "", "new description")
	f.Uint16VarP(&priority, "priority", "p", store.DefaultPriority, "new priority")
	f.StringSliceVar(&addTags, "atag", nil, "tags to add")
	f.StringSliceVar(&removeTags, "rtag", nil, "tags to remove")
	f.StringSliceVar(&setTags, "stag", nil, "replace all tags")
	return cmd
}

func (a *app) undoCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "undo",
		Aliases: []string{"u"},
		Short:   "Reverse the most recent change",
		Args:    wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.Store) error {
				item, err := s.Undo()
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, "Undid", item)
				return nil
			})
		},
	}
}

func (a *app) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.cfg.TOML()
			if err != nil {
				return err
			}
			if a.cfg.File != "" {
				fmt.Fprintf(a.stdout, "# %s\n", a.cfg.File)
			}
			_, err = a.stdout.Write(b)
			return err
		},
	}
}
