package main

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/tasks"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold .codchestra/, the task list, the prompt file, and codchestra.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				dir = wd
			}
			return executeInit(cmd.OutOrStdout(), dir)
		},
	}
}

type runFlags struct {
	maxLoops       int
	timeoutMinutes int
	resume         bool
	task           string
	noTUI          bool
}

func runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent loop until the tasks are done or a stop condition fires",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			registerQuitHandler()
			return executeRun(ctx, cmd.OutOrStdout(), p, f)
		},
	}
	cmd.Flags().IntVar(&f.maxLoops, "max", 0, "override loop.max_loops (0 = use config)")
	cmd.Flags().IntVar(&f.timeoutMinutes, "timeout", 0, "override loop.timeout_minutes (0 = use config)")
	cmd.Flags().BoolVar(&f.resume, "resume", false, "continue from the saved run state instead of starting fresh")
	cmd.Flags().StringVar(&f.task, "task", "", "extra instruction appended to every prompt")
	cmd.Flags().BoolVar(&f.noTUI, "no-tui", false, "print plain log lines instead of the live view")
	return cmd
}

func statusCmd() *cobra.Command {
	var of outputFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the saved run state and task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			return showStatus(cmd.OutOrStdout(), p, of.resolve(p.cfg))
		},
	}
	of.register(cmd)
	return cmd
}

func resetCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the saved run state",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			return executeReset(cmd.OutOrStdout(), p, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove the whole .codchestra directory, including session logs")
	return cmd
}

func tasksCmd() *cobra.Command {
	var of outputFlags
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks from codchestra.tasks.md",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			return listTasks(cmd.OutOrStdout(), p, of.resolve(p.cfg))
		},
	}
	of.register(cmd)
	cmd.AddCommand(tasksSetCmd())
	return cmd
}

func tasksSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> <pending|in-progress|done>",
		Short: "Change the status of one task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			st, err := tasks.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return setTask(cmd.OutOrStdout(), p, args[0], st)
		},
	}
}

func monitorCmd() *cobra.Command {
	var interval int
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Dashboard of the run state, tasks, and git changes, refreshed periodically",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			return runMonitor(p, interval)
		},
	}
	cmd.Flags().IntVar(&interval, "interval", 2, "refresh interval in seconds")
	return cmd
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, agent command, and project files",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			runDoctor(cmd.OutOrStdout(), p, exec.LookPath)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var of outputFlags
	var iteration int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show iterations from the latest session log",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd)
			if err != nil {
				return err
			}
			return showHistory(cmd.OutOrStdout(), p, iteration, of.resolve(p.cfg))
		},
	}
	of.register(cmd)
	cmd.Flags().IntVar(&iteration, "iteration", 0, "print every event of one iteration")
	return cmd
}
