// Package main is the entry point for the codchestra CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "codchestra",
		Short:        "Codchestra runs an AI coding agent in a loop until the task list is done",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("dir", "C", "", "project directory (default: current directory)")

	root.AddCommand(
		initCmd(),
		runCmd(),
		statusCmd(),
		resetCmd(),
		tasksCmd(),
		monitorCmd(),
		doctorCmd(),
		historyCmd(),
	)
	return root
}

// project is the resolved context every command works in.
type project struct {
	cwd   string
	root  string
	cfg   *config.Config
	paths config.Paths
}

// loadProject resolves the working directory from --dir and loads its
// configuration. The project root is the directory holding the config
// file, or cwd when none exists.
func loadProject(cmd *cobra.Command) (*project, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	root := cfg.Root(abs)
	return &project{cwd: abs, root: root, cfg: cfg, paths: config.NewPaths(root)}, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
