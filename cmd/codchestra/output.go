package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/config"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boldStyle  = lipgloss.NewStyle().Bold(true)
)

func ok(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, okStyle.Render("✓")+" "+fmt.Sprintf(format, a...))
}

func fail(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, failStyle.Render("✗")+" "+fmt.Sprintf(format, a...))
}

func warn(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, warnStyle.Render("?")+" "+fmt.Sprintf(format, a...))
}

// outputFlags are the --json and --format flags shared by read commands.
type outputFlags struct {
	json   bool
	format string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.json, "json", false, "print JSON (same as --format json)")
	cmd.Flags().StringVar(&o.format, "format", "", "output format: text, json, or yaml (default: output.format)")
}

// resolve picks the format: --json, then --format, then the config.
func (o outputFlags) resolve(cfg *config.Config) string {
	switch {
	case o.json:
		return config.FormatJSON
	case o.format != "":
		return o.format
	}
	return cfg.Output.Format
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case config.FormatJSON:
		return json.NewEncoder(w).Encode(v)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported output format %q (want text, json, or yaml)", format)
}

func isStructured(format string) bool {
	return format == config.FormatJSON || format == config.FormatYAML
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
