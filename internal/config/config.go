// Package config parses codchestra.toml project configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultAccentColor is the default TUI accent color (indigo).
const DefaultAccentColor = "#7D56F4"

// hexColorRe matches a 6-digit hex color string like "#7D56F4".
var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Verbosity levels for [output] verbosity.
const (
	VerbosityQuiet   = "quiet"
	VerbosityNormal  = "normal"
	VerbosityVerbose = "verbose"
)

// Output formats for [output] format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config is the top-level codchestra.toml configuration.
type Config struct {
	Project       ProjectConfig       `toml:"project"`
	Agent         AgentConfig         `toml:"agent"`
	Loop          LoopConfig          `toml:"loop"`
	Output        OutputConfig        `toml:"output"`
	TUI           TUIConfig           `toml:"tui"`
	Notifications NotificationsConfig `toml:"notifications"`
	Telemetry     TelemetryConfig     `toml:"telemetry"`

	// Path is the file the configuration came from; empty for defaults.
	Path string `toml:"-"`
}

// ProjectConfig identifies the project.
type ProjectConfig struct {
	Name string `toml:"name"`
}

// AgentConfig selects the external AI command.
type AgentConfig struct {
	Command            string   `toml:"command"` // empty = auto-detect chatgpt, then codex
	Args               []string `toml:"args"`
	CallTimeoutMinutes int      `toml:"call_timeout_minutes"`
}

// LoopConfig holds run limits and detector thresholds.
type LoopConfig struct {
	MaxLoops                int `toml:"max_loops"`
	TimeoutMinutes          int `toml:"timeout_minutes"`
	StagnationThreshold     int `toml:"stagnation_threshold"`
	RepeatedOutputThreshold int `toml:"repeated_output_threshold"`
	MinSubstantialOutput    int `toml:"min_substantial_output"`
	DiffSummaryLimit        int `toml:"diff_summary_limit"`
}

// OutputConfig controls CLI output.
type OutputConfig struct {
	Verbosity string `toml:"verbosity"`
	Format    string `toml:"format"`
}

// TUIConfig controls the terminal UI appearance.
type TUIConfig struct {
	AccentColor  string `toml:"accent_color"`
	LogRetention int    `toml:"log_retention"` // number of session logs to keep; 0 = unlimited
}

// NotificationsConfig controls webhook/ntfy.sh notifications.
type NotificationsConfig struct {
	URL         string `toml:"url"`
	OnIteration bool   `toml:"on_iteration"`
	OnComplete  bool   `toml:"on_complete"`
	OnStop      bool   `toml:"on_stop"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"` // empty = disabled
	ServiceName  string `toml:"service_name"`
}

// CallTimeout is the per-call agent timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Agent.CallTimeoutMinutes) * time.Minute
}

// RunTimeout is the whole-run deadline.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Loop.TimeoutMinutes) * time.Minute
}

// Validate checks the configuration for issues that would cause confusing
// runtime failures. It returns all found issues joined together.
func (c *Config) Validate() error {
	var errs []error

	if c.Agent.CallTimeoutMinutes <= 0 {
		errs = append(errs, fmt.Errorf("agent.call_timeout_minutes must be > 0"))
	}

	if c.Loop.MaxLoops <= 0 {
		errs = append(errs, fmt.Errorf("loop.max_loops must be > 0"))
	}
	if c.Loop.TimeoutMinutes <= 0 {
		errs = append(errs, fmt.Errorf("loop.timeout_minutes must be > 0"))
	}
	if c.Loop.StagnationThreshold < 1 {
		errs = append(errs, fmt.Errorf("loop.stagnation_threshold must be >= 1"))
	}
	if c.Loop.RepeatedOutputThreshold < 1 {
		errs = append(errs, fmt.Errorf("loop.repeated_output_threshold must be >= 1"))
	}
	if c.Loop.MinSubstantialOutput < 0 {
		errs = append(errs, fmt.Errorf("loop.min_substantial_output must be >= 0"))
	}
	if c.Loop.DiffSummaryLimit <= 0 {
		errs = append(errs, fmt.Errorf("loop.diff_summary_limit must be > 0"))
	}

	switch c.Output.Verbosity {
	case VerbosityQuiet, VerbosityNormal, VerbosityVerbose:
	default:
		errs = append(errs, fmt.Errorf("output.verbosity must be one of quiet, normal, verbose (got %q)", c.Output.Verbosity))
	}
	switch c.Output.Format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		errs = append(errs, fmt.Errorf("output.format must be one of text, json, yaml (got %q)", c.Output.Format))
	}

	if c.TUI.AccentColor != "" && !hexColorRe.MatchString(c.TUI.AccentColor) {
		errs = append(errs, fmt.Errorf("tui.accent_color must be a hex color (e.g. \"#7D56F4\")"))
	}
	if c.TUI.LogRetention < 0 {
		errs = append(errs, fmt.Errorf("tui.log_retention must be >= 0 (0 = unlimited)"))
	}

	if c.Notifications.URL != "" && !isHTTPURL(c.Notifications.URL) {
		errs = append(errs, fmt.Errorf("notifications.url must be a valid http or https URL"))
	}
	if c.Telemetry.OTLPEndpoint != "" && !isHTTPURL(c.Telemetry.OTLPEndpoint) {
		errs = append(errs, fmt.Errorf("telemetry.otlp_endpoint must be a valid http or https URL"))
	}

	return errors.Join(errs...)
}

func isHTTPURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Defaults returns a Config with the built-in defaults.
func Defaults() Config {
	return Config{
		Agent: AgentConfig{
			CallTimeoutMinutes: 10,
		},
		Loop: LoopConfig{
			MaxLoops:                50,
			TimeoutMinutes:          120,
			StagnationThreshold:     3,
			RepeatedOutputThreshold: 2,
			MinSubstantialOutput:    64,
			DiffSummaryLimit:        500,
		},
		Output: OutputConfig{
			Verbosity: VerbosityNormal,
			Format:    FormatText,
		},
		TUI: TUIConfig{
			AccentColor:  DefaultAccentColor,
			LogRetention: 20,
		},
		Notifications: NotificationsConfig{
			OnComplete: true,
			OnStop:     true,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "codchestra",
		},
	}
}

// Load finds and reads the configuration for dir. It walks up from dir
// looking for codchestra.toml, then .codchestrarc, in each directory. When
// neither exists anywhere, defaults are returned with no error.
func Load(dir string) (*Config, error) {
	path := find(dir)
	if path == "" {
		cfg := Defaults()
		cfg.Project.Name = DetectProjectName(dir)
		return &cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads one configuration file. Files named .codchestrarc are read
// as legacy JSON-with-comments; anything else is TOML. Unknown TOML keys are
// rejected as likely typos.
func LoadFile(path string) (*Config, error) {
	var cfg *Config
	var err error
	if filepath.Base(path) == LegacyFileName {
		cfg, err = loadLegacy(path)
	} else {
		cfg, err = loadTOML(path)
	}
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	if cfg.Project.Name == "" {
		cfg.Project.Name = DetectProjectName(filepath.Dir(path))
	}
	return cfg, nil
}

func loadTOML(path string) (*Config, error) {
	cfg := Defaults()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s (possible typos?)", path, strings.Join(keys, ", "))
	}
	return &cfg, nil
}

// find walks up from dir and returns the first config file found, or "".
func find(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		for _, name := range []string{FileName, LegacyFileName} {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Root returns the project root: the directory holding the config file, or
// fallback when defaults were used.
func (c *Config) Root(fallback string) string {
	if c.Path == "" {
		return fallback
	}
	return filepath.Dir(c.Path)
}
