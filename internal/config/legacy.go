package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// legacyConfig is the flat .codchestrarc shape. Absent keys keep defaults.
type legacyConfig struct {
	MaxLoops             *int     `json:"maxLoops"`
	TimeoutMinutes       *int     `json:"timeoutMinutes"`
	AICallTimeoutMinutes *int     `json:"aiCallTimeoutMinutes"`
	AICommand            *string  `json:"aiCommand"`
	AIArgs               []string `json:"aiArgs"`
	Verbosity            *string  `json:"verbosity"`
	OutputFormat         *string  `json:"outputFormat"`
}

// loadLegacy reads .codchestrarc. Comments and trailing commas are allowed.
func loadLegacy(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var lc legacyConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &lc); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg := Defaults()
	lc.apply(&cfg)
	return &cfg, nil
}

func (lc legacyConfig) apply(cfg *Config) {
	if lc.MaxLoops != nil {
		cfg.Loop.MaxLoops = *lc.MaxLoops
	}
	if lc.TimeoutMinutes != nil {
		cfg.Loop.TimeoutMinutes = *lc.TimeoutMinutes
	}
	if lc.AICallTimeoutMinutes != nil {
		cfg.Agent.CallTimeoutMinutes = *lc.AICallTimeoutMinutes
	}
	if lc.AICommand != nil {
		cfg.Agent.Command = *lc.AICommand
	}
	if len(lc.AIArgs) > 0 {
		cfg.Agent.Args = lc.AIArgs
	}
	if lc.Verbosity != nil {
		cfg.Output.Verbosity = *lc.Verbosity
	}
	if lc.OutputFormat != nil {
		cfg.Output.Format = *lc.OutputFormat
	}
}
