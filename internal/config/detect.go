package config

import (
	"bufio"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
)

// manifestDetectors are tried in order; the first non-empty name wins.
var manifestDetectors = []func(dir string) string{
	nameFromGoMod,
	nameFromPackageJSON,
	nameFromPyproject,
	nameFromCargo,
}

// DetectProjectName infers a project name from manifest files in dir
// (go.mod, package.json, pyproject.toml, Cargo.toml). Unreadable manifests
// are skipped. Falls back to the directory base name.
func DetectProjectName(dir string) string {
	for _, detect := range manifestDetectors {
		if name := detect(dir); name != "" {
			return name
		}
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return filepath.Base(abs)
	}
	return filepath.Base(dir)
}

// nameFromGoMod returns the last element of the module path.
func nameFromGoMod(dir string) string {
	f, err := os.Open(filepath.Join(dir, "go.mod"))
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		rest, ok := strings.CutPrefix(line, "module")
		if !ok || rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
			continue
		}
		mod := strings.Trim(strings.TrimSpace(rest), `"`)
		if mod == "" {
			return ""
		}
		return path.Base(mod)
	}
	return ""
}

func nameFromPackageJSON(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &p); err != nil {
		return ""
	}
	return p.Name
}

func nameFromPyproject(dir string) string {
	var p struct {
		Project struct {
			Name string `toml:"name"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name string `toml:"name"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.DecodeFile(filepath.Join(dir, "pyproject.toml"), &p); err != nil {
		return ""
	}
	if p.Project.Name != "" {
		return p.Project.Name
	}
	return p.Tool.Poetry.Name
}

func nameFromCargo(dir string) string {
	var c struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
	}
	if _, err := toml.DecodeFile(filepath.Join(dir, "Cargo.toml"), &c); err != nil {
		return ""
	}
	return c.Package.Name
}
