// Package config loads the ailang-mcp configuration file.
//
// The file is optional. YAML is the primary format; a file with a .toml
// extension is parsed as TOML with the same keys. String values expand
// ${VAR} references from the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	projectConfigYAML = "ailang-mcp.yaml"
	projectConfigTOML = "ailang-mcp.toml"
	homeConfigDir     = ".ailang-mcp"
	homeConfigName    = "config.yaml"

	DefaultCommand        = "ailang"
	DefaultTimeout        = 30 * time.Second
	DefaultEvalTimeout    = 10 * time.Second
	DefaultMaxOutputBytes = 1 << 20
	DefaultHealthSchedule = "@every 5m"
)

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

// File is the on-disk configuration shape.
type File struct {
	Ailang    Ailang    `yaml:"ailang" toml:"ailang"`
	Limits    Limits    `yaml:"limits" toml:"limits"`
	Tools     Tools     `yaml:"tools" toml:"tools"`
	HTTP      HTTP      `yaml:"http" toml:"http"`
	Health    Health    `yaml:"health" toml:"health"`
	Telemetry Telemetry `yaml:"telemetry" toml:"telemetry"`
}

// Ailang locates the ailang program.
type Ailang struct {
	Command string            `yaml:"command" toml:"command"`
	Args    []string          `yaml:"args,omitempty" toml:"args"`
	Env     map[string]string `yaml:"env,omitempty" toml:"env"`
	Workdir string            `yaml:"workdir,omitempty" toml:"workdir"`
}

// Limits bounds every subprocess.
type Limits struct {
	Timeout        Duration `yaml:"timeout" toml:"timeout"`
	EvalTimeout    Duration `yaml:"eval_timeout" toml:"eval_timeout"`
	MaxOutputBytes int      `yaml:"max_output_bytes" toml:"max_output_bytes"`
}

// Tools shapes the advertised catalog.
type Tools struct {
	Prefix string `yaml:"prefix,omitempty" toml:"prefix"`
}

// HTTP configures the Streamable HTTP transport. An empty Addr keeps stdio.
type HTTP struct {
	Addr      string `yaml:"addr,omitempty" toml:"addr"`
	JWTSecret string `yaml:"jwt_secret,omitempty" toml:"jwt_secret"`
}

// Health configures the background availability probe.
type Health struct {
	Enabled  *bool    `yaml:"enabled,omitempty" toml:"enabled"`
	Schedule string   `yaml:"schedule,omitempty" toml:"schedule"`
	Timeout  Duration `yaml:"timeout,omitempty" toml:"timeout"`
}

// IsEnabled reports whether the probe should run. It defaults to true.
func (h Health) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// Telemetry configures span export.
type Telemetry struct {
	Traces   bool   `yaml:"traces,omitempty" toml:"traces"`
	Endpoint string `yaml:"endpoint,omitempty" toml:"endpoint"`
}

// Default returns the configuration used when no file is found.
func Default() File {
	return File{
		Ailang: Ailang{Command: DefaultCommand},
		Limits: Limits{
			Timeout:        Duration(DefaultTimeout),
			EvalTimeout:    Duration(DefaultEvalTimeout),
			MaxOutputBytes: DefaultMaxOutputBytes,
		},
		Health: Health{Schedule: DefaultHealthSchedule},
	}
}

// Discover resolves the config location with first-match semantics.
func Discover(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverFrom(explicitPath, cwd, homeDir)
}

// DiscoverFrom is a testable variant of Discover. An explicit path must exist;
// otherwise ./ailang-mcp.yaml, ./ailang-mcp.toml and ~/.ailang-mcp/config.yaml
// are tried in order.
func DiscoverFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	explicit := strings.TrimSpace(explicitPath)

	var candidates []string
	if explicit != "" {
		candidates = []string{filepath.Clean(explicit)}
	} else {
		candidates = []string{
			filepath.Join(cwd, projectConfigYAML),
			filepath.Join(cwd, projectConfigTOML),
			filepath.Join(homeDir, homeConfigDir, homeConfigName),
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if explicit != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load reads path over the defaults, expands environment references and
// validates the result. Unknown keys are rejected.
func Load(path string) (File, error) {
	cfg := Default()

	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return File{}, fmt.Errorf("parsing config %q: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return File{}, fmt.Errorf("parsing config %q: unknown key %q", path, undecoded[0].String())
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return File{}, fmt.Errorf("parsing config %q: %w", path, err)
		}
	}

	cfg.expand()
	if cfg.Ailang.Workdir != "" {
		cfg.Ailang.Workdir = resolveConfigRelative(filepath.Dir(path), cfg.Ailang.Workdir)
	}
	if err := cfg.Validate(); err != nil {
		return File{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (f File) Validate() error {
	if strings.TrimSpace(f.Ailang.Command) == "" {
		return errors.New("ailang.command is required")
	}
	if f.Limits.Timeout.Std() <= 0 {
		return errors.New("limits.timeout must be positive")
	}
	if f.Limits.EvalTimeout.Std() <= 0 {
		return errors.New("limits.eval_timeout must be positive")
	}
	if f.Limits.MaxOutputBytes <= 0 {
		return errors.New("limits.max_output_bytes must be positive")
	}
	if !prefixPattern.MatchString(f.Tools.Prefix) {
		return fmt.Errorf("tools.prefix %q may only contain letters, digits, '_' and '-'", f.Tools.Prefix)
	}
	if f.Health.Timeout.Std() < 0 {
		return errors.New("health.timeout must not be negative")
	}
	return nil
}

func (f *File) expand() {
	f.Ailang.Command = expandEnvValue(f.Ailang.Command)
	for i, arg := range f.Ailang.Args {
		f.Ailang.Args[i] = expandEnvValue(arg)
	}
	for key, value := range f.Ailang.Env {
		f.Ailang.Env[key] = expandEnvValue(value)
	}
	f.Ailang.Workdir = expandEnvValue(f.Ailang.Workdir)
	f.Tools.Prefix = expandEnvValue(f.Tools.Prefix)
	f.HTTP.Addr = expandEnvValue(f.HTTP.Addr)
	f.HTTP.JWTSecret = expandEnvValue(f.HTTP.JWTSecret)
	f.Health.Schedule = expandEnvValue(f.Health.Schedule)
	f.Telemetry.Endpoint = expandEnvValue(f.Telemetry.Endpoint)
}

func expandEnvValue(value string) string {
	return strings.TrimSpace(os.ExpandEnv(value))
}

func resolveConfigRelative(baseDir, p string) string {
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Join(baseDir, clean)
}
