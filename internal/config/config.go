// Package config handles broker configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the complete broker configuration.
type Config struct {
	Proxy      ProxyConfig      `koanf:"proxy"`
	Control    ControlConfig    `koanf:"control"`
	Executor   ExecutorConfig   `koanf:"executor"`
	Container  ContainerConfig  `koanf:"container"`
	Snippet    SnippetConfig    `koanf:"snippet"`
	Env        EnvConfig        `koanf:"env"`
	Database   DatabaseConfig   `koanf:"database"`
	LangServer LangServerConfig `koanf:"langserver"`
	Logging    LoggingConfig    `koanf:"logging"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

type ProxyConfig struct {
	// Listen is the fixed localhost address the permission proxy binds.
	// Binding to a non-local address is refused at startup.
	Listen string `koanf:"listen"`
}

type ControlConfig struct {
	Listen string `koanf:"listen"`
}

type ExecutorConfig struct {
	// Backend selects "preamble" or "container".
	Backend        string        `koanf:"backend"`
	RuntimeCommand string        `koanf:"runtime_command"`
	DefaultTimeout time.Duration `koanf:"default_timeout"`
	WorkDir        string        `koanf:"work_dir"`
}

type ContainerConfig struct {
	CLI                 string        `koanf:"cli"`
	Image               string        `koanf:"image"`
	CacheVolume         string        `koanf:"cache_volume"`
	CacheMount          string        `koanf:"cache_mount"`
	CodeMount           string        `koanf:"code_mount"`
	CPULimit            string        `koanf:"cpu_limit"`
	MemoryLimit         string        `koanf:"memory_limit"`
	BaseWorkDir         string        `koanf:"base_work_dir"`
	TypeCheckerCommand  []string      `koanf:"type_checker_command"`
	CacheWarmupTimeout  time.Duration `koanf:"cache_warmup_timeout"`
}

type SnippetConfig struct {
	Dir string `koanf:"dir"`
}

type EnvConfig struct {
	// Prefix strips this token from ambient process variables that feed
	// the env allowlist, e.g. "BROKER_ENV_".
	Prefix string `koanf:"prefix"`
	// File is the dotenv-style file that takes precedence over ambient
	// variables.
	File string `koanf:"file"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

type LangServerConfig struct {
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type LoggingConfig struct {
	Output string        `koanf:"output"`
	Level  string        `koanf:"level"`
	File   LogFileConfig `koanf:"file"`
}

type LogFileConfig struct {
	Path string `koanf:"path"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Listen: "127.0.0.1:4555",
		},
		Control: ControlConfig{
			Listen: "127.0.0.1:4556",
		},
		Executor: ExecutorConfig{
			Backend:        "preamble",
			RuntimeCommand: "node",
			DefaultTimeout: 30 * time.Second,
		},
		Container: ContainerConfig{
			CLI:                "docker",
			CacheVolume:        "ghbroker-cache",
			CacheMount:         "/cache",
			CodeMount:          "/workspace",
			TypeCheckerCommand: []string{"/cache/node_modules/.bin/tsserver", "--useInferredProjectPerProjectRoot"},
			CacheWarmupTimeout: 60 * time.Second,
		},
		Snippet: SnippetConfig{
			Dir: "snippets",
		},
		Env: EnvConfig{
			Prefix: "BROKER_ENV_",
			File:   ".bun-runner-env",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "ghbroker.db",
		},
		LangServer: LangServerConfig{
			RequestTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Output: "stdout",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9090",
		},
	}
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := Defaults()

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Environment variable overrides: BROKER_PROXY_LISTEN -> proxy.listen.
	// Only the first underscore separates the section from the field name;
	// subsequent underscores are preserved as literal characters in field
	// names.
	if err := k.Load(env.Provider("BROKER_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BROKER_")
		s = strings.ToLower(s)
		if i := strings.Index(s, "_"); i > 0 {
			section, field := s[:i], s[i+1:]
			switch section {
			case "proxy", "control", "executor", "container", "snippet", "env", "database", "langserver", "logging", "metrics":
				if section == "logging" && strings.HasPrefix(field, "file_") {
					return "logging.file." + field[len("file_"):]
				}
				return section + "." + field
			}
		}
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}
