package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, it applies defaults to anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./explainforge.yaml, ~/.explainforge/config.yaml.
// If none exists, a fully-defaulted config is returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"explainforge.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".explainforge", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &Config{}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills in pipeline stages, intervals, caps, and paths that the
// file did not set.
func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline
	if p.Name == "" {
		p.Name = "explainforge"
	}
	if p.Defaults.WordCap == 0 {
		p.Defaults.WordCap = 250
	}
	if p.Defaults.Timeout == "" {
		p.Defaults.Timeout = "2m"
	}
	if len(p.Stages) == 0 {
		for _, id := range DefaultStageIDs {
			p.Stages = append(p.Stages, Stage{ID: id})
		}
	}
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.WordCap == 0 {
			s.WordCap = p.Defaults.WordCap
		}
		if s.PromptTemplate == "" {
			s.PromptTemplate = s.ID + ".md"
		}
	}

	if cfg.Approval.Mode == "" {
		cfg.Approval.Mode = "all"
	}

	if cfg.Monitor.HealthInterval == "" {
		cfg.Monitor.HealthInterval = "10s"
	}
	if cfg.Monitor.RepoInterval == "" {
		cfg.Monitor.RepoInterval = "45s"
	}

	r := &cfg.Repository
	if r.Root == "" {
		if home, err := os.UserHomeDir(); err == nil {
			r.Root = filepath.Join(home, ".explainforge", "repos")
		} else {
			r.Root = filepath.Join(os.TempDir(), "explainforge-repos")
		}
	}
	if r.Branch == "" {
		r.Branch = "main"
	}
	if r.MaxSessions == 0 {
		r.MaxSessions = 5
	}
	if r.CleanupDelay == "" {
		r.CleanupDelay = "5s"
	}
	if r.ContextLines == 0 {
		r.ContextLines = 5
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}

	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "llama3"
	}
	if cfg.Generator.Timeout == "" {
		cfg.Generator.Timeout = "60s"
	}

	if len(cfg.Source.Kinds) == 0 {
		cfg.Source.Kinds = []string{"liked"}
	}
	if cfg.Source.MaxResults == 0 {
		cfg.Source.MaxResults = 10
	}
}

// HealthInterval returns the parsed health-monitor interval.
func (c *Config) HealthInterval() time.Duration {
	return parseDurationOr(c.Monitor.HealthInterval, 10*time.Second)
}

// RepoInterval returns the parsed repository-poll interval.
func (c *Config) RepoInterval() time.Duration {
	return parseDurationOr(c.Monitor.RepoInterval, 45*time.Second)
}

// CleanupDelay returns the parsed delay before session repository removal.
func (c *Config) CleanupDelay() time.Duration {
	return parseDurationOr(c.Repository.CleanupDelay, 5*time.Second)
}

// GeneratorTimeout returns the parsed per-request generator timeout.
func (c *Config) GeneratorTimeout() time.Duration {
	return parseDurationOr(c.Generator.Timeout, 60*time.Second)
}

// StageTimeout returns the parsed per-stage generation timeout.
func (c *Config) StageTimeout() time.Duration {
	return parseDurationOr(c.Pipeline.Defaults.Timeout, 2*time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
