package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/lucasnoah/explainforge/internal/agent"
	"github.com/lucasnoah/explainforge/internal/approval"
	"github.com/lucasnoah/explainforge/internal/config"
	"github.com/lucasnoah/explainforge/internal/events"
	"github.com/lucasnoah/explainforge/internal/generate"
	"github.com/lucasnoah/explainforge/internal/journal"
	"github.com/lucasnoah/explainforge/internal/orchestrator"
	"github.com/lucasnoah/explainforge/internal/provision"
	"github.com/lucasnoah/explainforge/internal/repomon"
	"github.com/lucasnoah/explainforge/internal/scan"
	"github.com/lucasnoah/explainforge/internal/session"
	"github.com/lucasnoah/explainforge/internal/source"
)

// engine bundles the fully wired workflow core shared by serve and run.
type engine struct {
	cfg      *config.Config
	gen      agent.Generator
	registry *session.Registry
	bus      *events.Bus
	prov     *provision.Provisioner
	monitor  *repomon.Monitor
	jour     *journal.DB
	orch     *orchestrator.Orchestrator
	logger   *slog.Logger
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// newFetcher picks the input source: a directory of item files when
// configured, otherwise the built-in samples.
func newFetcher(cfg *config.Config) source.Fetcher {
	if cfg.Source.Dir != "" {
		return source.NewDir(afero.NewOsFs(), cfg.Source.Dir)
	}
	return source.NewStatic(source.Samples())
}

// newGenerator picks the configured backend: HTTP when a URL is set,
// otherwise the offline local generator.
func newGenerator(cfg *config.Config) agent.Generator {
	if cfg.Generator.URL != "" {
		return generate.NewHTTPClient(cfg.Generator.URL, cfg.Generator.Model, cfg.Generator.Token, cfg.GeneratorTimeout())
	}
	return generate.Local{MaxWords: cfg.Pipeline.Defaults.WordCap}
}

// buildEngine wires registry, gate, bus, provisioner, monitor, and
// orchestrator from the config. jour may be nil to run without journaling.
func buildEngine(cfg *config.Config, jour *journal.DB, logger *slog.Logger) (*engine, error) {
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", errs[0])
	}
	if logger == nil {
		logger = newLogger()
	}

	registry := session.NewRegistry()
	gate := approval.NewGate(approval.NewPolicy(cfg.Approval.Mode, cfg.Approval.Stages))
	bus := events.NewBus(logger)
	gen := newGenerator(cfg)

	appRoot, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	defaults := provision.RepoConfig{
		SessionID: provision.DefaultSessionID,
		RepoURL:   cfg.Repository.URL,
		Branch:    cfg.Repository.Branch,
		Username:  cfg.Repository.Username,
		Token:     cfg.Repository.Token,
	}
	prov, err := provision.New(afero.NewOsFs(), cfg.Repository.Root, appRoot,
		defaults, cfg.Repository.MaxSessions, cfg.CleanupDelay(), logger)
	if err != nil {
		return nil, fmt.Errorf("provisioner: %w", err)
	}
	if cfg.Repository.URL != "" {
		// Materialize the default session config so its repo path is derived.
		if _, err := prov.SetConfig(provision.DefaultSessionID, provision.Overrides{}); err != nil {
			return nil, fmt.Errorf("repository defaults: %w", err)
		}
	}

	scanner := scan.NewScanner(scan.NewRunner(&scan.ExecRunner{}), toolConfigs(cfg), nil, cfg.Repository.ContextLines, logger)
	monitor := repomon.NewMonitor(&repomon.ExecGit{}, scanner, prov.VerifyPath, logger)

	orch, err := orchestrator.New(cfg, gen, registry, gate, monitor, prov, bus, jour, logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	return &engine{
		cfg:      cfg,
		gen:      gen,
		registry: registry,
		bus:      bus,
		prov:     prov,
		monitor:  monitor,
		jour:     jour,
		orch:     orch,
		logger:   logger,
	}, nil
}

// toolConfigs converts the YAML scanner tool table into scan configs.
func toolConfigs(cfg *config.Config) []scan.ToolConfig {
	var out []scan.ToolConfig
	for name, t := range cfg.Repository.Tools {
		timeout := 30 * time.Second
		if t.Timeout != "" {
			if d, err := time.ParseDuration(t.Timeout); err == nil && d > 0 {
				timeout = d
			}
		}
		out = append(out, scan.ToolConfig{
			Name:       name,
			Command:    t.Command,
			Parser:     t.Parser,
			Extensions: t.Extensions,
			Timeout:    timeout,
		})
	}
	return out
}

// openJournal opens and migrates the default journal database.
func openJournal() (*journal.DB, error) {
	path, err := journal.DefaultDBPath()
	if err != nil {
		return nil, fmt.Errorf("journal path: %w", err)
	}
	d, err := journal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return d, nil
}
