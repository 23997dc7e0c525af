package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/explainforge/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and event stream",
	Long: `Start the workflow API on the configured port: process control, approvals,
repository monitoring, and a per-session Server-Sent Events stream.

Workflow history is journaled to ~/.explainforge/journal.db. The server shuts
down gracefully on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}

		jour, err := openJournal()
		if err != nil {
			return err
		}
		defer jour.Close()

		eng, err := buildEngine(cfg, jour, nil)
		if err != nil {
			return err
		}
		defer eng.prov.WaitDeletions()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		server := web.NewServer(cfg, eng.orch, eng.registry, eng.prov, eng.monitor, jour, eng.bus, newFetcher(cfg), eng.logger)
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
}
