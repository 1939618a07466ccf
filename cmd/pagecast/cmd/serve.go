package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagecast/internal/jobs"
	"github.com/jmylchreest/pagecast/internal/server"
	"github.com/jmylchreest/pagecast/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the render job server",
	Long: `Start the HTTP server that accepts render jobs, reports their
progress over SSE and serves single-frame captures.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "bind address (overrides config)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	overrideString(cmd.Flags(), "host", &cfg.Server.Host)
	overrideInt(cmd.Flags(), "port", &cfg.Server.Port)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.browsers.Warmup(ctx); err != nil {
		return fmt.Errorf("warming browser pool: %w", err)
	}

	tracker := jobs.NewTracker(logger)
	tracker.Start()
	defer tracker.Stop()

	srv := server.New(cfg.Server, tracker, st.renderer, st.paths, version.Short(), logger)
	return srv.ListenAndServe(ctx)
}
