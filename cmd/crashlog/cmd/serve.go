package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashlog/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the crash report collection server",
	Long: `Run an HTTP server that accepts reports from the upload transport and keeps
them as JSON files. Point delivery.upload.url at <addr>/api/v1/reports.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := server.NewStore(cfg.Server.Dir)
	if err != nil {
		return err
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(store, server.WithLogger(logger.Logger), server.WithToken(cfg.Server.Token))
	return srv.ListenAndServe(ctx, addr)
}
