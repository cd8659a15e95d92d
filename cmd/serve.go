package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voicelead/calltrack/internal/analysis"
	"github.com/voicelead/calltrack/internal/crm"
	"github.com/voicelead/calltrack/internal/httpapi"
	"github.com/voicelead/calltrack/internal/ledger"
	"github.com/voicelead/calltrack/internal/routing"
	"github.com/voicelead/calltrack/internal/store"
	"github.com/voicelead/calltrack/pkg/openai"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateServe(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.NewPostgres(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		var pipeline *analysis.Pipeline
		if cfg.OpenAI.Key != "" {
			pipeline = analysis.NewPipeline(st, openai.NewClient(cfg.OpenAI.Key), cfg.OpenAI, cfg.Analysis)
		} else {
			zap.L().Warn("openai key not configured, analysis endpoint disabled")
		}

		router := httpapi.NewRouter(cfg, httpapi.Deps{
			Store:      st,
			Resolver:   routing.NewResolver(st),
			Ledger:     ledger.New(st),
			Reconciler: crm.NewReconciler(st),
			Pipeline:   pipeline,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
