package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"multipost/infrastructure/logger"
	httpHandler "multipost/interfaces/http"
	"multipost/server"
)

func newServeCommand(newApp AppFactory) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			cfg := app.Config.App
			if cfg.SecretKey == "" {
				return configError(errors.New("app.secretKey (SECRET_KEY) must be set to serve the API"))
			}
			if port == 0 {
				port = cfg.Port
			}
			return serve(cmd.Context(), app, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (defaults to app.port)")
	return cmd
}

func serve(ctx context.Context, app *App, port int) error {
	cfg := app.Config.App
	g, ctx := errgroup.WithContext(ctx)

	publishHandler := httpHandler.NewPublishHandler(ctx, app.Platforms, app.Tracker)
	router := server.InitiateRouter(server.Handlers{
		Health:   httpHandler.NewHealthHandler(app.Platforms),
		OAuth:    httpHandler.NewOAuthHandler(app.Creds),
		Platform: httpHandler.NewPlatformHandler(app.Platforms, app.Creds, app.Tracker),
		Publish:  publishHandler,
		Stream:   app.Hub.Serve,
	}, cfg.SecretKey, cfg.CORSOrigins)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.GetLogger().WithFields(map[string]interface{}{"port": port, "tls": cfg.TLSEnabled}).Info("Starting application")
	g.Go(func() error {
		var err error
		if cfg.TLSEnabled && cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			logger.GetLogger().WithFields(map[string]interface{}{"cert": cfg.TLSCertFile, "key": cfg.TLSKeyFile}).Info("Serving HTTPS")
			err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			if cfg.TLSEnabled {
				logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
			}
			err = httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.GetLogger().Info("Application shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		publishHandler.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		return err
	}
	return nil
}
