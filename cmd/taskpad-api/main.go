package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/taskpadhq/taskpad/internal/auth"
	"github.com/taskpadhq/taskpad/internal/config"
	"github.com/taskpadhq/taskpad/internal/database"
	"github.com/taskpadhq/taskpad/internal/document"
	"github.com/taskpadhq/taskpad/internal/logging"
	"github.com/taskpadhq/taskpad/internal/server"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskpad-api",
		Short: "Taskpad document synchronization server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("document-id", defaults.GetString("document.id"), "Identifier of the synchronized document")
	cmd.PersistentFlags().Int("history-limit", defaults.GetInt("history.limit"), "Maximum archived revisions returned per listing")
	cmd.PersistentFlags().String("equal-timestamp-policy", defaults.GetString("sync.equal_timestamp_policy"), "Behavior for pushes matching the stored timestamp (noop, conflict)")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("credential", "", "Shared sync credential (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "document.id", "document-id")
	bindFlag(cmd, "history.limit", "history-limit")
	bindFlag(cmd, "sync.equal_timestamp_policy", "equal-timestamp-policy")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.credential", "credential")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	documentID, err := document.NewDocumentID(appConfig.DocumentID)
	if err != nil {
		return err
	}

	credentials, err := auth.NewCredentialVerifier(appConfig.Credential)
	if err != nil {
		return err
	}

	sessions := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        appConfig.SessionIssuer,
		Audience:      appConfig.SessionAudience,
		SessionTTL:    appConfig.SessionTTL,
	})

	documentService, err := document.NewService(document.ServiceConfig{
		Database:             db,
		EqualTimestampPolicy: appConfig.EqualTimestampPolicy,
		HistoryLimit:         appConfig.HistoryLimit,
		Logger:               logger,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Credentials:     credentials,
		Sessions:        sessions,
		DocumentService: documentService,
		DocumentID:      documentID,
		Dispatcher:      server.NewRealtimeDispatcher(),
		Metrics:         server.NewMetrics(registry),
		Registry:        registry,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
