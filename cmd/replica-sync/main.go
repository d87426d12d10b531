package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/auth"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/config"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/database"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/ephemeral"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/logging"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/server"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/syncer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "replica-sync",
		Short: "Local replica synchronization service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newServeCommand(), newApplyCommand(), newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP sync service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().Duration("ephemeral-ttl", defaults.GetDuration("ephemeral.ttl"), "Retention of post edit and delete ordering state")
	cmd.PersistentFlags().String("issuer", defaults.GetString("auth.issuer"), "Connection token issuer")
	cmd.PersistentFlags().String("signing-secret", "", "Connection token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "ephemeral.ttl", "ephemeral-ttl")
	bindFlag(cmd, "auth.issuer", "issuer")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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

// application holds the components shared by every command.
type application struct {
	config    config.AppConfig
	logger    *zap.Logger
	db        *gorm.DB
	ephemeral *ephemeral.Store
	syncer    *syncer.Service
}

func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	store, err := database.NewStore(database.StoreConfig{
		Database:   db,
		IDProvider: replica.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	ephemeralStore := ephemeral.NewStore(ephemeral.Config{TTL: appConfig.EphemeralTTL, Logger: logger})
	syncService, err := syncer.NewService(syncer.ServiceConfig{
		Store:     store,
		Ephemeral: ephemeralStore,
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &application{
		config:    appConfig,
		logger:    logger,
		db:        db,
		ephemeral: ephemeralStore,
		syncer:    syncService,
	}, nil
}

func (a *application) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func runServer(ctx context.Context) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.config.ValidateAuth(); err != nil {
		return err
	}
	validator, err := auth.NewTokenValidator(auth.TokenValidatorConfig{
		SigningSecret: []byte(app.config.SigningSecret),
		Issuer:        app.config.Issuer,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Syncer:            app.syncer,
		Ephemeral:         app.ephemeral,
		Validator:         validator,
		HeartbeatInterval: app.config.HeartbeatInterval,
		Logger:            app.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    app.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
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
		for _, connection := range app.ephemeral.Connections() {
			app.syncer.TeardownConnection(connection)
		}
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
