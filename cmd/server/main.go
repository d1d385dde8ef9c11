package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/f-sync/socialpulse/internal/config"
	"github.com/f-sync/socialpulse/internal/server"
	"github.com/f-sync/socialpulse/internal/service"
)

const (
	commandUse                 = "server"
	commandShortDescription    = "Serve relationship analysis over HTTP"
	flagConfigName             = "config"
	flagConfigDescription      = "Path to a YAML, TOML or JSON configuration file"
	flagHostName               = "host"
	flagHostDescription        = "Host interface for the HTTP server"
	flagPortName               = "port"
	flagPortDescription        = "Port for the HTTP server"
	flagStorageDriverName      = "storage-driver"
	flagStorageDriverDesc      = "Snapshot storage driver (memory or sqlite)"
	flagStoragePathName        = "storage-path"
	flagStoragePathDescription = "SQLite database path"
	flagTierName               = "tier"
	flagTierDescription        = "Feature tier (free or premium)"
	defaultHost                = "127.0.0.1"
	defaultPort                = 8080
	shutdownTimeout            = 10 * time.Second
	errMessageLoadConfig       = "load configuration"
	errMessageLoggerCreate     = "create logger"
	errMessageServiceCreate    = "create analysis service"
	errMessageListenAndServe   = "listen and serve"
	errMessageShutdown         = "shutdown"
	logMessageStartingServer   = "starting HTTP server"
	logMessageShuttingDown     = "shutting down HTTP server"
	logMessageServerStopped    = "server stopped"
	logMessageListenError      = "server listen failure"
	logMessageStoreCloseError  = "snapshot store close failure"
	logFieldAddress            = "address"
)

func main() {
	cobra.CheckErr(newServerCommand().Execute())
}

func newServerCommand() *cobra.Command {
	configuration := config.NewViper()
	var configFile string

	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		RunE: func(command *cobra.Command, _ []string) error {
			return runServerCommand(command.Context(), configuration, configFile)
		},
	}

	command.Flags().StringVar(&configFile, flagConfigName, "", flagConfigDescription)
	command.Flags().String(flagHostName, defaultHost, flagHostDescription)
	command.Flags().Int(flagPortName, defaultPort, flagPortDescription)
	command.Flags().String(flagStorageDriverName, config.StorageDriverMemory, flagStorageDriverDesc)
	command.Flags().String(flagStoragePathName, "", flagStoragePathDescription)
	command.Flags().String(flagTierName, "", flagTierDescription)

	bindFlagToViper(configuration, command, config.KeyServerHost, flagHostName)
	bindFlagToViper(configuration, command, config.KeyServerPort, flagPortName)
	bindFlagToViper(configuration, command, config.KeyStorageDriver, flagStorageDriverName)
	bindFlagToViper(configuration, command, config.KeyStoragePath, flagStoragePathName)
	bindFlagToViper(configuration, command, config.KeyFeaturesTier, flagTierName)

	return command
}

func bindFlagToViper(configuration *viper.Viper, command *cobra.Command, key string, flagName string) {
	cobra.CheckErr(configuration.BindPFlag(key, command.Flags().Lookup(flagName)))
}

func runServerCommand(parentContext context.Context, configuration *viper.Viper, configFile string) error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("%s: %w", errMessageLoadConfig, err)
	}
	loaded, err := config.Load(configuration, configFile)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoadConfig, err)
	}

	logger, err := loaded.Logging.NewLogger()
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pipeline, err := service.NewFromConfig(loaded, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageServiceCreate, err)
	}
	defer func() {
		if closeErr := pipeline.Close(); closeErr != nil {
			logger.Warn(logMessageStoreCloseError, zap.Error(closeErr))
		}
	}()

	router, err := server.NewRouter(server.RouterConfig{
		Service: pipeline,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if parentContext == nil {
		parentContext = context.Background()
	}
	signalContext, stop := signal.NotifyContext(parentContext, os.Interrupt, syscall.SIGTERM)
	defer stop()

	address := loaded.Server.Address()
	logger.Info(logMessageStartingServer, zap.String(logFieldAddress, address))
	httpServer := &http.Server{Addr: address, Handler: router}

	listenErrors := make(chan error, 1)
	go func() {
		listenErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-listenErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(logMessageListenError, zap.Error(err))
			return fmt.Errorf("%s: %w", errMessageListenAndServe, err)
		}
	case <-signalContext.Done():
		logger.Info(logMessageShuttingDown)
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownContext); err != nil {
			return fmt.Errorf("%s: %w", errMessageShutdown, err)
		}
	}

	logger.Info(logMessageServerStopped)
	return nil
}
