package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/f-sync/socialpulse/internal/config"
	"github.com/f-sync/socialpulse/internal/service"
	"github.com/f-sync/socialpulse/internal/watch"
)

const (
	commandUse                 = "watch"
	commandShortDescription    = "Re-analyze an export on a cron schedule"
	flagConfigName             = "config"
	flagConfigDescription      = "Path to a YAML, TOML or JSON configuration file"
	flagSourceName             = "source"
	flagSourceDescription      = "Export zip or directory to analyze on each run"
	flagScheduleName           = "schedule"
	flagScheduleDescription    = "Cron expression or descriptor such as @daily"
	flagLabelName              = "label"
	flagLabelDescription       = "Label stored with scheduled snapshots"
	flagRunNowName             = "run-now"
	flagRunNowDescription      = "Run one analysis immediately before scheduling"
	flagStorageDriverName      = "storage-driver"
	flagStorageDriverDesc      = "Snapshot storage driver (memory or sqlite)"
	flagStoragePathName        = "storage-path"
	flagStoragePathDescription = "SQLite database path"
	flagTierName               = "tier"
	flagTierDescription        = "Feature tier (free or premium)"
	errMessageLoadConfig       = "load configuration"
	errMessageLoggerCreate     = "create logger"
	errMessageServiceCreate    = "create analysis service"
	errMessageWatchCreate      = "create watch"
	errMessageWatchStart       = "start watch"
	logMessageInitialRunFailed = "initial run failed"
	logMessageStoreCloseError  = "snapshot store close failure"
)

func main() {
	cobra.CheckErr(newWatchCommand().Execute())
}

func newWatchCommand() *cobra.Command {
	configuration := config.NewViper()
	var (
		configFile string
		runNow     bool
	)

	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		RunE: func(command *cobra.Command, _ []string) error {
			return runWatchCommand(command.Context(), configuration, configFile, runNow)
		},
	}

	command.Flags().StringVar(&configFile, flagConfigName, "", flagConfigDescription)
	command.Flags().BoolVar(&runNow, flagRunNowName, false, flagRunNowDescription)
	command.Flags().String(flagSourceName, "", flagSourceDescription)
	command.Flags().String(flagScheduleName, "", flagScheduleDescription)
	command.Flags().String(flagLabelName, "", flagLabelDescription)
	command.Flags().String(flagStorageDriverName, "", flagStorageDriverDesc)
	command.Flags().String(flagStoragePathName, "", flagStoragePathDescription)
	command.Flags().String(flagTierName, "", flagTierDescription)

	bindFlagToViper(configuration, command, config.KeyWatchSource, flagSourceName)
	bindFlagToViper(configuration, command, config.KeyWatchSchedule, flagScheduleName)
	bindFlagToViper(configuration, command, config.KeyWatchLabel, flagLabelName)
	bindFlagToViper(configuration, command, config.KeyStorageDriver, flagStorageDriverName)
	bindFlagToViper(configuration, command, config.KeyStoragePath, flagStoragePathName)
	bindFlagToViper(configuration, command, config.KeyFeaturesTier, flagTierName)

	return command
}

func bindFlagToViper(configuration *viper.Viper, command *cobra.Command, key string, flagName string) {
	cobra.CheckErr(configuration.BindPFlag(key, command.Flags().Lookup(flagName)))
}

func runWatchCommand(parentContext context.Context, configuration *viper.Viper, configFile string, runNow bool) error {
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

	watchService, err := watch.New(watch.Config{
		Schedule: loaded.Watch.Schedule,
		Source:   loaded.Watch.Source,
		Label:    loaded.Watch.Label,
	}, pipeline, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageWatchCreate, err)
	}

	if parentContext == nil {
		parentContext = context.Background()
	}
	signalContext, stop := signal.NotifyContext(parentContext, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runNow {
		if _, err := watchService.RunOnce(signalContext); err != nil {
			logger.Error(logMessageInitialRunFailed, zap.Error(err))
		}
	}
	if err := watchService.Start(signalContext); err != nil {
		return fmt.Errorf("%s: %w", errMessageWatchStart, err)
	}
	<-signalContext.Done()
	watchService.Stop()
	return nil
}
