package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/f-sync/socialpulse/internal/config"
)

const (
	commandUse                 = "analyze <export.zip|export-directory>"
	commandShortDescription    = "Analyze an Instagram data export and save a snapshot"
	flagConfigName             = "config"
	flagConfigDescription      = "Path to a YAML, TOML or JSON configuration file"
	flagOutName                = "out"
	flagOutDescription         = "Write the analysis JSON to this file instead of stdout"
	flagLabelName              = "label"
	flagLabelDescription       = "Label stored with the snapshot"
	flagStorageDriverName      = "storage-driver"
	flagStorageDriverDesc      = "Snapshot storage driver (memory or sqlite)"
	flagStoragePathName        = "storage-path"
	flagStoragePathDescription = "SQLite database path"
	flagTierName               = "tier"
	flagTierDescription        = "Feature tier (free or premium)"
	flagLogLevelName           = "log-level"
	flagLogLevelDescription    = "Log level (debug, info, warn, error)"
	writeSuccessMessageFormat  = "wrote %s (snapshot %s, health %.1f, %d alerts)"
	loadErrorFormat            = "read %s: %w"
	serviceErrorFormat         = "analysis service: %w"
	analyzeErrorFormat         = "analyze %s: %w"
	encodeErrorFormat          = "encode analysis: %w"
	createFileErrorFormat      = "create %s: %w"
	writeFileErrorFormat       = "write %s: %w"
	closeWarningFormat         = "warning: closing snapshot store: %v\n"
	configErrorFormat          = "load configuration: %w"
	loggerErrorFormat          = "create logger: %w"
)

var errMissingExportPath = errors.New("an export zip or directory is required")

func main() {
	cobra.CheckErr(newAnalyzeCommand().Execute())
}

func newAnalyzeCommand() *cobra.Command {
	configuration := config.NewViper()
	var (
		configFile string
		outputPath string
		label      string
	)

	command := &cobra.Command{
		Use:          commandUse,
		Short:        commandShortDescription,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			if len(arguments) != 1 {
				return errMissingExportPath
			}
			if err := config.LoadDotEnv(); err != nil {
				return fmt.Errorf(configErrorFormat, err)
			}
			loaded, err := config.Load(configuration, configFile)
			if err != nil {
				return fmt.Errorf(configErrorFormat, err)
			}
			logger, err := loaded.Logging.NewLogger()
			if err != nil {
				return fmt.Errorf(loggerErrorFormat, err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			application := NewAnalyzeApplicationWithDependencies(AnalyzeDependencies{
				Logger: logger,
				Stdout: command.OutOrStdout(),
				Stderr: command.ErrOrStderr(),
			})
			return application.Run(command.Context(), AnalyzeConfiguration{
				ExportPath: arguments[0],
				OutputPath: outputPath,
				Label:      label,
				Settings:   loaded,
			})
		},
	}

	command.Flags().StringVar(&configFile, flagConfigName, "", flagConfigDescription)
	command.Flags().StringVar(&outputPath, flagOutName, "", flagOutDescription)
	command.Flags().StringVar(&label, flagLabelName, "", flagLabelDescription)
	command.Flags().String(flagStorageDriverName, "", flagStorageDriverDesc)
	command.Flags().String(flagStoragePathName, "", flagStoragePathDescription)
	command.Flags().String(flagTierName, "", flagTierDescription)
	command.Flags().String(flagLogLevelName, "", flagLogLevelDescription)

	bindFlagToViper(configuration, command, config.KeyStorageDriver, flagStorageDriverName)
	bindFlagToViper(configuration, command, config.KeyStoragePath, flagStoragePathName)
	bindFlagToViper(configuration, command, config.KeyFeaturesTier, flagTierName)
	bindFlagToViper(configuration, command, config.KeyLoggingLevel, flagLogLevelName)

	return command
}

func bindFlagToViper(configuration *viper.Viper, command *cobra.Command, key string, flagName string) {
	cobra.CheckErr(configuration.BindPFlag(key, command.Flags().Lookup(flagName)))
}
