package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/f-sync/socialpulse/internal/config"
	"github.com/f-sync/socialpulse/internal/export"
	"github.com/f-sync/socialpulse/internal/service"
)

type AnalyzeConfiguration struct {
	ExportPath string
	OutputPath string
	Label      string
	Settings   config.Config
}

type AnalyzeDependencies struct {
	ReadExport      func(string) ([]export.InputFile, error)
	BuildService    func(config.Config, *zap.Logger) (*service.Service, error)
	WriteOutputFile func(string, []byte) error
	Logger          *zap.Logger
	Stdout          io.Writer
	Stderr          io.Writer
}

type AnalyzeApplication struct {
	dependencies AnalyzeDependencies
}

func NewAnalyzeApplication() AnalyzeApplication {
	return NewAnalyzeApplicationWithDependencies(newDefaultAnalyzeDependencies())
}

func NewAnalyzeApplicationWithDependencies(dependencies AnalyzeDependencies) AnalyzeApplication {
	defaultDependencies := newDefaultAnalyzeDependencies()

	if dependencies.ReadExport == nil {
		dependencies.ReadExport = defaultDependencies.ReadExport
	}
	if dependencies.BuildService == nil {
		dependencies.BuildService = defaultDependencies.BuildService
	}
	if dependencies.WriteOutputFile == nil {
		dependencies.WriteOutputFile = defaultDependencies.WriteOutputFile
	}
	if dependencies.Logger == nil {
		dependencies.Logger = defaultDependencies.Logger
	}
	if dependencies.Stdout == nil {
		dependencies.Stdout = defaultDependencies.Stdout
	}
	if dependencies.Stderr == nil {
		dependencies.Stderr = defaultDependencies.Stderr
	}

	return AnalyzeApplication{dependencies: dependencies}
}

// Run analyzes one export and writes the outcome as indented JSON to the output file,
// or to stdout when no output path is configured.
func (application AnalyzeApplication) Run(executionContext context.Context, configuration AnalyzeConfiguration) error {
	files, readError := application.dependencies.ReadExport(configuration.ExportPath)
	if readError != nil {
		return fmt.Errorf(loadErrorFormat, configuration.ExportPath, readError)
	}

	pipeline, buildError := application.dependencies.BuildService(configuration.Settings, application.dependencies.Logger)
	if buildError != nil {
		return fmt.Errorf(serviceErrorFormat, buildError)
	}
	defer func() {
		if closeError := pipeline.Close(); closeError != nil {
			fmt.Fprintf(application.dependencies.Stderr, closeWarningFormat, closeError)
		}
	}()

	outcome, analyzeError := pipeline.AnalyzeFiles(executionContext, files, configuration.Label)
	if analyzeError != nil {
		return fmt.Errorf(analyzeErrorFormat, configuration.ExportPath, analyzeError)
	}

	encoded, encodeError := json.MarshalIndent(outcome, "", "  ")
	if encodeError != nil {
		return fmt.Errorf(encodeErrorFormat, encodeError)
	}
	encoded = append(encoded, '\n')

	if configuration.OutputPath == "" {
		_, writeError := application.dependencies.Stdout.Write(encoded)
		return writeError
	}
	if writeError := application.dependencies.WriteOutputFile(configuration.OutputPath, encoded); writeError != nil {
		return writeError
	}

	health := outcome.Analysis.SocialHealth
	fmt.Fprintf(application.dependencies.Stdout, writeSuccessMessageFormat+"\n",
		configuration.OutputPath, outcome.SnapshotID, health.OverallScore, len(health.Alerts))
	return nil
}

func newDefaultAnalyzeDependencies() AnalyzeDependencies {
	return AnalyzeDependencies{
		ReadExport:      export.ReadExport,
		BuildService:    service.NewFromConfig,
		WriteOutputFile: defaultWriteOutputFile,
		Logger:          zap.NewNop(),
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
	}
}

func defaultWriteOutputFile(outputPath string, contents []byte) error {
	if directory := filepath.Dir(outputPath); directory != "." {
		if mkdirError := os.MkdirAll(directory, 0o755); mkdirError != nil {
			return fmt.Errorf(createFileErrorFormat, outputPath, mkdirError)
		}
	}
	file, createError := os.Create(outputPath)
	if createError != nil {
		return fmt.Errorf(createFileErrorFormat, outputPath, createError)
	}
	defer file.Close()

	if _, writeError := file.Write(contents); writeError != nil {
		return fmt.Errorf(writeFileErrorFormat, outputPath, writeError)
	}
	return nil
}
