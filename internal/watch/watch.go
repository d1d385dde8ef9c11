// Package watch re-analyzes an export source on a cron schedule.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/f-sync/socialpulse/internal/export"
	"github.com/f-sync/socialpulse/internal/service"
)

const (
	stopTimeout = 5 * time.Second

	errMessageInvalidSchedule = "invalid watch schedule"
	errMessageReadSource      = "read export source"
	errMessageRegisterJob     = "register watch job"

	logMessageWatchStarted  = "watch started"
	logMessageWatchStopped  = "watch stopped"
	logMessageRunStarted    = "watch run started"
	logMessageRunCompleted  = "watch run completed"
	logMessageRunFailed     = "watch run failed"
	logMessageStopTimeout   = "watch stop timed out waiting for a running job"
	logFieldSchedule        = "schedule"
	logFieldSource          = "source"
	logFieldSnapshotID      = "snapshot_id"
	logFieldHasComparison   = "has_comparison"
	logFieldAlertCount      = "alert_count"
	logFieldRunDuration     = "duration"
	logFieldSuspiciousCount = "suspicious"
)

var (
	// ErrMissingSource is returned when no export source is configured.
	ErrMissingSource = errors.New("watch source is required")
	// ErrAlreadyStarted is returned by Start while a schedule is running.
	ErrAlreadyStarted = errors.New("watch already started")
)

// Runner executes one analysis of a set of export files.
type Runner interface {
	AnalyzeFiles(ctx context.Context, files []export.InputFile, label string) (service.Outcome, error)
}

// Config selects the schedule, the export path and the snapshot label.
type Config struct {
	Schedule string
	Source   string
	Label    string
}

// Service runs the analysis on its schedule. Overlapping runs are skipped.
type Service struct {
	config     Config
	runner     Runner
	readExport func(string) ([]export.InputFile, error)
	logger     *zap.Logger

	mutex   sync.Mutex
	cron    *rcron.Cron
	stopped chan struct{}
}

// Option customizes a Service.
type Option func(*Service)

// WithExportReader replaces export.ReadExport.
func WithExportReader(reader func(string) ([]export.InputFile, error)) Option {
	return func(watchService *Service) {
		if reader != nil {
			watchService.readExport = reader
		}
	}
}

// New validates the schedule and builds a stopped Service.
func New(config Config, runner Runner, logger *zap.Logger, options ...Option) (*Service, error) {
	if config.Source == "" {
		return nil, ErrMissingSource
	}
	if _, err := rcron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("%s %q: %w", errMessageInvalidSchedule, config.Schedule, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	watchService := &Service{
		config:     config,
		runner:     runner,
		readExport: export.ReadExport,
		logger:     logger,
	}
	for _, option := range options {
		option(watchService)
	}
	return watchService, nil
}

// RunOnce reads the export source and runs one analysis.
func (watchService *Service) RunOnce(ctx context.Context) (service.Outcome, error) {
	startedAt := time.Now()
	watchService.logger.Info(logMessageRunStarted, zap.String(logFieldSource, watchService.config.Source))

	files, err := watchService.readExport(watchService.config.Source)
	if err != nil {
		return service.Outcome{}, fmt.Errorf("%s: %w", errMessageReadSource, err)
	}
	outcome, err := watchService.runner.AnalyzeFiles(ctx, files, watchService.config.Label)
	if err != nil {
		return service.Outcome{}, err
	}
	watchService.logger.Info(logMessageRunCompleted,
		zap.String(logFieldSnapshotID, outcome.SnapshotID),
		zap.Bool(logFieldHasComparison, outcome.Comparison != nil),
		zap.Int(logFieldAlertCount, len(outcome.Analysis.SocialHealth.Alerts)),
		zap.Int(logFieldSuspiciousCount, len(outcome.Analysis.Relationships.Suspicious)),
		zap.Duration(logFieldRunDuration, time.Since(startedAt)),
	)
	return outcome, nil
}

// Start schedules RunOnce and returns immediately. The schedule stops when ctx is
// cancelled or Stop is called; Start may be called again after that.
func (watchService *Service) Start(ctx context.Context) error {
	watchService.mutex.Lock()
	defer watchService.mutex.Unlock()
	if watchService.cron != nil {
		return ErrAlreadyStarted
	}

	scheduler := rcron.New(rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger)))
	if _, err := scheduler.AddFunc(watchService.config.Schedule, func() {
		if _, err := watchService.RunOnce(ctx); err != nil {
			watchService.logger.Error(logMessageRunFailed, zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("%s: %w", errMessageRegisterJob, err)
	}
	scheduler.Start()
	watchService.cron = scheduler
	stopped := make(chan struct{})
	watchService.stopped = stopped
	watchService.logger.Info(logMessageWatchStarted, zap.String(logFieldSchedule, watchService.config.Schedule))

	go func() {
		select {
		case <-ctx.Done():
			watchService.Stop()
		case <-stopped:
		}
	}()
	return nil
}

// Stop halts the schedule and waits for a running job to finish, up to a timeout.
func (watchService *Service) Stop() {
	watchService.mutex.Lock()
	scheduler := watchService.cron
	stopped := watchService.stopped
	watchService.cron = nil
	watchService.stopped = nil
	watchService.mutex.Unlock()

	if scheduler == nil {
		return
	}
	close(stopped)
	select {
	case <-scheduler.Stop().Done():
	case <-time.After(stopTimeout):
		watchService.logger.Warn(logMessageStopTimeout)
	}
	watchService.logger.Info(logMessageWatchStopped)
}
