// Package service runs the analysis pipeline shared by the HTTP server, the watch
// service and the command line: normalize, analyze against the latest snapshot, save,
// compare and notify, each optional step behind its feature key.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/f-sync/socialpulse/internal/analysis"
	"github.com/f-sync/socialpulse/internal/export"
	"github.com/f-sync/socialpulse/internal/features"
	"github.com/f-sync/socialpulse/internal/notify"
	"github.com/f-sync/socialpulse/internal/snapshots"
)

const (
	errMessageLoadLatest     = "load latest snapshot"
	errMessageSaveSnapshot   = "save snapshot"
	errMessageLoadSaved      = "load saved snapshot"
	errMessageLoadComparison = "load snapshot for comparison"

	logMessageAnalysisSaved      = "analysis saved"
	logMessageNotificationFailed = "notification failed"
	logFieldSnapshotID           = "snapshot_id"
	logFieldLabel                = "label"
	logFieldSuspicious           = "suspicious"
	logFieldOverallScore         = "overall_score"
)

// ErrNoRelationshipData is returned when none of the input files held a recognized category.
var ErrNoRelationshipData = errors.New("no relationship data recognized")

// Dependencies are the collaborators of a Service. Nil members receive defaults.
type Dependencies struct {
	Logger     *zap.Logger
	Store      snapshots.Store
	Gate       features.Gate
	Notifier   notify.Notifier
	Normalizer *export.Normalizer
	Analyzer   *analysis.Analyzer
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	SnapshotID string               `json:"snapshotId"`
	Analysis   analysis.Analysis    `json:"analysis"`
	Comparison *analysis.Comparison `json:"comparison,omitempty"`
}

// Service runs analyses and reads snapshot history.
type Service struct {
	logger     *zap.Logger
	store      snapshots.Store
	gate       features.Gate
	notifier   notify.Notifier
	normalizer *export.Normalizer
	analyzer   *analysis.Analyzer
}

// New fills defaults for missing dependencies: a Nop logger, an in-memory store, a gate
// with every feature disabled and a notifier that discards messages.
func New(dependencies Dependencies) *Service {
	if dependencies.Logger == nil {
		dependencies.Logger = zap.NewNop()
	}
	if dependencies.Store == nil {
		dependencies.Store = snapshots.NewMemoryStore()
	}
	if dependencies.Gate == nil {
		dependencies.Gate = features.StaticGate{}
	}
	if dependencies.Notifier == nil {
		dependencies.Notifier = notify.NopNotifier{}
	}
	if dependencies.Normalizer == nil {
		dependencies.Normalizer = export.NewNormalizer(dependencies.Logger)
	}
	if dependencies.Analyzer == nil {
		dependencies.Analyzer = analysis.NewAnalyzer(nil)
	}
	return &Service{
		logger:     dependencies.Logger,
		store:      dependencies.Store,
		gate:       dependencies.Gate,
		notifier:   dependencies.Notifier,
		normalizer: dependencies.Normalizer,
		analyzer:   dependencies.Analyzer,
	}
}

// Store exposes the snapshot store.
func (service *Service) Store() snapshots.Store {
	return service.store
}

// Gate exposes the feature gate.
func (service *Service) Gate() features.Gate {
	return service.gate
}

// AnalyzeFiles normalizes the files, analyzes them against the latest snapshot when
// block detection or comparison is enabled (suspicious accounts only with block
// detection), saves the result and, when enabled, compares it with the previous
// snapshot and notifies the owner. Notification failures are logged, not returned.
func (service *Service) AnalyzeFiles(ctx context.Context, files []export.InputFile, label string) (Outcome, error) {
	canonicalSet := service.normalizer.MergeFiles(files)

	var previous *analysis.Snapshot
	if service.gate.CanUseFeature(features.BlockDetection) || service.gate.CanUseFeature(features.HistoricalComparison) {
		latest, err := service.store.Latest(ctx)
		switch {
		case err == nil:
			previous = &latest
		case !errors.Is(err, snapshots.ErrSnapshotNotFound):
			return Outcome{}, fmt.Errorf("%s: %w", errMessageLoadLatest, err)
		}
	}

	var result analysis.Analysis
	if service.gate.CanUseFeature(features.BlockDetection) {
		result = service.analyzer.Analyze(canonicalSet, previous)
	} else {
		result = service.analyzer.AnalyzeTrends(canonicalSet, previous)
	}
	if !result.HasRelationshipData() {
		return Outcome{}, ErrNoRelationshipData
	}

	identifier, err := service.store.Save(ctx, result, label)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", errMessageSaveSnapshot, err)
	}
	service.logger.Info(logMessageAnalysisSaved,
		zap.String(logFieldSnapshotID, identifier),
		zap.String(logFieldLabel, label),
		zap.Int(logFieldSuspicious, len(result.Relationships.Suspicious)),
		zap.Float64(logFieldOverallScore, result.SocialHealth.OverallScore),
	)
	outcome := Outcome{SnapshotID: identifier, Analysis: result}

	if previous != nil && service.gate.CanUseFeature(features.HistoricalComparison) {
		current, err := service.store.Get(ctx, identifier)
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", errMessageLoadSaved, err)
		}
		comparison := analysis.Compare(*previous, current)
		outcome.Comparison = &comparison
	}

	if service.gate.CanUseFeature(features.AlertNotifications) {
		service.notify(ctx, outcome)
	}
	return outcome, nil
}

// Compare diffs two stored snapshots. It returns features.ErrFeatureDisabled when
// historical comparison is gated off and snapshots.ErrSnapshotNotFound for unknown ids.
func (service *Service) Compare(ctx context.Context, previousID string, currentID string) (analysis.Comparison, error) {
	if err := features.Require(service.gate, features.HistoricalComparison); err != nil {
		return analysis.Comparison{}, err
	}
	previous, err := service.store.Get(ctx, previousID)
	if err != nil {
		return analysis.Comparison{}, fmt.Errorf("%s %s: %w", errMessageLoadComparison, previousID, err)
	}
	current, err := service.store.Get(ctx, currentID)
	if err != nil {
		return analysis.Comparison{}, fmt.Errorf("%s %s: %w", errMessageLoadComparison, currentID, err)
	}
	return analysis.Compare(previous, current), nil
}

// CompareWithLatest diffs the two most recent snapshots.
func (service *Service) CompareWithLatest(ctx context.Context) (analysis.Comparison, error) {
	if err := features.Require(service.gate, features.HistoricalComparison); err != nil {
		return analysis.Comparison{}, err
	}
	history, err := service.store.List(ctx)
	if err != nil {
		return analysis.Comparison{}, fmt.Errorf("%s: %w", errMessageLoadComparison, err)
	}
	if len(history) < 2 {
		return analysis.Comparison{}, snapshots.ErrSnapshotNotFound
	}
	return analysis.Compare(history[1], history[0]), nil
}

func (service *Service) notify(ctx context.Context, outcome Outcome) {
	if err := service.notifier.NotifyAlerts(ctx, outcome.Analysis); err != nil {
		service.logger.Warn(logMessageNotificationFailed, zap.String(logFieldSnapshotID, outcome.SnapshotID), zap.Error(err))
	}
	if outcome.Comparison == nil {
		return
	}
	if err := service.notifier.NotifyComparison(ctx, *outcome.Comparison); err != nil {
		service.logger.Warn(logMessageNotificationFailed, zap.String(logFieldSnapshotID, outcome.SnapshotID), zap.Error(err))
	}
}
