package watch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/f-sync/socialpulse/internal/export"
	"github.com/f-sync/socialpulse/internal/features"
	"github.com/f-sync/socialpulse/internal/service"
	"github.com/f-sync/socialpulse/internal/watch"
)

type countingRunner struct {
	calls atomic.Int32
	runs  chan string
}

func (runner *countingRunner) AnalyzeFiles(_ context.Context, files []export.InputFile, label string) (service.Outcome, error) {
	runner.calls.Add(1)
	if runner.runs != nil {
		select {
		case runner.runs <- label:
		default:
		}
	}
	return service.Outcome{SnapshotID: files[0].FileName}, nil
}

func TestNewValidatesConfig(t *testing.T) {
	testCases := []struct {
		name          string
		config        watch.Config
		expectError   bool
		expectedError error
	}{
		{name: "missing source", config: watch.Config{Schedule: "@daily"}, expectError: true, expectedError: watch.ErrMissingSource},
		{name: "invalid schedule", config: watch.Config{Schedule: "every tuesday", Source: "export.zip"}, expectError: true},
		{name: "valid descriptor", config: watch.Config{Schedule: "@hourly", Source: "export.zip"}},
		{name: "valid expression", config: watch.Config{Schedule: "30 6 * * 1", Source: "export.zip"}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			_, err := watch.New(testCase.config, &countingRunner{}, nil)
			if !testCase.expectError {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error")
			}
			if testCase.expectedError != nil && !errors.Is(err, testCase.expectedError) {
				t.Fatalf("error = %v, want %v", err, testCase.expectedError)
			}
		})
	}
}

func TestRunOnceAnalyzesExportDirectory(t *testing.T) {
	exportDirectory := t.TempDir()
	followersPath := filepath.Join(exportDirectory, "followers_1.json")
	if err := os.WriteFile(followersPath, []byte(`[{"string_list_data":[{"value":"A"}]}]`), 0o600); err != nil {
		t.Fatalf("write export: %v", err)
	}
	followingPath := filepath.Join(exportDirectory, "following.json")
	if err := os.WriteFile(followingPath, []byte(`{"relationships_following":[{"string_list_data":[{"value":"A"}]},{"string_list_data":[{"value":"B"}]}]}`), 0o600); err != nil {
		t.Fatalf("write export: %v", err)
	}

	pipeline := service.New(service.Dependencies{Gate: features.StaticGate{features.HistoricalComparison: true}})
	watchService, err := watch.New(watch.Config{Schedule: "@daily", Source: exportDirectory, Label: "nightly"}, pipeline, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := watchService.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Analysis.Stats.MutualCount != 1 || first.Analysis.Stats.NotFollowingBackCount != 1 {
		t.Fatalf("unexpected stats %+v", first.Analysis.Stats)
	}
	second, err := watchService.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Comparison == nil || second.Comparison.PreviousID != first.SnapshotID {
		t.Fatalf("second run should compare with the first snapshot")
	}
	latest, err := pipeline.Store().Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Label != "nightly" {
		t.Fatalf("label = %q, want nightly", latest.Label)
	}
}

func TestRunOnceReportsMissingSource(t *testing.T) {
	watchService, err := watch.New(watch.Config{Schedule: "@daily", Source: filepath.Join(t.TempDir(), "absent.zip")}, &countingRunner{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := watchService.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error for missing export")
	}
}

func TestStartRunsOnSchedule(t *testing.T) {
	runner := &countingRunner{runs: make(chan string, 1)}
	reader := func(source string) ([]export.InputFile, error) {
		return []export.InputFile{{FileName: source}}, nil
	}
	watchService, err := watch.New(watch.Config{Schedule: "@every 1s", Source: "scheduled.zip", Label: "tick"}, runner, nil,
		watch.WithExportReader(reader))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := watchService.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := watchService.Start(ctx); !errors.Is(err, watch.ErrAlreadyStarted) {
		t.Fatalf("second start error = %v, want ErrAlreadyStarted", err)
	}

	select {
	case label := <-runner.runs:
		if label != "tick" {
			t.Fatalf("label = %q, want tick", label)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduled run did not happen")
	}

	watchService.Stop()
	callsAfterStop := runner.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	if runner.calls.Load() != callsAfterStop {
		t.Fatalf("runs continued after stop")
	}
	watchService.Stop()

	if err := watchService.Start(ctx); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	watchService.Stop()
}
